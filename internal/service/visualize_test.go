package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clabconsole/clabconsole-backend/internal/models"
	"github.com/clabconsole/clabconsole-backend/internal/pkg/export"
	"github.com/clabconsole/clabconsole-backend/internal/pkg/metrics"
)

type visualizerFunc func(ctx context.Context, req models.VisualizeRequest) (*models.VisualizeResult, error)

func (f visualizerFunc) Visualize(ctx context.Context, req models.VisualizeRequest) (*models.VisualizeResult, error) {
	return f(ctx, req)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func resultFor(req models.VisualizeRequest) *models.VisualizeResult {
	return &models.VisualizeResult{
		Nodes: []models.GraphNode{{
			ID:       req.Topology,
			Kind:     models.KindTopology,
			Label:    req.Topology,
			Size:     models.Size{Height: 90, Width: 150},
			Position: models.Position{X: 12, Y: 12},
		}},
		Edges: []models.GraphEdge{},
		Meta: models.VisualizeMeta{
			Namespace: req.Namespace,
			Topology:  req.Topology,
			View:      models.ViewKubernetes,
			Direction: models.DirectionHorizontal,
			NodeCount: 1,
		},
	}
}

func staticEngine() Visualizer {
	return visualizerFunc(func(_ context.Context, req models.VisualizeRequest) (*models.VisualizeResult, error) {
		return resultFor(req), nil
	})
}

func TestVisualize_WithoutSession(t *testing.T) {
	svc := NewVisualizeService(staticEngine(), NewSessionTracker(8, time.Minute), time.Second, discardLogger())

	result, err := svc.Visualize(context.Background(), models.VisualizeRequest{Namespace: "lab", Topology: "topo"}, "")
	require.NoError(t, err)
	assert.Zero(t, result.Meta.Token)
	assert.Equal(t, "topo", result.Nodes[0].ID)
}

func TestVisualize_SessionTokensIncrease(t *testing.T) {
	svc := NewVisualizeService(staticEngine(), NewSessionTracker(8, time.Minute), time.Second, discardLogger())
	req := models.VisualizeRequest{Namespace: "lab", Topology: "topo"}

	first, err := svc.Visualize(context.Background(), req, "s1")
	require.NoError(t, err)
	second, err := svc.Visualize(context.Background(), req, "s1")
	require.NoError(t, err)

	assert.NotZero(t, first.Meta.Token)
	assert.Greater(t, second.Meta.Token, first.Meta.Token)
}

func TestVisualize_SlowerOlderRequestIsDiscarded(t *testing.T) {
	started := make(chan struct{})
	engine := visualizerFunc(func(ctx context.Context, req models.VisualizeRequest) (*models.VisualizeResult, error) {
		if req.Topology == "slow" {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return resultFor(req), nil
	})
	svc := NewVisualizeService(engine, NewSessionTracker(8, time.Minute), 0, discardLogger())
	before := testutil.ToFloat64(metrics.VisualizeSupersededTotal)

	errs := make(chan error, 1)
	go func() {
		_, err := svc.Visualize(context.Background(), models.VisualizeRequest{Namespace: "lab", Topology: "slow"}, "s1")
		errs <- err
	}()
	<-started

	result, err := svc.Visualize(context.Background(), models.VisualizeRequest{Namespace: "lab", Topology: "fast"}, "s1")
	require.NoError(t, err)
	assert.Equal(t, "fast", result.Meta.Topology)

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrSuperseded)
	case <-time.After(5 * time.Second):
		t.Fatal("superseded request did not return")
	}
	assert.InDelta(t, before+1, testutil.ToFloat64(metrics.VisualizeSupersededTotal), 1e-9)
}

func TestVisualize_CompletedResultDiscardedWhenNewerBegan(t *testing.T) {
	tracker := NewSessionTracker(8, time.Minute)
	var newer func()
	engine := visualizerFunc(func(_ context.Context, req models.VisualizeRequest) (*models.VisualizeResult, error) {
		// a newer request of the session begins while this one is computing
		_, _, newer = tracker.Begin(context.Background(), "s1")
		return resultFor(req), nil
	})
	svc := NewVisualizeService(engine, tracker, time.Second, discardLogger())

	_, err := svc.Visualize(context.Background(), models.VisualizeRequest{Namespace: "lab", Topology: "topo"}, "s1")
	assert.ErrorIs(t, err, ErrSuperseded)
	newer()
}

func TestStart_SupersedesInCallOrder(t *testing.T) {
	var olderCtxErr error
	engine := visualizerFunc(func(ctx context.Context, req models.VisualizeRequest) (*models.VisualizeResult, error) {
		if req.Topology == "older" {
			olderCtxErr = ctx.Err()
		}
		return resultFor(req), nil
	})
	svc := NewVisualizeService(engine, NewSessionTracker(8, time.Minute), time.Second, discardLogger())
	ctx := context.Background()

	older := svc.Start(ctx, models.VisualizeRequest{Namespace: "lab", Topology: "older"}, "s1")
	newer := svc.Start(ctx, models.VisualizeRequest{Namespace: "lab", Topology: "newer"}, "s1")

	// the newer computation runs first; call order of Start decides, not run order
	result, err := newer()
	require.NoError(t, err)
	assert.Equal(t, "newer", result.Meta.Topology)

	_, err = older()
	assert.ErrorIs(t, err, ErrSuperseded)
	assert.ErrorIs(t, olderCtxErr, context.Canceled)
}

func TestVisualize_OtherSessionsUnaffected(t *testing.T) {
	tracker := NewSessionTracker(8, time.Minute)
	engine := visualizerFunc(func(_ context.Context, req models.VisualizeRequest) (*models.VisualizeResult, error) {
		_, _, release := tracker.Begin(context.Background(), "other")
		release()
		return resultFor(req), nil
	})
	svc := NewVisualizeService(engine, tracker, time.Second, discardLogger())

	result, err := svc.Visualize(context.Background(), models.VisualizeRequest{Namespace: "lab", Topology: "topo"}, "s1")
	require.NoError(t, err)
	assert.NotZero(t, result.Meta.Token)
}

func TestVisualize_Timeout(t *testing.T) {
	engine := visualizerFunc(func(ctx context.Context, _ models.VisualizeRequest) (*models.VisualizeResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	svc := NewVisualizeService(engine, nil, 10*time.Millisecond, discardLogger())

	_, err := svc.Visualize(context.Background(), models.VisualizeRequest{Namespace: "lab", Topology: "topo"}, "s1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestVisualize_EngineErrorPassesThrough(t *testing.T) {
	denied := errors.New("forbidden")
	engine := visualizerFunc(func(context.Context, models.VisualizeRequest) (*models.VisualizeResult, error) {
		return nil, denied
	})
	svc := NewVisualizeService(engine, NewSessionTracker(8, time.Minute), time.Second, discardLogger())

	_, err := svc.Visualize(context.Background(), models.VisualizeRequest{Namespace: "lab", Topology: "topo"}, "s1")
	assert.ErrorIs(t, err, denied)
}

func TestExport(t *testing.T) {
	svc := NewVisualizeService(staticEngine(), nil, time.Second, nil)
	req := models.VisualizeRequest{Namespace: "lab", Topology: "topo"}

	data, err := svc.Export(context.Background(), req, export.FormatMermaid)
	require.NoError(t, err)
	assert.Contains(t, string(data), "flowchart LR")
	assert.Contains(t, string(data), `topo{{"topo"}}`)

	_, err = svc.Export(context.Background(), req, export.Format("pdf"))
	assert.ErrorIs(t, err, export.ErrUnsupportedFormat)
}

func TestExport_EngineError(t *testing.T) {
	denied := errors.New("forbidden")
	engine := visualizerFunc(func(context.Context, models.VisualizeRequest) (*models.VisualizeResult, error) {
		return nil, denied
	})
	svc := NewVisualizeService(engine, nil, time.Second, discardLogger())

	_, err := svc.Export(context.Background(), models.VisualizeRequest{}, export.FormatJSON)
	assert.ErrorIs(t, err, denied)
}

func TestEndSession(t *testing.T) {
	started := make(chan struct{})
	engine := visualizerFunc(func(ctx context.Context, _ models.VisualizeRequest) (*models.VisualizeResult, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	tracker := NewSessionTracker(8, time.Minute)
	svc := NewVisualizeService(engine, tracker, 0, discardLogger())

	errs := make(chan error, 1)
	go func() {
		_, err := svc.Visualize(context.Background(), models.VisualizeRequest{Namespace: "lab", Topology: "topo"}, "s1")
		errs <- err
	}()
	<-started
	svc.EndSession("s1")

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("request was not canceled")
	}
	assert.Zero(t, tracker.Len())

	// no tracker, nothing to end
	NewVisualizeService(engine, nil, 0, nil).EndSession("s1")
}
