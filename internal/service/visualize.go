package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/clabconsole/clabconsole-backend/internal/models"
	"github.com/clabconsole/clabconsole-backend/internal/pkg/export"
	"github.com/clabconsole/clabconsole-backend/internal/pkg/metrics"
)

// ErrSuperseded is returned when a newer request of the same session began before this one
// completed. Its result must not be shown.
var ErrSuperseded = errors.New("visualize request superseded by a newer one")

// Visualizer builds positioned graphs; implemented by topology.Engine.
type Visualizer interface {
	Visualize(ctx context.Context, req models.VisualizeRequest) (*models.VisualizeResult, error)
}

// VisualizeService runs visualizations with per-session supersede tracking and export.
type VisualizeService interface {
	Visualize(ctx context.Context, req models.VisualizeRequest, sessionID string) (*models.VisualizeResult, error)
	// Start registers the request with its session before returning, so requests supersede in
	// the order Start is called. The returned func runs the computation and must be called once.
	Start(ctx context.Context, req models.VisualizeRequest, sessionID string) func() (*models.VisualizeResult, error)
	Export(ctx context.Context, req models.VisualizeRequest, format export.Format) ([]byte, error)
	// EndSession cancels the session's in-flight request and forgets it.
	EndSession(sessionID string)
}

type visualizeService struct {
	engine   Visualizer
	sessions *SessionTracker
	timeout  time.Duration
	logger   *slog.Logger
}

// NewVisualizeService creates a visualize service. A zero timeout leaves the caller's deadline
// in charge; a nil tracker disables session tracking.
func NewVisualizeService(engine Visualizer, sessions *SessionTracker, timeout time.Duration, logger *slog.Logger) VisualizeService {
	if logger == nil {
		logger = slog.Default()
	}
	return &visualizeService{
		engine:   engine,
		sessions: sessions,
		timeout:  timeout,
		logger:   logger,
	}
}

func (s *visualizeService) Visualize(ctx context.Context, req models.VisualizeRequest, sessionID string) (*models.VisualizeResult, error) {
	return s.Start(ctx, req, sessionID)()
}

func (s *visualizeService) Start(ctx context.Context, req models.VisualizeRequest, sessionID string) func() (*models.VisualizeResult, error) {
	var (
		token   uint64
		release = func() {}
	)
	if sessionID != "" && s.sessions != nil {
		ctx, token, release = s.sessions.Begin(ctx, sessionID)
	}
	return func() (*models.VisualizeResult, error) {
		defer release()
		return s.run(ctx, req, sessionID, token)
	}
}

func (s *visualizeService) run(ctx context.Context, req models.VisualizeRequest, sessionID string, token uint64) (*models.VisualizeResult, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	result, err := s.engine.Visualize(ctx, req)
	if token != 0 && !s.sessions.IsLatest(sessionID, token) {
		// a superseded request is canceled, so its error is a consequence of the newer one
		metrics.VisualizeSupersededTotal.Inc()
		s.logger.Debug("visualize result discarded",
			"session", sessionID,
			"token", token,
			"namespace", req.Namespace,
			"topology", req.Topology,
		)
		return nil, ErrSuperseded
	}
	if err != nil {
		return nil, err
	}
	result.Meta.Token = token
	return result, nil
}

func (s *visualizeService) EndSession(sessionID string) {
	if s.sessions != nil && sessionID != "" {
		s.sessions.Forget(sessionID)
	}
}

func (s *visualizeService) Export(ctx context.Context, req models.VisualizeRequest, format export.Format) ([]byte, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	result, err := s.engine.Visualize(ctx, req)
	if err != nil {
		return nil, err
	}
	data, err := export.Encode(result, format)
	if err != nil {
		return nil, fmt.Errorf("export %s/%s as %s: %w", req.Namespace, req.Topology, format, err)
	}
	return data, nil
}
