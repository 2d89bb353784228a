package k8s

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/clabconsole/clabconsole-backend/internal/pkg/tracing"
)

// Client wraps the typed and dynamic client-go clients used by the console.
type Client struct {
	Clientset kubernetes.Interface
	Dynamic   dynamic.Interface
	Config    *rest.Config
	Context   string
	// Timeout for each outbound API call; 0 means the caller's context only.
	Timeout time.Duration
	// limiter optionally rate-limits outbound API calls. Nil = no limit.
	limiter        *rate.Limiter
	circuitBreaker *CircuitBreaker

	lastSuccessTime time.Time
	lastError       error
	healthMu        sync.RWMutex
}

// NewClient creates a client from kubeconfigPath (in-cluster config, then ~/.kube/config when empty).
func NewClient(kubeconfigPath, kubeContext string) (*Client, error) {
	var config *rest.Config
	var err error

	if kubeconfigPath == "" {
		config, err = rest.InClusterConfig()
		if err != nil {
			if homeDir, _ := os.UserHomeDir(); homeDir != "" {
				kubeconfigPath = filepath.Join(homeDir, ".kube", "config")
			}
		}
	}

	if config == nil {
		config, err = clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
			&clientcmd.ClientConfigLoadingRules{ExplicitPath: kubeconfigPath},
			&clientcmd.ConfigOverrides{CurrentContext: kubeContext},
		).ClientConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to build config: %w", err)
		}
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create clientset: %w", err)
	}

	dynamicClient, err := dynamic.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create dynamic client: %w", err)
	}

	return &Client{
		Clientset:       clientset,
		Dynamic:         dynamicClient,
		Config:          config,
		Context:         kubeContext,
		circuitBreaker:  NewCircuitBreaker(),
		lastSuccessTime: time.Now(),
	}, nil
}

// NewClientForTest creates a Client over the given (usually fake) clients.
func NewClientForTest(clientset kubernetes.Interface, dynamicClient dynamic.Interface) *Client {
	return &Client{
		Clientset:       clientset,
		Dynamic:         dynamicClient,
		circuitBreaker:  NewCircuitBreaker(),
		lastSuccessTime: time.Now(),
	}
}

// SetTimeout sets the per-call timeout for outbound API calls.
func (c *Client) SetTimeout(d time.Duration) {
	c.Timeout = d
}

// SetLimiter sets a token-bucket rate limiter for outbound API calls.
func (c *Client) SetLimiter(l *rate.Limiter) {
	c.limiter = l
}

func (c *Client) waitRateLimit(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// withTimeout returns ctx with timeout applied if c.Timeout > 0; otherwise returns ctx and a no-op cancel.
func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.Timeout > 0 {
		return context.WithTimeout(ctx, c.Timeout)
	}
	return ctx, func() {}
}

// call runs fn inside a span, behind the limiter and the circuit breaker, with the per-call
// timeout and transient-error retry applied. Console table and CRUD calls go through here.
func call[T any](ctx context.Context, c *Client, spanName string, attrs []attribute.KeyValue, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, span := tracing.StartSpan(ctx, spanName, attrs...)
	var result T
	err := c.waitRateLimit(ctx)
	if err == nil {
		err = c.circuitBreaker.Execute(ctx, func() error {
			ctx, cancel := c.withTimeout(ctx)
			defer cancel()
			var fnErr error
			result, fnErr = retryTransient(ctx, func() (T, error) {
				return fn(ctx)
			})
			return fnErr
		})
		c.updateHealth(err)
	}
	tracing.EndSpan(span, err)
	return result, err
}

// callOnce runs fn exactly once inside a span, behind the limiter and with the per-call timeout.
// Its error is returned as the API server reported it: visualize reads are neither retried nor
// counted by the circuit breaker.
func callOnce[T any](ctx context.Context, c *Client, spanName string, attrs []attribute.KeyValue, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, span := tracing.StartSpan(ctx, spanName, attrs...)
	var result T
	err := c.waitRateLimit(ctx)
	if err == nil {
		callCtx, cancel := c.withTimeout(ctx)
		result, err = fn(callCtx)
		cancel()
		if err == nil {
			c.updateHealth(nil)
		}
	}
	tracing.EndSpan(span, err)
	return result, err
}

// TestConnection verifies connectivity to the cluster.
func (c *Client) TestConnection(ctx context.Context) error {
	_, err := call(ctx, c, "k8s.test_connection", nil, func(ctx context.Context) (struct{}, error) {
		_, err := c.Clientset.CoreV1().Namespaces().List(ctx, metav1.ListOptions{Limit: 1})
		return struct{}{}, err
	})
	return err
}

func (c *Client) updateHealth(err error) {
	c.healthMu.Lock()
	defer c.healthMu.Unlock()
	if err == nil {
		c.lastSuccessTime = time.Now()
		c.lastError = nil
	} else {
		c.lastError = err
	}
}

// HealthStatus returns the health of the cluster connection.
func (c *Client) HealthStatus() (isHealthy bool, lastSuccess time.Time, lastErr error, circuitState CircuitBreakerState) {
	c.healthMu.RLock()
	defer c.healthMu.RUnlock()

	state := c.circuitBreaker.State()
	isHealthy = state == StateClosed && c.lastError == nil
	return isHealthy, c.lastSuccessTime, c.lastError, state
}
