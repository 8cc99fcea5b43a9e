// Package renderer provides the HTTP probe client used to interrogate a
// running rendering resource: a readiness check against its vocabulary
// endpoint and a best-effort graceful exit request.
package renderer

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/bluegrid/rrm/internal/common/config"
	"github.com/bluegrid/rrm/internal/common/httpmw"
	"github.com/bluegrid/rrm/internal/common/logger"
)

// exitPath is the renderer endpoint that asks the process to shut itself down.
const exitPath = "EXIT"

// ProbeResult classifies a readiness probe response.
type ProbeResult int

const (
	// ProbeReady means the renderer answered 200 and serves REST requests.
	ProbeReady ProbeResult = iota
	// ProbeGone means the renderer answered 404: the job is gone.
	ProbeGone
	// ProbeBusy means the renderer answered but cannot serve REST requests yet.
	ProbeBusy
)

func (r ProbeResult) String() string {
	switch r {
	case ProbeReady:
		return "ready"
	case ProbeGone:
		return "gone"
	case ProbeBusy:
		return "busy"
	default:
		return fmt.Sprintf("unknown(%d)", int(r))
	}
}

// Prober checks renderer readiness and requests graceful exits.
type Prober interface {
	CheckReadiness(ctx context.Context, host string, port int) (ProbeResult, error)
	RequestExit(ctx context.Context, host string, port int)
}

// Client probes rendering resources over HTTP. Probe timeouts are bounded by
// the configured request timeout; a caller-supplied bearer token is forwarded
// unchanged.
type Client struct {
	httpClient    *http.Client
	readinessPath string
	logger        *logger.Logger
}

var _ Prober = (*Client)(nil)

// NewClient creates a probe client from the renderer configuration.
func NewClient(cfg config.RendererConfig, log *logger.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeoutDuration(),
		},
		readinessPath: cfg.ReadinessPath,
		logger:        log.WithFields(zap.String("component", "renderer-probe")),
	}
}

// CheckReadiness issues a PUT against the renderer's vocabulary endpoint and
// classifies the response. A transport failure is returned as an error so the
// caller can distinguish an unreachable renderer from a busy one.
func (c *Client) CheckReadiness(ctx context.Context, host string, port int) (ProbeResult, error) {
	url := fmt.Sprintf("http://%s:%d/%s", host, port, c.readinessPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, nil)
	if err != nil {
		return ProbeBusy, err
	}
	if token := httpmw.AuthToken(ctx); token != "" {
		req.Header.Set("Authorization", token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ProbeBusy, err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	c.logger.Debug("readiness probe answered",
		zap.String("url", url),
		zap.Int("status", resp.StatusCode))

	switch resp.StatusCode {
	case http.StatusOK:
		return ProbeReady, nil
	case http.StatusNotFound:
		return ProbeGone, nil
	default:
		return ProbeBusy, nil
	}
}

// RequestExit asks the renderer to terminate itself. The renderer usually
// drops the connection mid-response, so every error is ignored.
func (c *Client) RequestExit(ctx context.Context, host string, port int) {
	url := fmt.Sprintf("http://%s:%d/%s", host, port, exitPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return
	}
	if token := httpmw.AuthToken(ctx); token != "" {
		req.Header.Set("Authorization", token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("exit request failed", zap.String("url", url), zap.Error(err))
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
