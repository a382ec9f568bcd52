package services

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/pulsecrm/syncd/internal/domain/models"
	"github.com/pulsecrm/syncd/internal/domain/ports"
)

// UpstreamConfig configures the upstream CRM REST client
type UpstreamConfig struct {
	BaseURL      string
	ServiceToken string
	Timeout      time.Duration

	// Per-entity delivery rate. Zero disables limiting.
	RatePerSecond float64
	Burst         int
}

// UpstreamClient delivers mutations to the upstream CRM REST API.
// Operations map onto the CRM's collection endpoints:
//
//	create → POST   /api/{entity}
//	update → PATCH  /api/{entity}/{id}
//	delete → DELETE /api/{entity}/{id}
type UpstreamClient struct {
	client  *resty.Client
	limiter *EntityLimiter
}

// Ensure UpstreamClient implements ports.Deliverer at compile time
var _ ports.Deliverer = (*UpstreamClient)(nil)

// NewUpstreamClient creates a delivery client for the upstream CRM
func NewUpstreamClient(cfg UpstreamConfig) *UpstreamClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:3001"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	cli := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout)

	if cfg.ServiceToken != "" {
		cli.SetAuthToken(cfg.ServiceToken)
	}

	return &UpstreamClient{
		client:  cli,
		limiter: NewEntityLimiter(cfg.RatePerSecond, cfg.Burst),
	}
}

// Deliver forwards one mutation to the upstream. Responses classify as:
// 2xx accepted; 408/429/5xx retryable; any other 4xx a permanent rejection.
func (u *UpstreamClient) Deliver(ctx context.Context, m *models.Mutation) error {
	if err := u.limiter.Wait(ctx, m.Entity); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	req := u.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("X-Sync-Mutation-ID", m.ID).
		SetHeader("X-Sync-Device-ID", m.DeviceID)

	var resp *resty.Response
	var err error

	switch m.Operation {
	case models.OpCreate:
		resp, err = req.SetBody(m.Payload).Post(fmt.Sprintf("/api/%s", m.Entity))
	case models.OpUpdate:
		resp, err = req.SetBody(m.Payload).Patch(fmt.Sprintf("/api/%s/%s", m.Entity, m.EntityID))
	case models.OpDelete:
		resp, err = req.Delete(fmt.Sprintf("/api/%s/%s", m.Entity, m.EntityID))
	default:
		return ports.NewPermanentError(fmt.Errorf("unknown operation %q", m.Operation))
	}

	if err != nil {
		// Transport errors (timeouts, refused connections) are retryable
		return fmt.Errorf("%s %s request: %w", m.Operation, m.Entity, err)
	}

	return classifyStatus(resp.StatusCode(), resp.String())
}

// Ping probes the upstream health endpoint
func (u *UpstreamClient) Ping(ctx context.Context) error {
	resp, err := u.client.R().SetContext(ctx).Get("/health")
	if err != nil {
		return fmt.Errorf("health probe: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("health probe: upstream returned %d", resp.StatusCode())
	}
	return nil
}

// classifyStatus maps an upstream HTTP status onto the retry taxonomy
func classifyStatus(status int, body string) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests:
		return fmt.Errorf("upstream throttled (%d)", status)
	case status >= 500:
		return fmt.Errorf("upstream error (%d)", status)
	default:
		// 409 conflicts, 404 gone targets, 422 validation failures:
		// retrying the same payload cannot succeed.
		msg := strings.TrimSpace(body)
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return ports.NewPermanentError(fmt.Errorf("upstream rejected (%d): %s", status, msg))
	}
}
