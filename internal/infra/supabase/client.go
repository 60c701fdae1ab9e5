// Package supabase provides the PostgREST adapter for the proposal
// registries: unit catalog (produtos_mestre), compositions and their items,
// and type-composition mappings. It is the service's only write path; the
// takeoff engine itself never talks to it directly.
package supabase

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/obraprime/propostas-api/internal/infra/resilience"
)

var tracer = otel.Tracer("supabase")

// Client wraps HTTP calls to the Supabase PostgREST API.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	apiKey         string
	serviceRoleKey string
	cb             *gobreaker.CircuitBreaker
	cfg            resilience.Config
	logger         *zap.Logger
}

// NewClient creates a Supabase client.
func NewClient(httpClient *http.Client, baseURL, apiKey, serviceRoleKey string, cb *gobreaker.CircuitBreaker, cfg resilience.Config, logger *zap.Logger) *Client {
	return &Client{
		httpClient:     httpClient,
		baseURL:        baseURL,
		apiKey:         apiKey,
		serviceRoleKey: serviceRoleKey,
		cb:             cb,
		cfg:            cfg,
		logger:         logger,
	}
}

func (c *Client) setHeaders(req *http.Request, prefer string) {
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.serviceRoleKey))
	req.Header.Set("Content-Type", "application/json")
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}
}

// doGet executes an authenticated GET against PostgREST, with circuit
// breaker and retry. The raw body is returned; semantic checks (empty result
// sets, row decoding) belong to the store methods so that a plain "no rows"
// never trips the breaker.
func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	var body []byte

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			url := fmt.Sprintf("%s/rest/v1/%s", c.baseURL, path)
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return resilience.Permanent(err)
			}
			c.setHeaders(req, "")

			resp, err := c.httpClient.Do(req)
			if err != nil {
				c.logger.Error("supabase: GET failed",
					zap.String("path", path),
					zap.Error(err),
				)
				return err
			}
			defer resp.Body.Close()

			b, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}

			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				c.logger.Warn("supabase: GET non-2xx",
					zap.String("path", path),
					zap.Int("status", resp.StatusCode),
					zap.String("body", string(b)),
				)
				err := fmt.Errorf("supabase GET %s returned %d: %s", path, resp.StatusCode, string(b))
				if resp.StatusCode >= 400 && resp.StatusCode < 500 {
					return resilience.Permanent(err)
				}
				return err
			}

			c.logger.Debug("supabase: GET OK", zap.String("path", path), zap.Int("status", resp.StatusCode))
			body = b
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}
