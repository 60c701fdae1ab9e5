package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/obraprime/propostas-api/internal/infra/resilience"
)

// ============================================================
// HTTP helpers for POST, PATCH, DELETE
// ============================================================

// doWrite executes a mutating request against PostgREST with the breaker and
// retry applied. PATCH and POST use "Prefer: return=representation" so the
// affected rows come back; an empty representation on a filtered PATCH means
// the filter matched nothing, which the callers use for version checks.
func (c *Client) doWrite(ctx context.Context, method, path string, data any) ([]byte, error) {
	var jsonBody []byte
	if data != nil {
		var err error
		jsonBody, err = json.Marshal(data)
		if err != nil {
			return nil, err
		}
	}

	var body []byte

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			url := fmt.Sprintf("%s/rest/v1/%s", c.baseURL, path)

			var reader io.Reader
			if jsonBody != nil {
				reader = bytes.NewReader(jsonBody)
			}
			req, err := http.NewRequestWithContext(ctx, method, url, reader)
			if err != nil {
				return resilience.Permanent(err)
			}
			c.setHeaders(req, "return=representation")

			resp, err := c.httpClient.Do(req)
			if err != nil {
				c.logger.Error("supabase: write failed",
					zap.String("method", method),
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
				c.logger.Warn("supabase: write non-2xx",
					zap.String("method", method),
					zap.String("path", path),
					zap.Int("status", resp.StatusCode),
					zap.String("body", string(b)),
				)
				err := fmt.Errorf("supabase %s %s returned %d: %s", method, path, resp.StatusCode, string(b))
				// Writes are not idempotent; only retry transport-level and 5xx failures.
				if resp.StatusCode >= 400 && resp.StatusCode < 500 {
					return resilience.Permanent(err)
				}
				return err
			}

			c.logger.Debug("supabase: write OK",
				zap.String("method", method),
				zap.String("path", path),
				zap.Int("status", resp.StatusCode),
			)
			body = b
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Client) doPost(ctx context.Context, table string, data any) ([]byte, error) {
	return c.doWrite(ctx, http.MethodPost, table, data)
}

func (c *Client) doPatch(ctx context.Context, path string, data any) ([]byte, error) {
	return c.doWrite(ctx, http.MethodPatch, path, data)
}

func (c *Client) doDelete(ctx context.Context, path string) error {
	_, err := c.doWrite(ctx, http.MethodDelete, path, nil)
	return err
}

// decodeRows unmarshals a PostgREST array response.
func decodeRows[T any](body []byte, what string) ([]T, error) {
	var rows []T
	if len(body) == 0 {
		return rows, nil
	}
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode %s: %w", what, err)
	}
	return rows, nil
}
