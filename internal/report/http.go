package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

// HTTP posts the request to a remote report service and forwards whatever it
// returns. Transport errors and 5xx responses are retried with exponential
// backoff until the context deadline.
type HTTP struct {
	endpoint   string
	client     *http.Client
	maxRetries uint64
}

// NewHTTP creates a generator for endpoint. A nil client uses
// http.DefaultClient.
func NewHTTP(endpoint string, client *http.Client) *HTTP {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTP{endpoint: endpoint, client: client, maxRetries: 3}
}

func (h *HTTP) Generate(ctx context.Context, req Request) (Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Result{}, fmt.Errorf("marshal report request: %w", err)
	}

	var res Result
	attempt := 0
	op := func() error {
		attempt++
		r, err := h.post(ctx, body)
		if err != nil {
			log.Warn().Err(err).Int("attempt", attempt).Str("endpoint", h.endpoint).Msg("Report request failed")
			return err
		}
		res = r
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, h.maxRetries), ctx)); err != nil {
		return Result{}, err
	}
	return res, nil
}

func (h *HTTP) post(ctx context.Context, body []byte) (Result, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, backoff.Permanent(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, err
	}

	switch {
	case resp.StatusCode >= 500:
		return Result{}, fmt.Errorf("report service returned status %d", resp.StatusCode)
	case resp.StatusCode >= 300:
		return Result{}, backoff.Permanent(fmt.Errorf("report service returned status %d", resp.StatusCode))
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}
	return Result{Body: data, ContentType: contentType}, nil
}
