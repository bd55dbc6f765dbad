package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gosight/logflow/internal/config"
	"github.com/gosight/logflow/internal/event"
)

// DefaultTimeout bounds how long a caller waits for a generator
const DefaultTimeout = 30 * time.Second

var ErrTimeout = errors.New("report generation timed out")

// Request is what a generator receives: the full event log, every session
// and a free-form label for the period being analysed.
type Request struct {
	Events    []event.Event   `json:"events"`
	Sessions  []event.Session `json:"sessions"`
	TimeRange string          `json:"timeRange"`
}

// NewRequest builds a request from a tracker snapshot. The current session
// is included when active.
func NewRequest(snap event.Snapshot, timeRange string) Request {
	return Request{
		Events:    event.CloneEvents(snap.Events),
		Sessions:  snap.AllSessions(),
		TimeRange: timeRange,
	}
}

// Result is an opaque report document. Callers forward Body as is.
type Result struct {
	Body        json.RawMessage
	ContentType string
}

// Generator turns a request into a report
type Generator interface {
	Generate(ctx context.Context, req Request) (Result, error)
}

// Generate runs gen with a deadline. A zero timeout means DefaultTimeout.
func Generate(ctx context.Context, gen Generator, req Request, timeout time.Duration) (Result, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := gen.Generate(ctx, req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Result{}, fmt.Errorf("%w after %s: %v", ErrTimeout, timeout, err)
		}
		return Result{}, err
	}
	return res, nil
}

// New builds the generator selected by cfg.Kind
func New(cfg config.ReportConfig) (Generator, error) {
	switch cfg.Kind {
	case "", "summary":
		return NewSummary(), nil
	case "http":
		if cfg.Endpoint == "" {
			return nil, errors.New("report endpoint is required for the http generator")
		}
		return NewHTTP(cfg.Endpoint, nil), nil
	case "anthropic":
		return NewAnthropic(cfg.Anthropic), nil
	default:
		return nil, fmt.Errorf("unknown report kind %q", cfg.Kind)
	}
}

func jsonResult(v any) (Result, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return Result{}, err
	}
	return Result{Body: body, ContentType: "application/json"}, nil
}
