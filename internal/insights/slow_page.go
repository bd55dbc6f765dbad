package insights

import (
	"github.com/gosight/logflow/internal/config"
	"github.com/gosight/logflow/internal/event"
)

// SlowPageDetector detects page views whose reported timings ("lcp", "ttfb"
// or "fcp" metadata, in milliseconds) exceed the thresholds
type SlowPageDetector struct {
	lcpThresholdMs  int64
	ttfbThresholdMs int64
}

func NewSlowPageDetector(cfg config.SlowPageConfig) *SlowPageDetector {
	return &SlowPageDetector{
		lcpThresholdMs:  cfg.LCPThresholdMs,
		ttfbThresholdMs: cfg.TTFBThresholdMs,
	}
}

func (d *SlowPageDetector) Detect(session []event.Event) []Insight {
	var out []Insight
	for _, e := range session {
		if e.Type != event.TypePageView {
			continue
		}
		if in, ok := d.check(e); ok {
			out = append(out, in)
		}
	}
	return out
}

func (d *SlowPageDetector) check(e event.Event) (Insight, bool) {
	var reasons []string
	var slowest float64

	if lcp, ok := number(e.Metadata, "lcp"); ok && lcp > float64(d.lcpThresholdMs) {
		reasons = append(reasons, "lcp")
		slowest = max(slowest, lcp)
	}
	if ttfb, ok := number(e.Metadata, "ttfb"); ok && ttfb > float64(d.ttfbThresholdMs) {
		reasons = append(reasons, "ttfb")
		slowest = max(slowest, ttfb)
	}
	// FCP uses 80% of the LCP threshold
	if fcp, ok := number(e.Metadata, "fcp"); ok && fcp > float64(d.lcpThresholdMs)*0.8 {
		reasons = append(reasons, "fcp")
		slowest = max(slowest, fcp)
	}
	if len(reasons) == 0 {
		return Insight{}, false
	}

	details := map[string]any{
		"load_time_ms": slowest,
		"reasons":      reasons,
	}
	for _, k := range []string{"lcp", "ttfb", "fcp", "cls", "inp"} {
		if v, ok := number(e.Metadata, k); ok {
			details[k] = v
		}
	}

	return Insight{
		Kind:            KindSlowPage,
		SessionID:       e.SessionID,
		Timestamp:       e.Timestamp,
		Path:            pagePath(e),
		Details:         details,
		RelatedEventIDs: []string{e.ID},
	}, true
}
