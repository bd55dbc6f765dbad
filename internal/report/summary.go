package report

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gosight/logflow/internal/analytics"
	"github.com/gosight/logflow/internal/config"
	"github.com/gosight/logflow/internal/insights"
)

// Item is one entry of a structured report section
type Item struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Metric      string `json:"metric,omitempty"`
	MetricLabel string `json:"metricLabel,omitempty"`
	Impact      string `json:"impact,omitempty"`
	Priority    string `json:"priority,omitempty"`
}

// Structured is the document produced by the summary generator
type Structured struct {
	TimeRange       string    `json:"timeRange"`
	Insights        []Item    `json:"insights"`
	Recommendations []Item    `json:"recommendations"`
	Warnings        []Item    `json:"warnings"`
	NextSteps       []Item    `json:"nextSteps"`
	GeneratedAt     time.Time `json:"timestamp"`
	NextAnalysis    time.Time `json:"nextAnalysis"`
}

// minReliableEvents is the event count below which the report warns that
// the sample is small.
const minReliableEvents = 1000

var typeNames = map[string]string{
	"click":       "Clicks",
	"page_view":   "Page views",
	"api_call":    "API calls",
	"form_submit": "Form submissions",
	"custom":      "Custom events",
}

// Summary computes a rule-based report locally, without any remote service
type Summary struct {
	now      func() time.Time
	detector *insights.Detector
}

func NewSummary() *Summary {
	return &Summary{now: time.Now, detector: insights.NewDetector(config.InsightsConfig{})}
}

func (s *Summary) Generate(ctx context.Context, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	return jsonResult(map[string]any{"report": s.Build(req)})
}

// Build computes the structured report for req
func (s *Summary) Build(req Request) Structured {
	now := s.now()
	totalEvents := len(req.Events)
	totalSessions := len(req.Sessions)
	hasData := totalEvents > 0 && totalSessions > 0

	var avg float64
	if totalSessions > 0 {
		avg = float64(totalEvents) / float64(totalSessions)
	}

	top := analytics.TopN(req.Events, 5)
	topName, topCount, leastName := "", 0, ""
	if len(top) > 0 {
		topName, topCount = label(top[0]), top[0].Count
		leastName = label(top[len(top)-1])
	}

	r := Structured{
		TimeRange:    req.TimeRange,
		GeneratedAt:  now,
		NextAnalysis: now.Add(7 * 24 * time.Hour),
	}

	engagement := Item{
		Title:       "Engagement",
		Description: "Not enough data has been collected yet. Interactions are analysed as soon as they are tracked.",
		Metric:      "0",
		MetricLabel: "Average events per session",
	}
	popular := Item{
		Title:       "Most used feature",
		Description: "Once data arrives the most clicked elements are identified automatically.",
		Metric:      "0",
		MetricLabel: "Interactions with the top element",
	}
	distribution := Item{
		Title:       "Event type distribution",
		Description: "Events are grouped by type to show which kinds of interaction dominate.",
	}
	pattern := Item{
		Title:       "Behaviour pattern",
		Description: "With enough sessions the report shows which paths users take and when they are active.",
	}
	if hasData {
		engagement.Description = fmt.Sprintf("%d events were recorded across %d sessions, %.2f per session on average.",
			totalEvents, totalSessions, avg)
		engagement.Metric = fmt.Sprintf("%.2f", avg)
		popular.Description = fmt.Sprintf("%q is the most used element with %d interactions.", topName, topCount)
		popular.Metric = fmt.Sprintf("%d", topCount)
		distribution.Description = describeTypes(req)
		pattern.Description = fmt.Sprintf("During %s users followed %d distinct session paths.",
			req.TimeRange, distinctPaths(req))
	}
	r.Insights = []Item{engagement, popular, distribution, pattern}

	strengthen := Item{
		Title:       "Strengthen popular features",
		Description: "Find the most used feature and invest in its experience first.",
		Impact:      "Higher conversion on the primary flow",
	}
	conversion := Item{
		Title:       "Optimise conversion",
		Description: "Review the funnel and fix the steps where most sessions drop off.",
		Impact:      "More engaged sessions",
	}
	underused := Item{
		Title:       "Improve underused features",
		Description: "Compare usage across features and make the rarely used ones easier to find.",
		Impact:      "Better feature adoption",
	}
	if hasData {
		strengthen.Description = fmt.Sprintf("%q gets the most use. Improving its UX and building around it should pay off first.", topName)
		conversion.Description = fmt.Sprintf("Sessions average %.2f events. Streamlining the key conversion points can raise engagement further.", avg)
		if len(top) > 3 {
			underused.Description = fmt.Sprintf("%q is used comparatively rarely. Consider making it more visible.", leastName)
		}
	}
	r.Recommendations = []Item{strengthen, conversion, underused, {
		Title:       "Run A/B tests",
		Description: "Test placement, colour and copy of the main calls to action.",
		Impact:      "Higher click-through rate",
	}}

	volume := Item{
		Title:       "Data volume",
		Description: "No events have been collected yet.",
	}
	depth := Item{
		Title:       "Session depth",
		Description: "Average events per session shows how much users explore in one visit.",
	}
	if hasData {
		if totalEvents < minReliableEvents {
			volume.Description = fmt.Sprintf("%d events collected. At least %d are needed for reliable conclusions.",
				totalEvents, minReliableEvents)
		} else {
			volume.Description = fmt.Sprintf("%d events collected, enough for a reliable analysis.", totalEvents)
		}
		if avg < 3 {
			depth.Description = "Sessions contain few events. Users may be leaving early, so the first screen matters most."
		} else {
			depth.Description = "Sessions contain a healthy number of events."
		}
	}
	r.Warnings = []Item{volume, depth, {
		Title:       "Tracking coverage",
		Description: "Make sure every important button and link is tracked.",
	}}
	if friction := s.detector.Detect(req.Events, now.UnixMilli()); len(friction) > 0 {
		r.Warnings = append(r.Warnings, Item{
			Title:       "Friction signals",
			Description: describeFriction(insights.Count(friction)),
			Metric:      fmt.Sprintf("%d", len(friction)),
			MetricLabel: "Detected friction patterns",
		})
	}

	r.NextSteps = []Item{
		{Title: "Optimise the user journey", Description: "Find the funnel step with the highest drop-off and fix it first.", Priority: "1"},
		{Title: "Study interaction hot spots", Description: "Compare the elements users click against the ones they ignore.", Priority: "2"},
		{Title: "Keep monitoring", Description: "Generate this report weekly to confirm that changes have the intended effect.", Priority: "3"},
	}
	return r
}

func label(r analytics.Ranked) string {
	if r.ElementName != "" {
		return r.ElementName
	}
	return r.ElementID
}

func describeTypes(req Request) string {
	shares := analytics.TypeBreakdown(req.Events)
	parts := make([]string, 0, len(shares))
	for _, s := range shares {
		name, ok := typeNames[string(s.Type)]
		if !ok {
			name = string(s.Type)
		}
		parts = append(parts, fmt.Sprintf("%s: %d (%.1f%%)", name, s.Count, s.Percentage))
	}
	return strings.Join(parts, ", ")
}

var frictionNames = []struct {
	kind insights.Kind
	name string
}{
	{insights.KindRageClick, "rage clicks"},
	{insights.KindDeadClick, "dead clicks"},
	{insights.KindErrorClick, "clicks followed by failing API calls"},
	{insights.KindUTurn, "U-turn navigations"},
	{insights.KindSlowPage, "slow page loads"},
}

func describeFriction(counts map[insights.Kind]int) string {
	var parts []string
	for _, f := range frictionNames {
		if n := counts[f.kind]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, f.name))
		}
	}
	return "Users hit " + strings.Join(parts, ", ") + ". Review the affected elements first."
}

func distinctPaths(req Request) int {
	seen := make(map[string]struct{})
	for i := range req.Sessions {
		seen[strings.Join(req.Sessions[i].Path, ">")] = struct{}{}
	}
	return len(seen)
}
