package report

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/gosight/logflow/internal/config"
	"github.com/gosight/logflow/internal/event"
)

// Snapshotter supplies the data a scheduled report covers
type Snapshotter interface {
	Snapshot() event.Snapshot
}

// Scheduler generates reports on a cron schedule and writes each one to a
// timestamped file.
type Scheduler struct {
	cron      *cron.Cron
	gen       Generator
	source    Snapshotter
	dir       string
	timeRange string
	timeout   time.Duration
	now       func() time.Time
}

func NewScheduler(cfg config.ReportConfig, gen Generator, source Snapshotter) (*Scheduler, error) {
	s := &Scheduler{
		cron:      cron.New(),
		gen:       gen,
		source:    source,
		dir:       cfg.OutputDir,
		timeRange: cfg.TimeRange,
		timeout:   cfg.Timeout,
		now:       time.Now,
	}
	if _, err := s.cron.AddFunc(cfg.Schedule, func() {
		if _, err := s.RunOnce(context.Background()); err != nil {
			log.Error().Err(err).Msg("Scheduled report failed")
		}
	}); err != nil {
		return nil, fmt.Errorf("invalid report schedule %q: %w", cfg.Schedule, err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	log.Info().Str("dir", s.dir).Msg("Report scheduler started")
}

// Stop halts the schedule and waits for a running report to finish
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// RunOnce generates one report now and returns the file it was written to
func (s *Scheduler) RunOnce(ctx context.Context) (string, error) {
	res, err := Generate(ctx, s.gen, NewRequest(s.source.Snapshot(), s.timeRange), s.timeout)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(s.dir, "report-"+s.now().UTC().Format("20060102T150405Z")+extension(res.ContentType))
	if err := os.WriteFile(path, res.Body, 0o644); err != nil {
		return "", err
	}

	log.Info().Str("path", path).Int("bytes", len(res.Body)).Msg("Report written")
	return path, nil
}

// extension picks the report file suffix from a Content-Type header value
func extension(contentType string) string {
	if contentType == "" {
		return ".json"
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err == nil && (mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")) {
		return ".json"
	}
	return ".txt"
}
