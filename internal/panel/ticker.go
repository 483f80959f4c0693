package panel

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/flood-atlas-service/internal/domain"
	"github.com/couchcryptid/flood-atlas-service/internal/narrative"
	"github.com/couchcryptid/flood-atlas-service/internal/observability"
	"github.com/go-co-op/gocron"
)

// HeadlineSource produces headline texts for a climate context.
type HeadlineSource interface {
	Headlines(ctx context.Context, climateContext string) ([]string, error)
}

// Ticker holds the current headlines. Every refresh replaces the whole set;
// when several refreshes overlap only the most recently started one lands.
type Ticker struct {
	source  HeadlineSource
	timeout time.Duration
	logger  *slog.Logger
	metrics *observability.Metrics

	mu        sync.Mutex
	headlines []domain.NewsHeadline
	last      domain.Snapshot
	hasLast   bool
	gen       uint64

	wg        sync.WaitGroup
	scheduler *gocron.Scheduler
}

// NewTicker creates a Ticker. timeout bounds each background refresh.
func NewTicker(source HeadlineSource, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Ticker {
	return &Ticker{
		source:  source,
		timeout: timeout,
		logger:  logger,
		metrics: metrics,
	}
}

// Headlines returns the current set.
func (t *Ticker) Headlines() []domain.NewsHeadline {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]domain.NewsHeadline(nil), t.headlines...)
}

// Refresh fetches headlines for snap and replaces the current set, falling
// back to templated headlines when the source fails. The returned set is the
// one this call produced, even if a newer refresh has since replaced it.
func (t *Ticker) Refresh(ctx context.Context, snap domain.Snapshot) []domain.NewsHeadline {
	t.mu.Lock()
	t.gen++
	gen := t.gen
	t.last, t.hasLast = snap, true
	t.mu.Unlock()

	source := string(domain.SourceRemote)
	texts, err := t.source.Headlines(ctx, domain.ContextSummary(snap.Climate))
	if err != nil {
		t.logger.Warn("headline refresh unavailable, using fallback", "error", err)
		t.metrics.Fallbacks.WithLabelValues(narrative.OpHeadlines).Inc()
		texts = domain.FallbackHeadlines(snap.Inputs.Location, snap.Rise, snap.Inputs.StormCategory)
		source = string(domain.SourceFallback)
	}
	headlines := domain.BuildHeadlines(texts)

	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.gen {
		t.logger.Debug("discarding superseded headline refresh", "generation", gen)
		return headlines
	}
	t.headlines = headlines
	t.metrics.HeadlineRefreshes.WithLabelValues(source).Inc()
	return headlines
}

// RefreshLatest re-runs Refresh for the last seen snapshot. It returns an
// error if no snapshot has been applied yet.
func (t *Ticker) RefreshLatest(ctx context.Context) ([]domain.NewsHeadline, error) {
	t.mu.Lock()
	snap, ok := t.last, t.hasLast
	t.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no simulation applied yet")
	}
	return t.Refresh(ctx, snap), nil
}

// OnSnapshot refreshes headlines in the background for each applied snapshot.
func (t *Ticker) OnSnapshot(_ context.Context, snap domain.Snapshot) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
		defer cancel()
		t.Refresh(ctx, snap)
	}()
}

// Start schedules periodic refreshes of the latest snapshot. A non-positive
// interval disables the schedule.
func (t *Ticker) Start(interval time.Duration) error {
	if interval <= 0 {
		return nil
	}

	s := gocron.NewScheduler(time.UTC)
	_, err := s.Every(interval).WaitForSchedule().SingletonMode().Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
		defer cancel()
		if _, err := t.RefreshLatest(ctx); err != nil {
			t.logger.Debug("scheduled headline refresh skipped", "reason", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule headline refresh: %w", err)
	}

	t.scheduler = s
	s.StartAsync()
	t.logger.Info("headline refresh scheduled", "interval", interval)
	return nil
}

// Stop halts the schedule and waits for background refreshes.
func (t *Ticker) Stop() {
	if t.scheduler != nil {
		t.scheduler.Stop()
	}
	t.wg.Wait()
}
