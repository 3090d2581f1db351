package vectorstore

import (
	"log/slog"
	"sort"
	"time"

	"github.com/robfig/cron/v3"
)

// LifecycleConfig configures the tiering demotion task (spec §4.6):
// hot -> warm past HotMaxAge, warm -> cold past WarmMaxAge, both gated
// on "low access". Low access is operationalized as at-or-below the
// LowAccessQuantile-th percentile of access counts within the same
// (tier, age bracket), recomputed on every run rather than a fixed
// count, so it adapts as usage patterns shift.
type LifecycleConfig struct {
	HotMaxAge         time.Duration // default 7 days
	WarmMaxAge        time.Duration // default 30 days
	LowAccessQuantile float64       // default 0.25
	Schedule          string        // cron expression, default hourly
}

func DefaultLifecycleConfig() LifecycleConfig {
	return LifecycleConfig{
		HotMaxAge:         7 * 24 * time.Hour,
		WarmMaxAge:        30 * 24 * time.Hour,
		LowAccessQuantile: 0.25,
		Schedule:          "0 * * * *",
	}
}

// Lifecycle periodically demotes chunks between tiers. It never deletes
// chunks; cold is the terminal, archived-online tier (spec §4.6, §9).
type Lifecycle struct {
	store  Store
	cfg    LifecycleConfig
	cron   *cron.Cron
	logger *slog.Logger
}

func NewLifecycle(store Store, cfg LifecycleConfig) *Lifecycle {
	return &Lifecycle{
		store:  store,
		cfg:    cfg,
		cron:   cron.New(),
		logger: slog.Default().With("component", "lifecycle"),
	}
}

// Start registers the demotion job and begins the cron scheduler. Stop
// with Lifecycle.Stop.
func (l *Lifecycle) Start() error {
	_, err := l.cron.AddFunc(l.cfg.Schedule, l.runOnce)
	if err != nil {
		return err
	}
	l.cron.Start()
	return nil
}

func (l *Lifecycle) Stop() {
	<-l.cron.Stop().Done()
}

func (l *Lifecycle) runOnce() {
	now := time.Now().UTC()

	if err := l.demote(TierHot, TierWarm, now.Add(-l.cfg.HotMaxAge)); err != nil {
		l.logger.Error("demoting hot chunks", "error", err)
	}
	if err := l.demote(TierWarm, TierCold, now.Add(-l.cfg.WarmMaxAge)); err != nil {
		l.logger.Error("demoting warm chunks", "error", err)
	}
}

func (l *Lifecycle) demote(from, to Tier, olderThan time.Time) error {
	counts, err := l.store.AccessCounts(from, olderThan)
	if err != nil {
		return err
	}
	if len(counts) == 0 {
		return nil
	}

	threshold := quantile(counts, l.cfg.LowAccessQuantile)

	var ids []string
	for _, ac := range counts {
		if ac.AccessCount <= threshold {
			ids = append(ids, ac.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	if err := l.store.SetTier(ids, to); err != nil {
		return err
	}
	l.logger.Info("demoted chunks", "from", from, "to", to, "count", len(ids), "threshold", threshold)
	return nil
}

// quantile returns the access count at the given quantile (0..1) of
// counts, using nearest-rank selection over the sorted access counts.
func quantile(counts []AccessCount, q float64) int {
	values := make([]int, len(counts))
	for i, ac := range counts {
		values[i] = ac.AccessCount
	}
	sort.Ints(values)

	idx := int(q * float64(len(values)-1))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(values) {
		idx = len(values) - 1
	}
	return values[idx]
}
