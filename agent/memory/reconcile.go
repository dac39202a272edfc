package memory

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const DefaultReconcileInterval = 5 * time.Minute

type ReconcileConfig struct {
	Interval time.Duration `envconfig:"INTERVAL" split_words:"true" default:"5m"`
	Enabled  bool          `envconfig:"ENABLED" split_words:"true" default:"true"`
}

// SyncReport summarizes one reconciliation pass.
type SyncReport struct {
	Conversations int
	Copied        int
	Skipped       int
}

// Reconciler copies the ephemeral tier into the durable tier and prunes
// expired entries from both. Every pass is idempotent.
type Reconciler struct {
	ephemeral Ephemeral
	durable   Durable
	logger    zerolog.Logger
	now       func() time.Time
}

type ReconcilerOption func(*Reconciler)

func WithReconcilerLogger(logger zerolog.Logger) ReconcilerOption {
	return func(r *Reconciler) { r.logger = logger }
}

func WithReconcilerClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

func NewReconciler(ephemeral Ephemeral, durable Durable, opts ...ReconcilerOption) (*Reconciler, error) {
	if ephemeral == nil {
		return nil, errors.New("ephemeral store is required")
	}
	if durable == nil {
		return nil, errors.New("durable store is required")
	}
	r := &Reconciler{
		ephemeral: ephemeral,
		durable:   durable,
		logger:    log.Logger.With().Str("component", "memory.reconciler").Logger(),
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

// SyncEphemeralWithDurable writes every live ephemeral entry to the durable
// tier. Entries already present are skipped by id.
func (r *Reconciler) SyncEphemeralWithDurable(ctx context.Context) (SyncReport, error) {
	var report SyncReport

	ids, err := r.ephemeral.Conversations(ctx)
	if err != nil {
		return report, err
	}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		entries, err := r.ephemeral.Window(ctx, id)
		if err != nil {
			return report, err
		}
		report.Conversations++
		if len(entries) == 0 {
			continue
		}
		n, err := r.durable.Save(ctx, entries)
		if err != nil {
			return report, err
		}
		report.Copied += n
		report.Skipped += len(entries) - n
	}
	return report, nil
}

// PurgeExpired prunes both tiers and returns how many entries each dropped.
func (r *Reconciler) PurgeExpired(ctx context.Context) (ephemeral, durable int, err error) {
	now := r.now()
	if ephemeral, err = r.ephemeral.PurgeExpired(ctx, now); err != nil {
		return ephemeral, 0, err
	}
	durable, err = r.durable.DeleteExpired(ctx, now)
	return ephemeral, durable, err
}

// Run reconciles once immediately, then every interval, until ctx is done.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultReconcileInterval
	}

	r.pass(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("reconciler stopped")
			return ctx.Err()
		case <-ticker.C:
			r.pass(ctx)
		}
	}
}

func (r *Reconciler) pass(ctx context.Context) {
	start := r.now()

	report, err := r.SyncEphemeralWithDurable(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("memory sync failed")
	}
	purgedEphemeral, purgedDurable, perr := r.PurgeExpired(ctx)
	if perr != nil {
		r.logger.Error().Err(perr).Msg("memory purge failed")
	}

	r.logger.Info().
		Int("conversations", report.Conversations).
		Int("copied", report.Copied).
		Int("skipped", report.Skipped).
		Int("purged_ephemeral", purgedEphemeral).
		Int("purged_durable", purgedDurable).
		Dur("elapsed", r.now().Sub(start)).
		Msg("memory reconcile pass")
}
