// Package scheduler runs the periodic follow-up sweep over stalled
// conversations.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"careline-agent/internal/domain"
	"careline-agent/internal/usecase"
)

const (
	defaultInterval    = 1 * time.Hour
	defaultConcurrency = 4
)

// IdleLister finds conversations stalled in the given states since cutoff.
type IdleLister interface {
	ListIdle(ctx context.Context, states []domain.State, cutoff time.Time) ([]string, error)
}

// FollowUpRunner executes one follow-up under the conversation's lock.
type FollowUpRunner interface {
	RunFollowUp(ctx context.Context, identity string, kind usecase.FollowUpKind) error
}

// Campaign pairs a follow-up kind with the idle duration that triggers it.
type Campaign struct {
	Kind    usecase.FollowUpKind
	IdleFor time.Duration
}

// DefaultCampaigns mirrors the production nudge policy: stalled funnel
// conversations after 4 hours, unpaid checkouts after 24.
func DefaultCampaigns() []Campaign {
	return []Campaign{
		{Kind: usecase.FollowUpQualification, IdleFor: 4 * time.Hour},
		{Kind: usecase.FollowUpPayment, IdleFor: 24 * time.Hour},
	}
}

// Scheduler sweeps the store on a fixed interval and hands each stalled
// identity to the runner. Send-at-most-once is enforced by the runner, not
// here; the sweep may legitimately see an identity twice.
type Scheduler struct {
	lister      IdleLister
	runner      FollowUpRunner
	campaigns   []Campaign
	interval    time.Duration
	concurrency int
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures NewScheduler.
type Option func(*Scheduler)

// WithInterval overrides the sweep interval.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.interval = d }
}

// WithConcurrency bounds the number of follow-ups in flight per sweep.
func WithConcurrency(n int) Option {
	return func(s *Scheduler) { s.concurrency = n }
}

// WithCampaigns replaces the default campaign set.
func WithCampaigns(campaigns []Campaign) Option {
	return func(s *Scheduler) { s.campaigns = campaigns }
}

// WithLogger sets the scheduler logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

// NewScheduler builds a Scheduler with the default campaigns.
func NewScheduler(lister IdleLister, runner FollowUpRunner, opts ...Option) (*Scheduler, error) {
	if lister == nil {
		return nil, errors.New("scheduler: idle lister must not be nil")
	}
	if runner == nil {
		return nil, errors.New("scheduler: follow-up runner must not be nil")
	}
	s := &Scheduler{
		lister:      lister,
		runner:      runner,
		campaigns:   DefaultCampaigns(),
		interval:    defaultInterval,
		concurrency: defaultConcurrency,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.interval <= 0 {
		return nil, errors.New("scheduler: interval must be positive")
	}
	if s.concurrency < 1 {
		return nil, errors.New("scheduler: concurrency must be at least 1")
	}
	return s, nil
}

// Run sweeps on the configured interval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce executes a single sweep over every campaign. Per-identity failures
// are logged and skipped so one broken conversation never stalls the sweep.
func (s *Scheduler) RunOnce(ctx context.Context) {
	for _, campaign := range s.campaigns {
		cutoff := s.now().Add(-campaign.IdleFor)
		identities, err := s.lister.ListIdle(ctx, campaign.Kind.States(), cutoff)
		if err != nil {
			s.logger.Error("idle listing failed", "kind", campaign.Kind, "err", err)
			continue
		}
		if len(identities) == 0 {
			continue
		}
		s.logger.Info("follow-up sweep", "kind", campaign.Kind, "candidates", len(identities))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.concurrency)
		for _, identity := range identities {
			g.Go(func() error {
				if err := s.runner.RunFollowUp(gctx, identity, campaign.Kind); err != nil {
					s.logger.Error("follow-up failed", "identity", identity, "kind", campaign.Kind, "err", err)
				}
				return nil
			})
		}
		_ = g.Wait()
	}
}
