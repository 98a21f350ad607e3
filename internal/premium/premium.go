package premium

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/robfig/cron/v3"
)

const (
	MinMonths = 1
	MaxMonths = 120
	// DaysPerMonth is the fixed month length used for premium periods.
	DaysPerMonth = 30
)

var ErrInvalidMonths = errors.New("months must be between 1 and 120")

type Store interface {
	SetPremium(ctx context.Context, id int64, until time.Time) error
	RemovePremium(ctx context.Context, id int64) (bool, error)
	ExpirePremium(ctx context.Context, now time.Time) (int64, error)
}

type Service struct {
	store Store
	now   func() time.Time
	log   hclog.Logger
}

func NewService(store Store, log hclog.Logger) *Service {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Service{store: store, now: time.Now, log: log}
}

// Grant sets premium for months from now and returns the expiry.
func (s *Service) Grant(ctx context.Context, userID int64, months int) (time.Time, error) {
	if months < MinMonths || months > MaxMonths {
		return time.Time{}, fmt.Errorf("%d: %w", months, ErrInvalidMonths)
	}
	until := s.now().UTC().Add(time.Duration(months*DaysPerMonth) * 24 * time.Hour)
	if err := s.store.SetPremium(ctx, userID, until); err != nil {
		return time.Time{}, fmt.Errorf("grant premium to %d: %w", userID, err)
	}
	s.log.Info("premium granted", "user_id", userID, "months", months, "until", until)
	return until, nil
}

// Revoke reports false when the user is unknown.
func (s *Service) Revoke(ctx context.Context, userID int64) (bool, error) {
	ok, err := s.store.RemovePremium(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("revoke premium of %d: %w", userID, err)
	}
	if ok {
		s.log.Info("premium revoked", "user_id", userID)
	}
	return ok, nil
}

// Sweep clears every premium flag whose expiry has passed.
func (s *Service) Sweep(ctx context.Context) (int64, error) {
	n, err := s.store.ExpirePremium(ctx, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("sweep premium: %w", err)
	}
	if n > 0 {
		s.log.Info("expired premium cleared", "count", n)
	}
	return n, nil
}

// StartSweeper runs Sweep on schedule until ctx is done. An empty schedule
// disables it.
func (s *Service) StartSweeper(ctx context.Context, schedule string) (stop func(), err error) {
	if schedule == "" {
		return func() {}, nil
	}
	c := cron.New()
	_, err = c.AddFunc(schedule, func() {
		sweepCtx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()
		if _, err := s.Sweep(sweepCtx); err != nil {
			s.log.Error("premium sweep failed", "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("premium sweep schedule %q: %w", schedule, err)
	}
	c.Start()
	s.log.Info("premium sweeper started", "schedule", schedule)
	return func() { <-c.Stop().Done() }, nil
}
