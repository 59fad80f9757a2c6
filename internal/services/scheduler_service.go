package services

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/yukikurage/checkin-bot/internal/constants"
	"github.com/yukikurage/checkin-bot/internal/metrics"
	"github.com/yukikurage/checkin-bot/internal/models"
	"github.com/yukikurage/checkin-bot/internal/repository"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

var (
	ErrDispatchFailed = errors.New("prompt dispatch failed")
	ErrUserInactive   = errors.New("user is inactive")

	errNotEligible = errors.New("user is not eligible for a prompt")
)

// SchedulerOptions configures the cadence scheduler.
type SchedulerOptions struct {
	DispatchTimeout    time.Duration
	Concurrency        int
	DefaultCadenceDays int
}

// CycleResult summarizes one scheduler pass.
type CycleResult struct {
	Due      int `json:"due"`
	Prompted int `json:"prompted"`
	Failed   int `json:"failed"`
	Skipped  int `json:"skipped"`
}

// SchedulerService prompts users whose due date has passed. It holds no
// state between calls; overlapping cycles are serialized per user by a row
// lock taken in the same transaction that advances the due date.
type SchedulerService struct {
	store           repository.Store
	notifier        Notifier
	dispatchTimeout time.Duration
	concurrency     int
	defaultCadence  int
	now             func() time.Time
}

// NewSchedulerService creates a new SchedulerService.
func NewSchedulerService(store repository.Store, notifier Notifier, opts SchedulerOptions) *SchedulerService {
	if opts.DispatchTimeout <= 0 {
		opts.DispatchTimeout = 5 * time.Second
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.DefaultCadenceDays <= 0 {
		opts.DefaultCadenceDays = constants.DefaultCadenceDays
	}
	return &SchedulerService{
		store:           store,
		notifier:        notifier,
		dispatchTimeout: opts.DispatchTimeout,
		concurrency:     opts.Concurrency,
		defaultCadence:  opts.DefaultCadenceDays,
		now:             utcNow,
	}
}

// RunDueCycle prompts every due user once. Failures for one user do not stop
// the cycle; only failing to read the roster aborts it. The cycle runs to
// completion even if the caller goes away, so a prompt that was sent is
// always followed by its due-date advance.
func (s *SchedulerService) RunDueCycle(ctx context.Context) (CycleResult, error) {
	ctx = context.WithoutCancel(ctx)
	metrics.CyclesTotal.Inc()

	ids, err := s.store.Users().ListDueIDs(ctx, s.now())
	if err != nil {
		return CycleResult{}, fmt.Errorf("failed to list due users: %w", err)
	}

	var prompted, failed, skipped atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(s.concurrency)

	for _, id := range ids {
		id := id
		g.Go(func() error {
			logger := log.WithField("user_id", id)
			err := s.promptUser(ctx, id, true)
			switch {
			case err == nil:
				prompted.Add(1)
				metrics.PromptsTotal.WithLabelValues("sent").Inc()
			case errors.Is(err, errNotEligible), errors.Is(err, repository.ErrNotDue):
				skipped.Add(1)
				metrics.PromptsTotal.WithLabelValues("skipped").Inc()
				logger.Debug("user no longer due, skipping")
			case errors.Is(err, ErrDispatchFailed):
				failed.Add(1)
				metrics.PromptsTotal.WithLabelValues("failed").Inc()
				logger.WithError(err).Warn("prompt dispatch failed, user stays due")
			default:
				failed.Add(1)
				metrics.PromptsTotal.WithLabelValues("failed").Inc()
				logger.WithError(err).Error("failed to prompt user")
			}
			return nil
		})
	}
	_ = g.Wait()

	result := CycleResult{
		Due:      len(ids),
		Prompted: int(prompted.Load()),
		Failed:   int(failed.Load()),
		Skipped:  int(skipped.Load()),
	}
	log.WithFields(log.Fields{
		"due":      result.Due,
		"prompted": result.Prompted,
		"failed":   result.Failed,
		"skipped":  result.Skipped,
	}).Info("scheduler cycle finished")

	return result, nil
}

// ChaseNow prompts one active user immediately, regardless of due date.
// Like RunDueCycle it is not cancelled by the caller.
func (s *SchedulerService) ChaseNow(ctx context.Context, userID uint64) error {
	ctx = context.WithoutCancel(ctx)
	user, err := s.store.Users().FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to find user: %w", err)
	}
	if !user.IsActive {
		return ErrUserInactive
	}

	err = s.promptUser(ctx, userID, false)
	if errors.Is(err, errNotEligible) {
		return ErrUserInactive
	}
	if err == nil {
		metrics.PromptsTotal.WithLabelValues("sent").Inc()
		log.WithField("user_id", userID).Info("chased user")
	} else if errors.Is(err, ErrDispatchFailed) {
		metrics.PromptsTotal.WithLabelValues("failed").Inc()
	}
	return err
}

// promptUser locks the user row, dispatches, and advances the due date in
// one transaction. A failed dispatch rolls back and leaves the row untouched.
func (s *SchedulerService) promptUser(ctx context.Context, userID uint64, requireDue bool) error {
	now := s.now()

	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		user, err := tx.Users().LockForPrompt(ctx, userID, now, requireDue)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errNotEligible
			}
			return fmt.Errorf("failed to lock user: %w", err)
		}

		if err := s.dispatch(ctx, user); err != nil {
			return err
		}

		var dueAt *time.Time
		if requireDue {
			dueAt = &now
		}
		nextDue := now.Add(time.Duration(s.cadenceDays(user)) * 24 * time.Hour)
		if err := tx.Users().MarkPrompted(ctx, user.ID, now, nextDue, dueAt); err != nil {
			return fmt.Errorf("failed to advance due date: %w", err)
		}

		prompt := &models.Update{
			UserID:     user.ID,
			PromptedAt: &now,
			Source:     models.SourcePrompt,
		}
		if err := tx.Updates().Create(ctx, prompt); err != nil {
			return fmt.Errorf("failed to record prompt: %w", err)
		}
		return nil
	})

	if err != nil && !errors.Is(err, errNotEligible) && !errors.Is(err, ErrDispatchFailed) {
		// The message may already be out while the advance rolled back.
		log.WithError(err).WithField("user_id", userID).Error("prompt transaction failed after dispatch")
	}
	return err
}

func (s *SchedulerService) dispatch(ctx context.Context, user *models.User) error {
	dispatchCtx, cancel := context.WithTimeout(ctx, s.dispatchTimeout)
	defer cancel()

	start := time.Now()
	err := s.notifier.SendPrompt(dispatchCtx, user.ExternalID)
	metrics.DispatchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDispatchFailed, err)
	}
	return nil
}

func (s *SchedulerService) cadenceDays(user *models.User) int {
	if user.CadenceDays > 0 {
		return user.CadenceDays
	}
	return s.defaultCadence
}
