package voting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/content"
	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/ids"
	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/notifications"
	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/reputation"
	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/serviceerror"
	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/users"
	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/votes"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultMaxRetries      = 5
	defaultInitialInterval = 10 * time.Millisecond
	defaultMaxInterval     = 250 * time.Millisecond
	defaultMaxElapsedTime  = 5 * time.Second
)

var (
	// ErrConcurrencyConflict indicates optimistic retries were exhausted.
	ErrConcurrencyConflict = errors.New("voting: concurrency conflict")
	// ErrNotQuestionOwner indicates someone other than the question author tried to accept or unaccept.
	ErrNotQuestionOwner = errors.New("voting: only the question author can change acceptance")
	// ErrAnswerNotAccepted indicates an unaccept of an answer that is not accepted.
	ErrAnswerNotAccepted = errors.New("voting: answer is not accepted")

	errMissingDatabase = errors.New("database handle is required")
)

// Config wires the voting engine.
type Config struct {
	Database          *gorm.DB
	Policy            reputation.Policy
	Clock             func() time.Time
	IDProvider        ids.Provider
	Logger            *zap.Logger
	MaxRetries        uint64
	RetryInterval     time.Duration
	RetryMaxInterval  time.Duration
	FanoutConcurrency int
}

// Engine coordinates votes, reputation and notifications. Every state change
// runs in one transaction; notifications fan out after it commits.
type Engine struct {
	db               *gorm.DB
	policy           reputation.Policy
	clock            func() time.Time
	idProvider       ids.Provider
	logger           *zap.Logger
	maxRetries       uint64
	retryInterval    time.Duration
	retryMaxInterval time.Duration
	fanout           *notifications.Fanout

	beforeCommit func(tx *gorm.DB) error
}

// unit is the set of collaborators bound to one transaction together with the
// events to publish once it commits.
type unit struct {
	content    *content.Directory
	votes      *votes.Ledger
	reputation *reputation.Ledger
	events     []notifications.Event
}

func (u *unit) publish(event notifications.Event) {
	u.events = append(u.events, event)
}

// NewEngine validates the configuration and constructs an Engine.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Database == nil {
		return nil, serviceerror.New("voting.new_engine", "missing_database", errMissingDatabase)
	}
	policy := cfg.Policy
	if policy.Thresholds == nil {
		policy = reputation.DefaultPolicy()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = ids.NewUUIDProvider()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = defaultMaxRetries
	}
	retryInterval := cfg.RetryInterval
	if retryInterval <= 0 {
		retryInterval = defaultInitialInterval
	}
	retryMaxInterval := cfg.RetryMaxInterval
	if retryMaxInterval <= 0 {
		retryMaxInterval = defaultMaxInterval
	}

	fanout, err := notifications.NewFanout(notifications.FanoutConfig{
		Store:       notifications.NewGormStore(cfg.Database),
		Followers:   content.NewDirectory(cfg.Database),
		Clock:       clock,
		IDProvider:  idProvider,
		Logger:      logger,
		Concurrency: cfg.FanoutConcurrency,
	})
	if err != nil {
		return nil, err
	}

	return &Engine{
		db:               cfg.Database,
		policy:           policy,
		clock:            clock,
		idProvider:       idProvider,
		logger:           logger,
		maxRetries:       maxRetries,
		retryInterval:    retryInterval,
		retryMaxInterval: retryMaxInterval,
		fanout:           fanout,
	}, nil
}

func (e *Engine) bind(db *gorm.DB) (*unit, error) {
	directory := content.NewDirectory(db)
	voteLedger, err := votes.NewLedger(votes.LedgerConfig{
		Store:      votes.NewGormStore(db),
		Content:    directory,
		Clock:      e.clock,
		IDProvider: e.idProvider,
		Logger:     e.logger,
	})
	if err != nil {
		return nil, err
	}
	reputationLedger, err := reputation.NewLedger(reputation.LedgerConfig{
		Users:      users.NewDirectory(db),
		History:    reputation.NewGormStore(db),
		Policy:     e.policy,
		Clock:      e.clock,
		IDProvider: e.idProvider,
		Logger:     e.logger,
	})
	if err != nil {
		return nil, err
	}
	return &unit{content: directory, votes: voteLedger, reputation: reputationLedger}, nil
}

// transact runs fn in a transaction, retrying the whole attempt on optimistic
// conflicts, and fans out the events of the committed attempt.
func (e *Engine) transact(ctx context.Context, operation string, fn func(u *unit) error) (notifications.FanoutResult, error) {
	var committed *unit
	attempt := 0
	run := func() error {
		attempt++
		err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			u, err := e.bind(tx)
			if err != nil {
				return err
			}
			if err := fn(u); err != nil {
				return err
			}
			if e.beforeCommit != nil {
				if err := e.beforeCommit(tx); err != nil {
					return err
				}
			}
			committed = u
			return nil
		})
		if err == nil {
			return nil
		}
		committed = nil
		if isRetryable(err) {
			e.logger.Warn("voting transaction conflict",
				zap.String("operation", operation),
				zap.Int("attempt", attempt),
				zap.Error(err))
			return err
		}
		return backoff.Permanent(err)
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(e.retryInterval),
		backoff.WithMaxInterval(e.retryMaxInterval),
		backoff.WithMaxElapsedTime(defaultMaxElapsedTime),
	), e.maxRetries)

	if err := backoff.Retry(run, backoff.WithContext(policy, ctx)); err != nil {
		if isRetryable(err) {
			e.logger.Error("voting retries exhausted",
				zap.String("operation", operation),
				zap.String("reason", "concurrency_conflict"),
				zap.Int("attempts", attempt),
				zap.Error(err))
			return notifications.FanoutResult{}, fmt.Errorf("%w: %v", ErrConcurrencyConflict, err)
		}
		return notifications.FanoutResult{}, e.classify(operation, err)
	}

	var total notifications.FanoutResult
	for _, event := range committed.events {
		result := e.fanout.Notify(ctx, event)
		total.Created += result.Created
		total.Failed += result.Failed
	}
	return total, nil
}

// classify passes domain errors through and codes everything else.
func (e *Engine) classify(operation string, err error) error {
	if isDomainError(err) || serviceerror.CodeOf(err) != "" {
		return err
	}
	e.logger.Error("voting engine error",
		zap.String("operation", operation),
		zap.String("reason", "transaction_failed"),
		zap.Error(err))
	return serviceerror.New(operation, "transaction_failed", err)
}

func isRetryable(err error) bool {
	return errors.Is(err, reputation.ErrVersionConflict) ||
		errors.Is(err, votes.ErrDuplicateVote) ||
		errors.Is(err, gorm.ErrDuplicatedKey)
}

func isDomainError(err error) bool {
	for _, target := range []error{
		votes.ErrSelfVote,
		votes.ErrContentNotFound,
		votes.ErrInvalidType,
		content.ErrNotFound,
		content.ErrInvalidRef,
		content.ErrInvalidInput,
		reputation.ErrInsufficientReputation,
		reputation.ErrUnknownUser,
		reputation.ErrInvalidAction,
		ErrNotQuestionOwner,
		ErrAnswerNotAccepted,
		context.Canceled,
		context.DeadlineExceeded,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
