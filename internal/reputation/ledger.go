package reputation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/ids"
	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/serviceerror"
	"go.uber.org/zap"
)

const (
	opLedgerNew        = "reputation.ledger.new"
	opAward            = "reputation.award"
	opRequire          = "reputation.require"
	opHistory          = "reputation.history"
	opDailyStatus      = "reputation.daily_status"
	reversalPrefix     = "Reversal: "
	reasonHolderFailed = "holder_lookup_failed"
	reasonTallyFailed  = "tally_failed"
	reasonAppendFailed = "entry_append_failed"
	reasonTotalFailed  = "total_update_failed"
	reasonIDFailed     = "id_generation_failed"
	reasonQueryFailed  = "query_failed"
)

var (
	errMissingUsers      = errors.New("user directory is required")
	errMissingHistory    = errors.New("history store is required")
	errMissingIDProvider = errors.New("id provider is required")
)

// LedgerConfig describes the collaborators of a Ledger. The stores are expected
// to be bound to the caller's transaction.
type LedgerConfig struct {
	Users      UserDirectory
	History    HistoryStore
	Policy     Policy
	Clock      func() time.Time
	IDProvider ids.Provider
	Logger     *zap.Logger
}

// Ledger applies reputation awards and reversals under the daily cap and floor rules.
type Ledger struct {
	users      UserDirectory
	history    HistoryStore
	policy     Policy
	clock      func() time.Time
	idProvider ids.Provider
	logger     *zap.Logger
}

// NewLedger validates the configuration and returns a Ledger.
func NewLedger(cfg LedgerConfig) (*Ledger, error) {
	if cfg.Users == nil {
		return nil, serviceerror.New(opLedgerNew, "missing_users", errMissingUsers)
	}
	if cfg.History == nil {
		return nil, serviceerror.New(opLedgerNew, "missing_history", errMissingHistory)
	}
	if cfg.IDProvider == nil {
		return nil, serviceerror.New(opLedgerNew, "missing_id_provider", errMissingIDProvider)
	}
	policy := cfg.Policy
	if policy.Thresholds == nil {
		policy = DefaultPolicy()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		users:      cfg.Users,
		history:    cfg.History,
		policy:     policy,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// Policy returns the policy the ledger enforces.
func (l *Ledger) Policy() Policy {
	return l.policy
}

// Award applies the action's point value to the user.
func (l *Ledger) Award(ctx context.Context, request AwardRequest) (AwardResult, error) {
	if !request.Action.Valid() {
		return AwardResult{}, fmt.Errorf("%w: %q", ErrInvalidAction, request.Action)
	}
	return l.apply(ctx, request, request.Action.Points(), false)
}

// Reverse writes the inverse of the action's point value as a new entry. It is
// subject to the cap and floor exactly like Award, so undoing a penalty is a
// gain that can be capped.
func (l *Ledger) Reverse(ctx context.Context, request AwardRequest) (AwardResult, error) {
	if !request.Action.Valid() {
		return AwardResult{}, fmt.Errorf("%w: %q", ErrInvalidAction, request.Action)
	}
	return l.apply(ctx, request, -request.Action.Points(), true)
}

func (l *Ledger) apply(ctx context.Context, request AwardRequest, points int, reversal bool) (AwardResult, error) {
	userID := strings.TrimSpace(request.UserID)
	fields := []zap.Field{
		zap.String("user_id", userID),
		zap.String("action", request.Action.String()),
		zap.Bool("reversal", reversal),
	}

	holder, err := l.users.FindReputationHolder(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUnknownUser) {
			return AwardResult{}, err
		}
		l.logError(opAward, reasonHolderFailed, err, fields...)
		return AwardResult{}, serviceerror.New(opAward, reasonHolderFailed, err)
	}

	now := l.clock().UTC()
	tally, found, err := l.history.LockTally(ctx, userID, DayKey(now))
	if err != nil {
		l.logError(opAward, reasonTallyFailed, err, fields...)
		return AwardResult{}, serviceerror.New(opAward, reasonTallyFailed, err)
	}
	if !found {
		seeded, err := l.history.SumPointsForUserOnDay(ctx, userID, now)
		if err != nil {
			l.logError(opAward, reasonTallyFailed, err, fields...)
			return AwardResult{}, serviceerror.New(opAward, reasonTallyFailed, err)
		}
		tally.NetPoints = seeded
	}

	if points > 0 && tally.Gains() >= l.policy.DailyCap {
		l.logger.Debug("reputation gain capped",
			append(fields, zap.Int("points", points), zap.Int("earned_today", tally.Gains()))...)
		return AwardResult{Capped: true, Total: holder.Total}, nil
	}

	entryID, err := l.idProvider.NewID()
	if err != nil {
		l.logError(opAward, reasonIDFailed, err, fields...)
		return AwardResult{}, serviceerror.New(opAward, reasonIDFailed, err)
	}
	description := request.Action.Description()
	if reversal {
		description = reversalPrefix + description
	}
	entry := Entry{
		EntryID:          entryID,
		UserID:           userID,
		Action:           request.Action,
		Points:           points,
		Reversal:         reversal,
		QuestionID:       optionalString(request.Refs.QuestionID),
		AnswerID:         optionalString(request.Refs.AnswerID),
		VoteID:           optionalString(request.Refs.VoteID),
		Description:      description,
		CreatedAtSeconds: now.Unix(),
	}
	if err := l.history.Append(ctx, &entry); err != nil {
		l.logError(opAward, reasonAppendFailed, err, fields...)
		return AwardResult{}, serviceerror.New(opAward, reasonAppendFailed, err)
	}

	tally.NetPoints += points
	tally.UpdatedAtSeconds = now.Unix()
	if err := l.history.SaveTally(ctx, tally, !found); err != nil {
		l.logError(opAward, reasonTallyFailed, err, fields...)
		return AwardResult{}, serviceerror.New(opAward, reasonTallyFailed, err)
	}

	total := holder.Total + points
	if total < Floor {
		total = Floor
	}
	applied := total - holder.Total
	if _, err := l.users.ApplyReputationDelta(ctx, userID, applied, holder.Version); err != nil {
		if errors.Is(err, ErrVersionConflict) {
			return AwardResult{}, err
		}
		l.logError(opAward, reasonTotalFailed, err, fields...)
		return AwardResult{}, serviceerror.New(opAward, reasonTotalFailed, err)
	}

	return AwardResult{Entry: &entry, Total: total, Applied: applied}, nil
}

// Total returns the user's materialized reputation.
func (l *Ledger) Total(ctx context.Context, userID string) (int, error) {
	holder, err := l.users.FindReputationHolder(ctx, userID)
	if err != nil {
		return 0, err
	}
	return holder.Total, nil
}

// Require fails with *InsufficientReputationError unless the user meets the
// privilege threshold.
func (l *Ledger) Require(ctx context.Context, userID string, privilege Privilege) error {
	holder, err := l.users.FindReputationHolder(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUnknownUser) {
			return err
		}
		l.logError(opRequire, reasonHolderFailed, err, zap.String("user_id", userID))
		return serviceerror.New(opRequire, reasonHolderFailed, err)
	}
	required := l.policy.Threshold(privilege)
	if holder.Total < required {
		return &InsufficientReputationError{Privilege: privilege, Required: required, Actual: holder.Total}
	}
	return nil
}

// Privileges evaluates the user's current total against every threshold.
func (l *Ledger) Privileges(ctx context.Context, userID string) (map[Privilege]bool, error) {
	total, err := l.Total(ctx, userID)
	if err != nil {
		return nil, err
	}
	return l.policy.Privileges(total), nil
}

// History returns the user's entries, newest first.
func (l *Ledger) History(ctx context.Context, userID string) ([]Entry, error) {
	entries, err := l.history.List(ctx, userID)
	if err != nil {
		l.logError(opHistory, reasonQueryFailed, err, zap.String("user_id", userID))
		return nil, serviceerror.New(opHistory, reasonQueryFailed, err)
	}
	return entries, nil
}

// HistoryBetween returns entries between the start of fromDay and the end of toDay (UTC), newest first.
func (l *Ledger) HistoryBetween(ctx context.Context, userID string, fromDay, toDay time.Time) ([]Entry, error) {
	start, _ := dayBounds(fromDay)
	_, end := dayBounds(toDay)
	entries, err := l.history.ListBetween(ctx, userID, start, end)
	if err != nil {
		l.logError(opHistory, reasonQueryFailed, err, zap.String("user_id", userID))
		return nil, serviceerror.New(opHistory, reasonQueryFailed, err)
	}
	return entries, nil
}

// DailyStatus reports today's earned gains against the cap.
func (l *Ledger) DailyStatus(ctx context.Context, userID string) (DailyStatus, error) {
	now := l.clock().UTC()
	earned, err := l.history.SumGainsForUserOnDay(ctx, userID, now)
	if err != nil {
		l.logError(opDailyStatus, reasonQueryFailed, err, zap.String("user_id", userID))
		return DailyStatus{}, serviceerror.New(opDailyStatus, reasonQueryFailed, err)
	}
	remaining := l.policy.DailyCap - earned
	if remaining < 0 {
		remaining = 0
	}
	return DailyStatus{
		Day:       DayKey(now),
		Earned:    earned,
		Cap:       l.policy.DailyCap,
		Remaining: remaining,
		Reached:   earned >= l.policy.DailyCap,
	}, nil
}

func (l *Ledger) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	l.logger.Error("reputation ledger error", attrs...)
}
