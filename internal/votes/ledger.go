package votes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/content"
	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/ids"
	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/serviceerror"
	"go.uber.org/zap"
)

const (
	opCast  = "votes.cast"
	opScore = "votes.score"
)

// ContentDirectory resolves the author of vote-able content.
type ContentDirectory interface {
	ResolveAuthor(ctx context.Context, ref content.Ref) (string, error)
}

// LedgerConfig wires the vote ledger.
type LedgerConfig struct {
	Store      Store
	Content    ContentDirectory
	Clock      func() time.Time
	IDProvider ids.Provider
	Logger     *zap.Logger
}

// Ledger records at most one vote per voter and item and reports how each
// cast changed it.
type Ledger struct {
	store      Store
	content    ContentDirectory
	clock      func() time.Time
	idProvider ids.Provider
	logger     *zap.Logger
}

// NewLedger validates the configuration and returns a Ledger.
func NewLedger(cfg LedgerConfig) (*Ledger, error) {
	if cfg.Store == nil {
		return nil, serviceerror.New("votes.ledger.new", "missing_store", errors.New("vote store is required"))
	}
	if cfg.Content == nil {
		return nil, serviceerror.New("votes.ledger.new", "missing_content", errors.New("content directory is required"))
	}
	if cfg.IDProvider == nil {
		return nil, serviceerror.New("votes.ledger.new", "missing_id_provider", errors.New("id provider is required"))
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
		store:      cfg.Store,
		content:    cfg.Content,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// Plan is a validated cast whose outcome is known but not yet stored.
type Plan struct {
	VoterID   string
	Ref       content.Ref
	Requested Type
	AuthorID  string
	Outcome   Outcome
	existing  Vote
}

// Cast applies the voter's request: a first vote is recorded, the same type
// again removes it, and the opposite type switches it.
func (l *Ledger) Cast(ctx context.Context, voterID string, ref content.Ref, voteType Type) (CastResult, error) {
	plan, err := l.Plan(ctx, voterID, ref, voteType)
	if err != nil {
		return CastResult{}, err
	}
	return l.Apply(ctx, plan)
}

// Plan validates a cast and locks the voter's current vote without changing it.
func (l *Ledger) Plan(ctx context.Context, voterID string, ref content.Ref, voteType Type) (Plan, error) {
	if !voteType.Valid() {
		return Plan{}, ErrInvalidType
	}
	voterID = strings.TrimSpace(voterID)
	fields := castFields(voterID, ref, voteType)

	authorID, err := l.content.ResolveAuthor(ctx, ref)
	if err != nil {
		if errors.Is(err, content.ErrNotFound) {
			return Plan{}, ErrContentNotFound
		}
		if errors.Is(err, content.ErrInvalidRef) {
			return Plan{}, err
		}
		l.logError(opCast, "author_lookup_failed", err, fields...)
		return Plan{}, serviceerror.New(opCast, "author_lookup_failed", err)
	}
	if authorID == voterID {
		return Plan{}, ErrSelfVote
	}

	existing, found, err := l.store.Find(ctx, voterID, ref)
	if err != nil {
		l.logError(opCast, "lookup_failed", err, fields...)
		return Plan{}, serviceerror.New(opCast, "lookup_failed", err)
	}
	plan := Plan{VoterID: voterID, Ref: ref, Requested: voteType, AuthorID: authorID, existing: existing}
	switch {
	case !found:
		plan.Outcome = OutcomeNew
	case existing.VoteType == voteType:
		plan.Outcome = OutcomeRemoved
	default:
		plan.Outcome = OutcomeSwitched
	}
	return plan, nil
}

// Apply stores the planned transition.
func (l *Ledger) Apply(ctx context.Context, plan Plan) (CastResult, error) {
	fields := castFields(plan.VoterID, plan.Ref, plan.Requested)
	now := l.clock().UTC().Unix()

	switch plan.Outcome {
	case OutcomeNew:
		voteID, err := l.idProvider.NewID()
		if err != nil {
			l.logError(opCast, "id_generation_failed", err, fields...)
			return CastResult{}, serviceerror.New(opCast, "id_generation_failed", err)
		}
		vote := Vote{
			VoteID:           voteID,
			VoterID:          plan.VoterID,
			ContentKind:      plan.Ref.Kind,
			ContentID:        plan.Ref.ID,
			VoteType:         plan.Requested,
			CreatedAtSeconds: now,
			UpdatedAtSeconds: now,
		}
		if err := l.store.Create(ctx, &vote); err != nil {
			if errors.Is(err, ErrDuplicateVote) {
				return CastResult{}, err
			}
			l.logError(opCast, "insert_failed", err, fields...)
			return CastResult{}, serviceerror.New(opCast, "insert_failed", err)
		}
		return CastResult{Outcome: OutcomeNew, VoteID: voteID, Current: typePointer(plan.Requested), AuthorID: plan.AuthorID}, nil
	case OutcomeRemoved:
		if err := l.store.Delete(ctx, plan.existing.VoteID); err != nil {
			l.logError(opCast, "delete_failed", err, fields...)
			return CastResult{}, serviceerror.New(opCast, "delete_failed", err)
		}
		return CastResult{
			Outcome:  OutcomeRemoved,
			VoteID:   plan.existing.VoteID,
			Previous: typePointer(plan.existing.VoteType),
			AuthorID: plan.AuthorID,
		}, nil
	case OutcomeSwitched:
		if err := l.store.UpdateType(ctx, plan.existing.VoteID, plan.Requested, now); err != nil {
			l.logError(opCast, "update_failed", err, fields...)
			return CastResult{}, serviceerror.New(opCast, "update_failed", err)
		}
		return CastResult{
			Outcome:  OutcomeSwitched,
			VoteID:   plan.existing.VoteID,
			Previous: typePointer(plan.existing.VoteType),
			Current:  typePointer(plan.Requested),
			AuthorID: plan.AuthorID,
		}, nil
	default:
		return CastResult{}, fmt.Errorf("votes: unplanned outcome %q", plan.Outcome)
	}
}

// Tally counts the votes on an item.
func (l *Ledger) Tally(ctx context.Context, ref content.Ref) (Tally, error) {
	tally, err := l.store.CountByType(ctx, ref)
	if err != nil {
		l.logError(opScore, "query_failed", err, zap.String("ref", ref.String()))
		return Tally{}, serviceerror.New(opScore, "query_failed", err)
	}
	return tally, nil
}

// Score is upvotes minus downvotes, computed from the stored votes.
func (l *Ledger) Score(ctx context.Context, ref content.Ref) (int64, error) {
	tally, err := l.Tally(ctx, ref)
	if err != nil {
		return 0, err
	}
	return tally.Score(), nil
}

// Votes lists the votes on an item.
func (l *Ledger) Votes(ctx context.Context, ref content.Ref) ([]Vote, error) {
	list, err := l.store.List(ctx, ref)
	if err != nil {
		l.logError(opScore, "query_failed", err, zap.String("ref", ref.String()))
		return nil, serviceerror.New(opScore, "query_failed", err)
	}
	return list, nil
}

func castFields(voterID string, ref content.Ref, voteType Type) []zap.Field {
	return []zap.Field{
		zap.String("voter_id", voterID),
		zap.String("ref", ref.String()),
		zap.String("vote_type", voteType.String()),
	}
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
	l.logger.Error("vote ledger error", attrs...)
}
