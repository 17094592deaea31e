package voting

import (
	"context"

	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/content"
	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/reputation"
	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/votes"
)

const opCastVote = "voting.cast_vote"

// VoteResult reports the stored transition and the item's score after it.
type VoteResult struct {
	Outcome  votes.Outcome
	VoteID   string
	Previous *votes.Type
	Current  *votes.Type
	Score    int64
}

type effect struct {
	toVoter bool
	action  reputation.Action
}

// effectsOf lists the awards a vote of the given type holds while it stands.
func effectsOf(kind content.Kind, voteType votes.Type) []effect {
	switch {
	case kind == content.KindQuestion && voteType == votes.TypeUpvote:
		return []effect{{action: reputation.ActionQuestionUpvote}}
	case kind == content.KindQuestion && voteType == votes.TypeDownvote:
		return []effect{{action: reputation.ActionQuestionDownvote}, {toVoter: true, action: reputation.ActionDownvoteGiven}}
	case kind == content.KindAnswer && voteType == votes.TypeUpvote:
		return []effect{{action: reputation.ActionAnswerUpvote}}
	case kind == content.KindAnswer && voteType == votes.TypeDownvote:
		return []effect{{action: reputation.ActionAnswerDownvote}, {toVoter: true, action: reputation.ActionDownvoteGiven}}
	default:
		return nil
	}
}

func privilegeFor(voteType votes.Type) reputation.Privilege {
	if voteType == votes.TypeDownvote {
		return reputation.PrivilegeDownvote
	}
	return reputation.PrivilegeUpvote
}

// CastVote records, switches or toggles off the voter's vote and applies the
// matching reputation changes in the same transaction. The voter needs the
// privilege of the requested type for every cast, toggle-off included. Leaving a vote state
// reverses exactly the awards of that state; a switch reverses the old state
// before applying the new one.
func (e *Engine) CastVote(ctx context.Context, voterID string, ref content.Ref, voteType votes.Type) (VoteResult, error) {
	var result VoteResult
	_, err := e.transact(ctx, opCastVote, func(u *unit) error {
		plan, err := u.votes.Plan(ctx, voterID, ref, voteType)
		if err != nil {
			return err
		}
		if err := u.reputation.Require(ctx, plan.VoterID, privilegeFor(voteType)); err != nil {
			return err
		}
		cast, err := u.votes.Apply(ctx, plan)
		if err != nil {
			return err
		}

		refs, err := u.refsFor(ctx, ref, cast.VoteID)
		if err != nil {
			return err
		}
		if cast.Previous != nil {
			for _, fx := range effectsOf(ref.Kind, *cast.Previous) {
				request := reputation.AwardRequest{UserID: fx.recipient(plan), Action: fx.action, Refs: refs}
				if _, err := u.reputation.Reverse(ctx, request); err != nil {
					return err
				}
			}
		}
		if cast.Current != nil {
			for _, fx := range effectsOf(ref.Kind, *cast.Current) {
				request := reputation.AwardRequest{UserID: fx.recipient(plan), Action: fx.action, Refs: refs}
				if _, err := u.reputation.Award(ctx, request); err != nil {
					return err
				}
			}
		}

		score, err := u.votes.Score(ctx, ref)
		if err != nil {
			return err
		}
		result = VoteResult{
			Outcome:  cast.Outcome,
			VoteID:   cast.VoteID,
			Previous: cast.Previous,
			Current:  cast.Current,
			Score:    score,
		}
		return nil
	})
	if err != nil {
		return VoteResult{}, err
	}
	return result, nil
}

func (fx effect) recipient(plan votes.Plan) string {
	if fx.toVoter {
		return plan.VoterID
	}
	return plan.AuthorID
}

func (u *unit) refsFor(ctx context.Context, ref content.Ref, voteID string) (reputation.Refs, error) {
	refs := reputation.Refs{VoteID: voteID}
	if ref.IsQuestion() {
		refs.QuestionID = ref.ID
		return refs, nil
	}
	questionID, err := u.content.QuestionOf(ctx, ref.ID)
	if err != nil {
		return reputation.Refs{}, err
	}
	refs.QuestionID = questionID
	refs.AnswerID = ref.ID
	return refs, nil
}

// Score returns the item's current score.
func (e *Engine) Score(ctx context.Context, ref content.Ref) (int64, error) {
	u, err := e.bind(e.db)
	if err != nil {
		return 0, err
	}
	if err := u.content.Require(ctx, ref); err != nil {
		return 0, err
	}
	return u.votes.Score(ctx, ref)
}

// Votes lists the stored votes on an item.
func (e *Engine) Votes(ctx context.Context, ref content.Ref) ([]votes.Vote, error) {
	u, err := e.bind(e.db)
	if err != nil {
		return nil, err
	}
	if err := u.content.Require(ctx, ref); err != nil {
		return nil, err
	}
	return u.votes.Votes(ctx, ref)
}
