package voting

import (
	"context"
	"strings"

	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/content"
	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/notifications"
	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/reputation"
)

const (
	opAcceptAnswer   = "voting.accept_answer"
	opUnacceptAnswer = "voting.unaccept_answer"
)

// AcceptResult reports an acceptance change. Changed is false when the answer
// was already accepted; Unaccepted lists answers that lost acceptance.
type AcceptResult struct {
	AnswerID   string
	QuestionID string
	Changed    bool
	Unaccepted []string
}

// AcceptAnswer marks the answer as the accepted one of its question. Any other
// accepted answer is unaccepted first, with its author debited.
func (e *Engine) AcceptAnswer(ctx context.Context, actorID, answerID string) (AcceptResult, error) {
	var result AcceptResult
	_, err := e.transact(ctx, opAcceptAnswer, func(u *unit) error {
		answer, answers, err := u.lockThread(ctx, actorID, answerID)
		if err != nil {
			return err
		}
		result = AcceptResult{AnswerID: answer.ID, QuestionID: answer.QuestionID}
		if answer.Accepted {
			return nil
		}

		for _, other := range answers {
			if !other.Accepted || other.ID == answer.ID {
				continue
			}
			if err := u.content.SetAccepted(ctx, other.ID, false); err != nil {
				return err
			}
			if _, err := u.reputation.Award(ctx, reputation.AwardRequest{
				UserID: other.AuthorID,
				Action: reputation.ActionAnswerUnaccepted,
				Refs:   reputation.Refs{QuestionID: other.QuestionID, AnswerID: other.ID},
			}); err != nil {
				return err
			}
			result.Unaccepted = append(result.Unaccepted, other.ID)
		}

		if err := u.content.SetAccepted(ctx, answer.ID, true); err != nil {
			return err
		}
		if _, err := u.reputation.Award(ctx, reputation.AwardRequest{
			UserID: answer.AuthorID,
			Action: reputation.ActionAnswerAccepted,
			Refs:   reputation.Refs{QuestionID: answer.QuestionID, AnswerID: answer.ID},
		}); err != nil {
			return err
		}
		result.Changed = true
		u.publish(notifications.Event{Kind: notifications.EventAnswerAccepted, Ref: content.AnswerRef(answer.ID), ActorID: actorID})
		return nil
	})
	if err != nil {
		return AcceptResult{}, err
	}
	return result, nil
}

// UnacceptAnswer withdraws acceptance and debits the answer author.
func (e *Engine) UnacceptAnswer(ctx context.Context, actorID, answerID string) (AcceptResult, error) {
	var result AcceptResult
	_, err := e.transact(ctx, opUnacceptAnswer, func(u *unit) error {
		answer, _, err := u.lockThread(ctx, actorID, answerID)
		if err != nil {
			return err
		}
		if !answer.Accepted {
			return ErrAnswerNotAccepted
		}
		if err := u.content.SetAccepted(ctx, answer.ID, false); err != nil {
			return err
		}
		if _, err := u.reputation.Award(ctx, reputation.AwardRequest{
			UserID: answer.AuthorID,
			Action: reputation.ActionAnswerUnaccepted,
			Refs:   reputation.Refs{QuestionID: answer.QuestionID, AnswerID: answer.ID},
		}); err != nil {
			return err
		}
		result = AcceptResult{AnswerID: answer.ID, QuestionID: answer.QuestionID, Changed: true, Unaccepted: []string{answer.ID}}
		return nil
	})
	if err != nil {
		return AcceptResult{}, err
	}
	return result, nil
}

// lockThread checks that actorID owns the answer's question and returns the
// answer as read under the row locks on all of the question's answers.
func (u *unit) lockThread(ctx context.Context, actorID, answerID string) (content.Answer, []content.Answer, error) {
	answer, err := u.content.Answer(ctx, strings.TrimSpace(answerID))
	if err != nil {
		return content.Answer{}, nil, err
	}
	question, err := u.content.Question(ctx, answer.QuestionID)
	if err != nil {
		return content.Answer{}, nil, err
	}
	if question.AuthorID != strings.TrimSpace(actorID) {
		return content.Answer{}, nil, ErrNotQuestionOwner
	}
	answers, err := u.content.LockAnswersOfQuestion(ctx, question.ID)
	if err != nil {
		return content.Answer{}, nil, err
	}
	for _, candidate := range answers {
		if candidate.ID == answer.ID {
			return candidate, answers, nil
		}
	}
	return answer, answers, nil
}
