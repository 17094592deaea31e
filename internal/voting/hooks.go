package voting

import (
	"context"

	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/content"
	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/notifications"
	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/reputation"
)

const opQuestionCreated = "voting.question_created"

// OnAnswerCreated notifies the question's followers about a committed answer.
func (e *Engine) OnAnswerCreated(ctx context.Context, answerID string) notifications.FanoutResult {
	return e.fanout.Notify(ctx, notifications.Event{Kind: notifications.EventNewAnswer, Ref: content.AnswerRef(answerID)})
}

// OnQuestionCreated records the zero-point QUESTION_ASKED entry for the author
// and notifies the followers of the question's tags.
func (e *Engine) OnQuestionCreated(ctx context.Context, questionID string) (notifications.FanoutResult, error) {
	fanout, err := e.transact(ctx, opQuestionCreated, func(u *unit) error {
		question, err := u.content.Question(ctx, questionID)
		if err != nil {
			return err
		}
		if _, err := u.reputation.Award(ctx, reputation.AwardRequest{
			UserID: question.AuthorID,
			Action: reputation.ActionQuestionAsked,
			Refs:   reputation.Refs{QuestionID: question.ID},
		}); err != nil {
			return err
		}
		u.publish(notifications.Event{Kind: notifications.EventNewQuestionWithTags, Ref: content.QuestionRef(question.ID)})
		return nil
	})
	if err != nil {
		return notifications.FanoutResult{}, err
	}
	return fanout, nil
}

// OnContentUpdated notifies the item's followers about an edit by actorID.
func (e *Engine) OnContentUpdated(ctx context.Context, actorID string, ref content.Ref) notifications.FanoutResult {
	return e.fanout.Notify(ctx, notifications.Event{Kind: notifications.EventContentUpdated, Ref: ref, ActorID: actorID})
}

// OnContentFollowed tells the item's author that followerID started following it.
func (e *Engine) OnContentFollowed(ctx context.Context, followerID string, ref content.Ref) notifications.FanoutResult {
	return e.fanout.Notify(ctx, notifications.Event{Kind: notifications.EventContentFollowed, Ref: ref, ActorID: followerID})
}
