package notifications

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/content"
	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/ids"
	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/serviceerror"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

const defaultConcurrency = 4

const (
	messageNewAnswer              = "A new answer was posted to a question you follow"
	messageTaggedQuestion         = "A new question tagged '%s' was posted"
	messageAcceptedOnQuestion     = "An answer was accepted on a question you follow"
	messageFollowedAnswerAccepted = "An answer you follow was accepted"
	messageQuestionUpdated        = "A question you follow was updated"
	messageAnswerUpdated          = "An answer you follow was updated"
	messageQuestionFollowed       = "Someone started following your question"
	messageAnswerFollowed         = "Someone started following your answer"
)

// FollowerDirectory resolves the audiences of a fanout.
type FollowerDirectory interface {
	FollowersOf(ctx context.Context, ref content.Ref) ([]string, error)
	FollowersOfTag(ctx context.Context, tagID string) ([]string, error)
	TagsOf(ctx context.Context, questionID string) ([]content.Tag, error)
	ResolveAuthor(ctx context.Context, ref content.Ref) (string, error)
	QuestionOf(ctx context.Context, answerID string) (string, error)
}

// FanoutConfig wires a Fanout.
type FanoutConfig struct {
	Store       Store
	Followers   FollowerDirectory
	Clock       func() time.Time
	IDProvider  ids.Provider
	Logger      *zap.Logger
	Concurrency int
}

// Fanout turns committed events into one notification per interested recipient.
type Fanout struct {
	store       Store
	followers   FollowerDirectory
	clock       func() time.Time
	idProvider  ids.Provider
	logger      *zap.Logger
	concurrency int
}

type delivery struct {
	recipientID string
	kind        Type
	message     string
}

// NewFanout validates the configuration and returns a Fanout.
func NewFanout(cfg FanoutConfig) (*Fanout, error) {
	if cfg.Store == nil {
		return nil, serviceerror.New("notifications.fanout.new", "missing_store", errors.New("notification store is required"))
	}
	if cfg.Followers == nil {
		return nil, serviceerror.New("notifications.fanout.new", "missing_followers", errors.New("follower directory is required"))
	}
	if cfg.IDProvider == nil {
		return nil, serviceerror.New("notifications.fanout.new", "missing_id_provider", errors.New("id provider is required"))
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Fanout{
		store:       cfg.Store,
		followers:   cfg.Followers,
		clock:       clock,
		idProvider:  cfg.IDProvider,
		logger:      logger,
		concurrency: concurrency,
	}, nil
}

// Notify delivers the event to its audience. Each insert is independent: a
// failed recipient is logged and counted, and never stops the others.
func (f *Fanout) Notify(ctx context.Context, event Event) FanoutResult {
	fields := []zap.Field{
		zap.String("event", string(event.Kind)),
		zap.String("ref", event.Ref.String()),
	}
	deliveries, err := f.audience(ctx, event)
	if err != nil {
		f.logger.Warn("notification audience lookup failed", append(fields, zap.Error(err))...)
		return FanoutResult{}
	}
	if len(deliveries) == 0 {
		return FanoutResult{}
	}

	var (
		mu     sync.Mutex
		result FanoutResult
		p      = pool.New().WithMaxGoroutines(f.concurrency)
	)
	for _, d := range deliveries {
		d := d
		p.Go(func() {
			err := f.deliver(ctx, event.Ref, d)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed++
				f.logger.Warn("notification delivery failed",
					append(fields, zap.String("recipient_id", d.recipientID), zap.Error(err))...)
				return
			}
			result.Created++
		})
	}
	p.Wait()

	f.logger.Info("notifications fanned out",
		append(fields, zap.Int("created", result.Created), zap.Int("failed", result.Failed))...)
	return result
}

func (f *Fanout) deliver(ctx context.Context, ref content.Ref, d delivery) error {
	notificationID, err := f.idProvider.NewID()
	if err != nil {
		return err
	}
	notification := Notification{
		NotificationID:   notificationID,
		RecipientID:      d.recipientID,
		Type:             d.kind,
		ReferenceKind:    ref.Kind,
		ReferenceID:      ref.ID,
		Message:          d.message,
		CreatedAtSeconds: f.clock().UTC().Unix(),
	}
	return f.store.Append(ctx, &notification)
}

func (f *Fanout) audience(ctx context.Context, event Event) ([]delivery, error) {
	switch event.Kind {
	case EventNewAnswer:
		return f.newAnswerAudience(ctx, event.Ref)
	case EventNewQuestionWithTags:
		return f.taggedQuestionAudience(ctx, event.Ref)
	case EventAnswerAccepted:
		return f.acceptedAnswerAudience(ctx, event.Ref)
	case EventContentUpdated:
		return f.updatedContentAudience(ctx, event.Ref, event.ActorID)
	case EventContentFollowed:
		return f.followedContentAudience(ctx, event.Ref, event.ActorID)
	default:
		return nil, fmt.Errorf("unknown event kind %q", event.Kind)
	}
}

func (f *Fanout) newAnswerAudience(ctx context.Context, answer content.Ref) ([]delivery, error) {
	answerAuthor, err := f.followers.ResolveAuthor(ctx, answer)
	if err != nil {
		return nil, err
	}
	questionID, err := f.followers.QuestionOf(ctx, answer.ID)
	if err != nil {
		return nil, err
	}
	followers, err := f.followers.FollowersOf(ctx, content.QuestionRef(questionID))
	if err != nil {
		return nil, err
	}
	return deliveriesFor(followers, TypeAnswer, messageNewAnswer, answerAuthor), nil
}

// taggedQuestionAudience yields one delivery per (follower, tag) pair, so a user
// following two of the question's tags hears about it twice.
func (f *Fanout) taggedQuestionAudience(ctx context.Context, question content.Ref) ([]delivery, error) {
	author, err := f.followers.ResolveAuthor(ctx, question)
	if err != nil {
		return nil, err
	}
	tags, err := f.followers.TagsOf(ctx, question.ID)
	if err != nil {
		return nil, err
	}
	var deliveries []delivery
	for _, tag := range tags {
		followers, err := f.followers.FollowersOfTag(ctx, tag.ID)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, deliveriesFor(followers, TypeTag, fmt.Sprintf(messageTaggedQuestion, tag.Name), author)...)
	}
	return deliveries, nil
}

func (f *Fanout) acceptedAnswerAudience(ctx context.Context, answer content.Ref) ([]delivery, error) {
	answerAuthor, err := f.followers.ResolveAuthor(ctx, answer)
	if err != nil {
		return nil, err
	}
	questionID, err := f.followers.QuestionOf(ctx, answer.ID)
	if err != nil {
		return nil, err
	}
	question := content.QuestionRef(questionID)
	questionAuthor, err := f.followers.ResolveAuthor(ctx, question)
	if err != nil {
		return nil, err
	}
	questionFollowers, err := f.followers.FollowersOf(ctx, question)
	if err != nil {
		return nil, err
	}
	answerFollowers, err := f.followers.FollowersOf(ctx, answer)
	if err != nil {
		return nil, err
	}
	deliveries := deliveriesFor(questionFollowers, TypeAnswerAccepted, messageAcceptedOnQuestion, answerAuthor, questionAuthor)
	return append(deliveries, deliveriesFor(answerFollowers, TypeAnswerAccepted, messageFollowedAnswerAccepted, answerAuthor)...), nil
}

func (f *Fanout) updatedContentAudience(ctx context.Context, ref content.Ref, editorID string) ([]delivery, error) {
	author, err := f.followers.ResolveAuthor(ctx, ref)
	if err != nil {
		return nil, err
	}
	followers, err := f.followers.FollowersOf(ctx, ref)
	if err != nil {
		return nil, err
	}
	if ref.IsQuestion() {
		return deliveriesFor(followers, TypeQuestionUpdate, messageQuestionUpdated, author, editorID), nil
	}
	return deliveriesFor(followers, TypeAnswerUpdate, messageAnswerUpdated, author, editorID), nil
}

func (f *Fanout) followedContentAudience(ctx context.Context, ref content.Ref, followerID string) ([]delivery, error) {
	author, err := f.followers.ResolveAuthor(ctx, ref)
	if err != nil {
		return nil, err
	}
	if author == followerID {
		return nil, nil
	}
	message := messageAnswerFollowed
	if ref.IsQuestion() {
		message = messageQuestionFollowed
	}
	return []delivery{{recipientID: author, kind: TypeFollow, message: message}}, nil
}

func deliveriesFor(recipients []string, kind Type, message string, excluded ...string) []delivery {
	deliveries := make([]delivery, 0, len(recipients))
	for _, recipientID := range recipients {
		if slices.Contains(excluded, recipientID) {
			continue
		}
		deliveries = append(deliveries, delivery{recipientID: recipientID, kind: kind, message: message})
	}
	return deliveries
}
