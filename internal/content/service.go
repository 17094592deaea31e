package content

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/ids"
	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/serviceerror"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	opServiceNew      = "content.service.new"
	opCreateQuestion  = "content.create_question"
	opUpdateQuestion  = "content.update_question"
	opCreateAnswer    = "content.create_answer"
	opUpdateAnswer    = "content.update_answer"
	opFollow          = "content.follow"
	opUnfollow        = "content.unfollow"
	maxTitleLength    = 512
	maxTagNameLength  = 64
	maxTagsPerItem    = 5
	reasonQueryFailed = "query_failed"
	reasonWriteFailed = "write_failed"
	reasonIDFailed    = "id_generation_failed"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
)

// ServiceConfig describes the dependencies required for content writes.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider ids.Provider
	Logger     *zap.Logger
}

// Service persists questions, answers, tags and follow relations. Reputation
// and notification side effects are triggered by the caller through the voting
// engine hooks once a write here has committed.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider ids.Provider
	logger     *zap.Logger
}

// NewService validates the configuration and returns a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, serviceerror.New(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, serviceerror.New(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// QuestionInput is the payload for creating or editing a question.
type QuestionInput struct {
	Title string
	Body  string
	Tags  []string
}

// CreateQuestion stores a question and attaches its tags, creating unknown tags.
func (s *Service) CreateQuestion(ctx context.Context, authorID string, input QuestionInput) (Question, error) {
	title, body, err := validateQuestion(input)
	if err != nil {
		return Question{}, err
	}
	tagNames, err := normalizeTags(input.Tags)
	if err != nil {
		return Question{}, err
	}
	questionID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreateQuestion, reasonIDFailed, err)
		return Question{}, serviceerror.New(opCreateQuestion, reasonIDFailed, err)
	}

	now := s.clock().UTC()
	question := Question{
		ID:        questionID,
		AuthorID:  strings.TrimSpace(authorID),
		Title:     title,
		Body:      body,
		CreatedAt: now,
		UpdatedAt: now,
	}
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&question).Error; err != nil {
			return err
		}
		for _, name := range tagNames {
			tag, err := s.ensureTag(tx, name, now)
			if err != nil {
				return err
			}
			link := QuestionTag{QuestionID: question.ID, TagID: tag.ID}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&link).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if txErr != nil {
		s.logError(opCreateQuestion, reasonWriteFailed, txErr, zap.String("author_id", question.AuthorID))
		return Question{}, serviceerror.New(opCreateQuestion, reasonWriteFailed, txErr)
	}
	return question, nil
}

// UpdateQuestion edits the title and body of a question owned by editorID.
func (s *Service) UpdateQuestion(ctx context.Context, editorID, questionID string, input QuestionInput) (Question, error) {
	title, body, err := validateQuestion(input)
	if err != nil {
		return Question{}, err
	}
	question, err := NewDirectory(s.db).Question(ctx, questionID)
	if err != nil {
		return Question{}, err
	}
	if question.AuthorID != strings.TrimSpace(editorID) {
		return Question{}, ErrNotAuthor
	}
	question.Title = title
	question.Body = body
	question.UpdatedAt = s.clock().UTC()
	if err := s.db.WithContext(ctx).Save(&question).Error; err != nil {
		s.logError(opUpdateQuestion, reasonWriteFailed, err, zap.String("question_id", questionID))
		return Question{}, serviceerror.New(opUpdateQuestion, reasonWriteFailed, err)
	}
	return question, nil
}

// CreateAnswer stores an answer to an existing question.
func (s *Service) CreateAnswer(ctx context.Context, authorID, questionID, body string) (Answer, error) {
	trimmedBody := strings.TrimSpace(body)
	if trimmedBody == "" {
		return Answer{}, fmt.Errorf("%w: empty body", ErrInvalidInput)
	}
	if _, err := NewDirectory(s.db).Question(ctx, questionID); err != nil {
		return Answer{}, err
	}
	answerID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreateAnswer, reasonIDFailed, err)
		return Answer{}, serviceerror.New(opCreateAnswer, reasonIDFailed, err)
	}
	now := s.clock().UTC()
	answer := Answer{
		ID:         answerID,
		QuestionID: questionID,
		AuthorID:   strings.TrimSpace(authorID),
		Body:       trimmedBody,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.db.WithContext(ctx).Create(&answer).Error; err != nil {
		s.logError(opCreateAnswer, reasonWriteFailed, err, zap.String("question_id", questionID))
		return Answer{}, serviceerror.New(opCreateAnswer, reasonWriteFailed, err)
	}
	return answer, nil
}

// UpdateAnswer edits the body of an answer owned by editorID.
func (s *Service) UpdateAnswer(ctx context.Context, editorID, answerID, body string) (Answer, error) {
	trimmedBody := strings.TrimSpace(body)
	if trimmedBody == "" {
		return Answer{}, fmt.Errorf("%w: empty body", ErrInvalidInput)
	}
	answer, err := NewDirectory(s.db).Answer(ctx, answerID)
	if err != nil {
		return Answer{}, err
	}
	if answer.AuthorID != strings.TrimSpace(editorID) {
		return Answer{}, ErrNotAuthor
	}
	answer.Body = trimmedBody
	answer.UpdatedAt = s.clock().UTC()
	if err := s.db.WithContext(ctx).Save(&answer).Error; err != nil {
		s.logError(opUpdateAnswer, reasonWriteFailed, err, zap.String("answer_id", answerID))
		return Answer{}, serviceerror.New(opUpdateAnswer, reasonWriteFailed, err)
	}
	return answer, nil
}

// Follow subscribes userID to a question or answer. Authors cannot follow their own items.
func (s *Service) Follow(ctx context.Context, userID string, ref Ref) error {
	author, err := NewDirectory(s.db).ResolveAuthor(ctx, ref)
	if err != nil {
		return err
	}
	if author == userID {
		return ErrSelfFollow
	}
	now := s.clock().UTC()
	var record interface{}
	switch ref.Kind {
	case KindQuestion:
		record = &QuestionFollow{UserID: userID, QuestionID: ref.ID, CreatedAt: now}
	case KindAnswer:
		record = &AnswerFollow{UserID: userID, AnswerID: ref.ID, CreatedAt: now}
	}
	return s.createFollow(ctx, record, zap.String("ref", ref.String()))
}

// Unfollow removes a question or answer subscription.
func (s *Service) Unfollow(ctx context.Context, userID string, ref Ref) error {
	var result *gorm.DB
	switch ref.Kind {
	case KindQuestion:
		result = s.db.WithContext(ctx).Where("user_id = ? AND question_id = ?", userID, ref.ID).Delete(&QuestionFollow{})
	case KindAnswer:
		result = s.db.WithContext(ctx).Where("user_id = ? AND answer_id = ?", userID, ref.ID).Delete(&AnswerFollow{})
	default:
		return fmt.Errorf("%w: kind %q", ErrInvalidRef, ref.Kind)
	}
	return s.checkUnfollow(result, zap.String("ref", ref.String()))
}

// FollowTag subscribes userID to a tag.
func (s *Service) FollowTag(ctx context.Context, userID, tagID string) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&Tag{}).Where(queryTagID, tagID).Count(&count).Error; err != nil {
		s.logError(opFollow, reasonQueryFailed, err, zap.String("tag_id", tagID))
		return serviceerror.New(opFollow, reasonQueryFailed, err)
	}
	if count == 0 {
		return fmt.Errorf("%w: tag %s", ErrNotFound, tagID)
	}
	record := &TagFollow{UserID: userID, TagID: tagID, CreatedAt: s.clock().UTC()}
	return s.createFollow(ctx, record, zap.String("tag_id", tagID))
}

// UnfollowTag removes a tag subscription.
func (s *Service) UnfollowTag(ctx context.Context, userID, tagID string) error {
	result := s.db.WithContext(ctx).Where("user_id = ? AND tag_id = ?", userID, tagID).Delete(&TagFollow{})
	return s.checkUnfollow(result, zap.String("tag_id", tagID))
}

func (s *Service) createFollow(ctx context.Context, record interface{}, field zap.Field) error {
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(record)
	if result.Error != nil {
		s.logError(opFollow, reasonWriteFailed, result.Error, field)
		return serviceerror.New(opFollow, reasonWriteFailed, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrAlreadyFollowing
	}
	return nil
}

func (s *Service) checkUnfollow(result *gorm.DB, field zap.Field) error {
	if result.Error != nil {
		s.logError(opUnfollow, reasonWriteFailed, result.Error, field)
		return serviceerror.New(opUnfollow, reasonWriteFailed, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFollowing
	}
	return nil
}

func (s *Service) ensureTag(tx *gorm.DB, name string, now time.Time) (Tag, error) {
	var tag Tag
	err := tx.Where("name = ?", name).Take(&tag).Error
	if err == nil {
		return tag, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return Tag{}, err
	}
	tagID, err := s.idProvider.NewID()
	if err != nil {
		return Tag{}, err
	}
	tag = Tag{ID: tagID, Name: name, CreatedAt: now}
	if err := tx.Create(&tag).Error; err != nil {
		return Tag{}, err
	}
	return tag, nil
}

func validateQuestion(input QuestionInput) (string, string, error) {
	title := strings.TrimSpace(input.Title)
	body := strings.TrimSpace(input.Body)
	if title == "" {
		return "", "", fmt.Errorf("%w: empty title", ErrInvalidInput)
	}
	if len(title) > maxTitleLength {
		return "", "", fmt.Errorf("%w: title exceeds %d characters", ErrInvalidInput, maxTitleLength)
	}
	if body == "" {
		return "", "", fmt.Errorf("%w: empty body", ErrInvalidInput)
	}
	return title, body, nil
}

func normalizeTags(raw []string) ([]string, error) {
	seen := make(map[string]struct{}, len(raw))
	names := make([]string, 0, len(raw))
	for _, value := range raw {
		name := strings.ToLower(strings.TrimSpace(value))
		if name == "" {
			continue
		}
		if len(name) > maxTagNameLength {
			return nil, fmt.Errorf("%w: tag exceeds %d characters", ErrInvalidInput, maxTagNameLength)
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	if len(names) > maxTagsPerItem {
		return nil, fmt.Errorf("%w: at most %d tags", ErrInvalidInput, maxTagsPerItem)
	}
	return names, nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("content service error", attrs...)
}
