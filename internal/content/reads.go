package content

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/serviceerror"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opGetQuestion    = "content.get_question"
	opListQuestions  = "content.list_questions"
	opListAnswers    = "content.list_answers"
	opListTags       = "content.list_tags"
	opListFollowed   = "content.list_followed"
	opListComments   = "content.list_comments"
	defaultPageSize  = 20
	maxPageSize      = 100
	queryTagsByUsage = "tag_id, COUNT(*) AS total"
	joinQuestionTags = "JOIN question_tags ON question_tags.question_id = questions.question_id"
	joinTagsOfLinks  = "JOIN tags ON tags.tag_id = question_tags.tag_id"
)

// QuestionDetail is a question together with its tags and answer count.
type QuestionDetail struct {
	Question
	Tags        []Tag
	AnswerCount int64
}

// TagSummary is a tag with the number of questions filed under it and its followers.
type TagSummary struct {
	Tag
	UsageCount    int64
	FollowerCount int64
}

// ListOptions pages and filters the question listing. An empty TagName lists
// every question.
type ListOptions struct {
	TagName string
	Limit   int
	Offset  int
}

type tagCount struct {
	TagID string
	Total int64
}

// Question loads one question with its tags and answer count.
func (s *Service) Question(ctx context.Context, questionID string) (QuestionDetail, error) {
	question, err := NewDirectory(s.db).Question(ctx, strings.TrimSpace(questionID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return QuestionDetail{}, err
		}
		s.logError(opGetQuestion, reasonQueryFailed, err, zap.String("question_id", questionID))
		return QuestionDetail{}, serviceerror.New(opGetQuestion, reasonQueryFailed, err)
	}
	detail, err := s.detailOf(ctx, question)
	if err != nil {
		s.logError(opGetQuestion, reasonQueryFailed, err, zap.String("question_id", questionID))
		return QuestionDetail{}, serviceerror.New(opGetQuestion, reasonQueryFailed, err)
	}
	return detail, nil
}

// ListQuestions returns questions newest first.
func (s *Service) ListQuestions(ctx context.Context, options ListOptions) ([]QuestionDetail, error) {
	limit := options.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset := options.Offset
	if offset < 0 {
		return nil, fmt.Errorf("%w: negative offset", ErrInvalidInput)
	}

	query := s.db.WithContext(ctx).Model(&Question{})
	if tagName := strings.ToLower(strings.TrimSpace(options.TagName)); tagName != "" {
		query = query.Joins(joinQuestionTags).Joins(joinTagsOfLinks).Where("tags.name = ?", tagName)
	}
	var questions []Question
	err := query.
		Order("questions.created_at DESC").
		Order("questions.question_id DESC").
		Limit(limit).
		Offset(offset).
		Find(&questions).Error
	if err != nil {
		s.logError(opListQuestions, reasonQueryFailed, err)
		return nil, serviceerror.New(opListQuestions, reasonQueryFailed, err)
	}

	details := make([]QuestionDetail, 0, len(questions))
	for _, question := range questions {
		detail, err := s.detailOf(ctx, question)
		if err != nil {
			s.logError(opListQuestions, reasonQueryFailed, err, zap.String("question_id", question.ID))
			return nil, serviceerror.New(opListQuestions, reasonQueryFailed, err)
		}
		details = append(details, detail)
	}
	return details, nil
}

func (s *Service) detailOf(ctx context.Context, question Question) (QuestionDetail, error) {
	tags, err := NewDirectory(s.db).TagsOf(ctx, question.ID)
	if err != nil {
		return QuestionDetail{}, err
	}
	var answerCount int64
	if err := s.db.WithContext(ctx).Model(&Answer{}).Where(queryQuestionID, question.ID).Count(&answerCount).Error; err != nil {
		return QuestionDetail{}, err
	}
	return QuestionDetail{Question: question, Tags: tags, AnswerCount: answerCount}, nil
}

// Answer loads one answer.
func (s *Service) Answer(ctx context.Context, answerID string) (Answer, error) {
	return NewDirectory(s.db).Answer(ctx, strings.TrimSpace(answerID))
}

// AnswersOf lists a question's answers, the accepted one first and the rest oldest first.
func (s *Service) AnswersOf(ctx context.Context, questionID string) ([]Answer, error) {
	directory := NewDirectory(s.db)
	if err := directory.Require(ctx, QuestionRef(strings.TrimSpace(questionID))); err != nil {
		return nil, err
	}
	var answers []Answer
	err := s.db.WithContext(ctx).
		Where(queryQuestionID, strings.TrimSpace(questionID)).
		Order("accepted DESC").
		Order("created_at ASC").
		Order("answer_id ASC").
		Find(&answers).Error
	if err != nil {
		s.logError(opListAnswers, reasonQueryFailed, err, zap.String("question_id", questionID))
		return nil, serviceerror.New(opListAnswers, reasonQueryFailed, err)
	}
	return answers, nil
}

// Tags lists every tag, most used first.
func (s *Service) Tags(ctx context.Context) ([]TagSummary, error) {
	var tags []Tag
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&tags).Error; err != nil {
		s.logError(opListTags, reasonQueryFailed, err)
		return nil, serviceerror.New(opListTags, reasonQueryFailed, err)
	}
	summaries, err := s.summarize(ctx, tags)
	if err != nil {
		s.logError(opListTags, reasonQueryFailed, err)
		return nil, serviceerror.New(opListTags, reasonQueryFailed, err)
	}
	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].UsageCount > summaries[j].UsageCount
	})
	return summaries, nil
}

// Tag loads one tag by id or by name.
func (s *Service) Tag(ctx context.Context, key string) (TagSummary, error) {
	trimmed := strings.TrimSpace(key)
	var tag Tag
	err := s.db.WithContext(ctx).
		Where("tag_id = ? OR name = ?", trimmed, strings.ToLower(trimmed)).
		Take(&tag).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return TagSummary{}, fmt.Errorf("%w: tag %s", ErrNotFound, trimmed)
	}
	if err != nil {
		s.logError(opListTags, reasonQueryFailed, err, zap.String("tag", trimmed))
		return TagSummary{}, serviceerror.New(opListTags, reasonQueryFailed, err)
	}
	summaries, err := s.summarize(ctx, []Tag{tag})
	if err != nil {
		s.logError(opListTags, reasonQueryFailed, err, zap.String("tag_id", tag.ID))
		return TagSummary{}, serviceerror.New(opListTags, reasonQueryFailed, err)
	}
	return summaries[0], nil
}

func (s *Service) summarize(ctx context.Context, tags []Tag) ([]TagSummary, error) {
	tagIDs := make([]string, 0, len(tags))
	for _, tag := range tags {
		tagIDs = append(tagIDs, tag.ID)
	}
	usage, err := s.countByTag(ctx, &QuestionTag{}, tagIDs)
	if err != nil {
		return nil, err
	}
	followers, err := s.countByTag(ctx, &TagFollow{}, tagIDs)
	if err != nil {
		return nil, err
	}
	summaries := make([]TagSummary, 0, len(tags))
	for _, tag := range tags {
		summaries = append(summaries, TagSummary{Tag: tag, UsageCount: usage[tag.ID], FollowerCount: followers[tag.ID]})
	}
	return summaries, nil
}

func (s *Service) countByTag(ctx context.Context, model interface{}, tagIDs []string) (map[string]int64, error) {
	counts := make(map[string]int64, len(tagIDs))
	if len(tagIDs) == 0 {
		return counts, nil
	}
	var rows []tagCount
	err := s.db.WithContext(ctx).Model(model).
		Select(queryTagsByUsage).
		Where("tag_id IN ?", tagIDs).
		Group("tag_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		counts[row.TagID] = row.Total
	}
	return counts, nil
}

// FollowedQuestions lists the questions userID follows, most recently followed first.
func (s *Service) FollowedQuestions(ctx context.Context, userID string) ([]Question, error) {
	var questions []Question
	err := s.db.WithContext(ctx).
		Joins("JOIN question_follows ON question_follows.question_id = questions.question_id").
		Where("question_follows.user_id = ?", strings.TrimSpace(userID)).
		Order("question_follows.created_at DESC").
		Find(&questions).Error
	if err != nil {
		s.logError(opListFollowed, reasonQueryFailed, err, zap.String("user_id", userID))
		return nil, serviceerror.New(opListFollowed, reasonQueryFailed, err)
	}
	return questions, nil
}

// FollowedAnswers lists the answers userID follows, most recently followed first.
func (s *Service) FollowedAnswers(ctx context.Context, userID string) ([]Answer, error) {
	var answers []Answer
	err := s.db.WithContext(ctx).
		Joins("JOIN answer_follows ON answer_follows.answer_id = answers.answer_id").
		Where("answer_follows.user_id = ?", strings.TrimSpace(userID)).
		Order("answer_follows.created_at DESC").
		Find(&answers).Error
	if err != nil {
		s.logError(opListFollowed, reasonQueryFailed, err, zap.String("user_id", userID))
		return nil, serviceerror.New(opListFollowed, reasonQueryFailed, err)
	}
	return answers, nil
}

// FollowedTags lists the tags userID follows, by name.
func (s *Service) FollowedTags(ctx context.Context, userID string) ([]Tag, error) {
	var tags []Tag
	err := s.db.WithContext(ctx).
		Joins("JOIN tag_follows ON tag_follows.tag_id = tags.tag_id").
		Where("tag_follows.user_id = ?", strings.TrimSpace(userID)).
		Order("tags.name ASC").
		Find(&tags).Error
	if err != nil {
		s.logError(opListFollowed, reasonQueryFailed, err, zap.String("user_id", userID))
		return nil, serviceerror.New(opListFollowed, reasonQueryFailed, err)
	}
	return tags, nil
}

// Comments lists the comments of an existing question or answer, oldest first.
func (s *Service) Comments(ctx context.Context, ref Ref) ([]Comment, error) {
	directory := NewDirectory(s.db)
	if err := directory.Require(ctx, ref); err != nil {
		return nil, err
	}
	comments, err := directory.Comments(ctx, ref)
	if err != nil {
		s.logError(opListComments, reasonQueryFailed, err, zap.String("ref", ref.String()))
		return nil, serviceerror.New(opListComments, reasonQueryFailed, err)
	}
	return comments, nil
}
