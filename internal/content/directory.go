package content

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	queryQuestionID = "question_id = ?"
	queryAnswerID   = "answer_id = ?"
	queryTagID      = "tag_id = ?"
)

// Directory resolves content items, their authors and their followers. It is a
// read-mostly view over the content tables bound to one *gorm.DB, which may be
// a transaction.
type Directory struct {
	db *gorm.DB
}

// NewDirectory binds a Directory to the provided database handle.
func NewDirectory(db *gorm.DB) *Directory {
	return &Directory{db: db}
}

// Exists reports whether the referenced item is stored.
func (d *Directory) Exists(ctx context.Context, ref Ref) (bool, error) {
	var count int64
	query := d.db.WithContext(ctx)
	switch ref.Kind {
	case KindQuestion:
		query = query.Model(&Question{}).Where(queryQuestionID, ref.ID)
	case KindAnswer:
		query = query.Model(&Answer{}).Where(queryAnswerID, ref.ID)
	default:
		return false, fmt.Errorf("%w: kind %q", ErrInvalidRef, ref.Kind)
	}
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Require returns ErrNotFound unless the referenced item is stored.
func (d *Directory) Require(ctx context.Context, ref Ref) error {
	exists, err := d.Exists(ctx, ref)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return nil
}

// InsertComment stores a validated comment.
func (d *Directory) InsertComment(ctx context.Context, comment Comment) error {
	return d.db.WithContext(ctx).Create(&comment).Error
}

// Comments lists the comments of an item, oldest first.
func (d *Directory) Comments(ctx context.Context, ref Ref) ([]Comment, error) {
	var comments []Comment
	err := d.db.WithContext(ctx).
		Where("target_kind = ? AND target_id = ?", ref.Kind, ref.ID).
		Order("created_at ASC").
		Order("comment_id ASC").
		Find(&comments).Error
	return comments, err
}

// ResolveAuthor returns the owning user of the referenced item.
func (d *Directory) ResolveAuthor(ctx context.Context, ref Ref) (string, error) {
	switch ref.Kind {
	case KindQuestion:
		question, err := d.Question(ctx, ref.ID)
		if err != nil {
			return "", err
		}
		return question.AuthorID, nil
	case KindAnswer:
		answer, err := d.Answer(ctx, ref.ID)
		if err != nil {
			return "", err
		}
		return answer.AuthorID, nil
	default:
		return "", fmt.Errorf("%w: kind %q", ErrInvalidRef, ref.Kind)
	}
}

// Question loads a question by id.
func (d *Directory) Question(ctx context.Context, questionID string) (Question, error) {
	var question Question
	err := d.db.WithContext(ctx).Where(queryQuestionID, questionID).Take(&question).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Question{}, fmt.Errorf("%w: question %s", ErrNotFound, questionID)
	}
	return question, err
}

// Answer loads an answer by id.
func (d *Directory) Answer(ctx context.Context, answerID string) (Answer, error) {
	var answer Answer
	err := d.db.WithContext(ctx).Where(queryAnswerID, answerID).Take(&answer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Answer{}, fmt.Errorf("%w: answer %s", ErrNotFound, answerID)
	}
	return answer, err
}

// LockAnswersOfQuestion loads every answer of the question with row locks held
// until the surrounding transaction ends.
func (d *Directory) LockAnswersOfQuestion(ctx context.Context, questionID string) ([]Answer, error) {
	var answers []Answer
	err := d.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where(queryQuestionID, questionID).
		Order("created_at ASC").
		Find(&answers).Error
	return answers, err
}

// SetAccepted flips the accepted flag of one answer.
func (d *Directory) SetAccepted(ctx context.Context, answerID string, accepted bool) error {
	result := d.db.WithContext(ctx).
		Model(&Answer{}).
		Where(queryAnswerID, answerID).
		Update("accepted", accepted)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: answer %s", ErrNotFound, answerID)
	}
	return nil
}

// FollowersOf returns the users following the referenced item.
func (d *Directory) FollowersOf(ctx context.Context, ref Ref) ([]string, error) {
	var followers []string
	var err error
	switch ref.Kind {
	case KindQuestion:
		err = d.db.WithContext(ctx).Model(&QuestionFollow{}).
			Where(queryQuestionID, ref.ID).
			Order("created_at ASC").
			Pluck("user_id", &followers).Error
	case KindAnswer:
		err = d.db.WithContext(ctx).Model(&AnswerFollow{}).
			Where(queryAnswerID, ref.ID).
			Order("created_at ASC").
			Pluck("user_id", &followers).Error
	default:
		return nil, fmt.Errorf("%w: kind %q", ErrInvalidRef, ref.Kind)
	}
	return followers, err
}

// FollowersOfTag returns the users following a tag.
func (d *Directory) FollowersOfTag(ctx context.Context, tagID string) ([]string, error) {
	var followers []string
	err := d.db.WithContext(ctx).Model(&TagFollow{}).
		Where(queryTagID, tagID).
		Order("created_at ASC").
		Pluck("user_id", &followers).Error
	return followers, err
}

// TagsOf returns the tags attached to a question, ordered by name.
func (d *Directory) TagsOf(ctx context.Context, questionID string) ([]Tag, error) {
	var tags []Tag
	err := d.db.WithContext(ctx).
		Joins("JOIN question_tags ON question_tags.tag_id = tags.tag_id").
		Where("question_tags.question_id = ?", questionID).
		Order("tags.name ASC").
		Find(&tags).Error
	return tags, err
}

// QuestionOf returns the question an answer belongs to.
func (d *Directory) QuestionOf(ctx context.Context, answerID string) (string, error) {
	answer, err := d.Answer(ctx, answerID)
	if err != nil {
		return "", err
	}
	return answer.QuestionID, nil
}
