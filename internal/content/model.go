package content

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind discriminates the vote-able content items.
type Kind string

const (
	// KindQuestion marks a question reference.
	KindQuestion Kind = "question"
	// KindAnswer marks an answer reference.
	KindAnswer Kind = "answer"
)

const (
	maxIdentifierLength = 190
	maxCommentLength    = 600
)

var (
	// ErrInvalidRef indicates a content reference with an unknown kind or unusable id.
	ErrInvalidRef = errors.New("content: invalid reference")
	// ErrInvalidInput indicates that title, body or tag input is unusable.
	ErrInvalidInput = errors.New("content: invalid input")
	// ErrNotFound indicates the referenced question, answer or tag does not exist.
	ErrNotFound = errors.New("content: not found")
	// ErrSelfFollow indicates a user tried to follow their own question or answer.
	ErrSelfFollow = errors.New("content: cannot follow own content")
	// ErrAlreadyFollowing indicates the follow relation already exists.
	ErrAlreadyFollowing = errors.New("content: already following")
	// ErrNotFollowing indicates the follow relation does not exist.
	ErrNotFollowing = errors.New("content: not following")
	// ErrNotAuthor indicates a non-author tried to edit content.
	ErrNotAuthor = errors.New("content: only the author can edit")
)

// Ref identifies exactly one question or answer.
type Ref struct {
	Kind Kind
	ID   string
}

// NewRef validates raw input and returns a Ref.
func NewRef(kind Kind, rawID string) (Ref, error) {
	if kind != KindQuestion && kind != KindAnswer {
		return Ref{}, fmt.Errorf("%w: kind %q", ErrInvalidRef, kind)
	}
	trimmed := strings.TrimSpace(rawID)
	if trimmed == "" {
		return Ref{}, fmt.Errorf("%w: empty id", ErrInvalidRef)
	}
	if len(trimmed) > maxIdentifierLength {
		return Ref{}, fmt.Errorf("%w: id exceeds %d characters", ErrInvalidRef, maxIdentifierLength)
	}
	return Ref{Kind: kind, ID: trimmed}, nil
}

// QuestionRef is shorthand for a question reference.
func QuestionRef(id string) Ref {
	return Ref{Kind: KindQuestion, ID: id}
}

// AnswerRef is shorthand for an answer reference.
func AnswerRef(id string) Ref {
	return Ref{Kind: KindAnswer, ID: id}
}

// IsQuestion reports whether the reference targets a question.
func (r Ref) IsQuestion() bool {
	return r.Kind == KindQuestion
}

// IsAnswer reports whether the reference targets an answer.
func (r Ref) IsAnswer() bool {
	return r.Kind == KindAnswer
}

func (r Ref) String() string {
	return string(r.Kind) + ":" + r.ID
}

// Question is a persisted question.
type Question struct {
	ID        string    `gorm:"column:question_id;primaryKey;size:190;not null"`
	AuthorID  string    `gorm:"column:author_id;size:190;not null;index"`
	Title     string    `gorm:"column:title;size:512;not null"`
	Body      string    `gorm:"column:body;type:text;not null"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Question) TableName() string {
	return "questions"
}

// Answer is a persisted answer. At most one answer per question is accepted.
type Answer struct {
	ID         string    `gorm:"column:answer_id;primaryKey;size:190;not null"`
	QuestionID string    `gorm:"column:question_id;size:190;not null;index;uniqueIndex:idx_answers_one_accepted,where:accepted = true"`
	AuthorID   string    `gorm:"column:author_id;size:190;not null;index"`
	Body       string    `gorm:"column:body;type:text;not null"`
	Accepted   bool      `gorm:"column:accepted;not null;default:false"`
	CreatedAt  time.Time `gorm:"column:created_at;not null"`
	UpdatedAt  time.Time `gorm:"column:updated_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Answer) TableName() string {
	return "answers"
}

// Tag is a named topic a question can be filed under.
type Tag struct {
	ID        string    `gorm:"column:tag_id;primaryKey;size:190;not null"`
	Name      string    `gorm:"column:name;size:64;not null;uniqueIndex"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Tag) TableName() string {
	return "tags"
}

// QuestionTag attaches a tag to a question.
type QuestionTag struct {
	QuestionID string `gorm:"column:question_id;primaryKey;size:190;not null"`
	TagID      string `gorm:"column:tag_id;primaryKey;size:190;not null;index"`
}

// TableName provides the explicit table binding for GORM.
func (QuestionTag) TableName() string {
	return "question_tags"
}

// QuestionFollow records a user following a question.
type QuestionFollow struct {
	UserID     string    `gorm:"column:user_id;primaryKey;size:190;not null"`
	QuestionID string    `gorm:"column:question_id;primaryKey;size:190;not null;index"`
	CreatedAt  time.Time `gorm:"column:created_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (QuestionFollow) TableName() string {
	return "question_follows"
}

// AnswerFollow records a user following an answer.
type AnswerFollow struct {
	UserID    string    `gorm:"column:user_id;primaryKey;size:190;not null"`
	AnswerID  string    `gorm:"column:answer_id;primaryKey;size:190;not null;index"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (AnswerFollow) TableName() string {
	return "answer_follows"
}

// TagFollow records a user following a tag.
type TagFollow struct {
	UserID    string    `gorm:"column:user_id;primaryKey;size:190;not null"`
	TagID     string    `gorm:"column:tag_id;primaryKey;size:190;not null;index"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (TagFollow) TableName() string {
	return "tag_follows"
}

// Comment is a short remark attached to a question or answer.
type Comment struct {
	ID         string    `gorm:"column:comment_id;primaryKey;size:190;not null"`
	TargetKind Kind      `gorm:"column:target_kind;size:16;not null;index:idx_comments_target,priority:1"`
	TargetID   string    `gorm:"column:target_id;size:190;not null;index:idx_comments_target,priority:2"`
	AuthorID   string    `gorm:"column:author_id;size:190;not null;index"`
	Body       string    `gorm:"column:body;type:text;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Comment) TableName() string {
	return "comments"
}

// Target returns the item the comment is attached to.
func (c Comment) Target() Ref {
	return Ref{Kind: c.TargetKind, ID: c.TargetID}
}

// NewComment validates the body and builds an unsaved Comment.
func NewComment(commentID, authorID string, target Ref, body string, createdAt time.Time) (Comment, error) {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return Comment{}, fmt.Errorf("%w: empty comment", ErrInvalidInput)
	}
	if len(trimmed) > maxCommentLength {
		return Comment{}, fmt.Errorf("%w: comment exceeds %d characters", ErrInvalidInput, maxCommentLength)
	}
	return Comment{
		ID:         commentID,
		TargetKind: target.Kind,
		TargetID:   target.ID,
		AuthorID:   strings.TrimSpace(authorID),
		Body:       trimmed,
		CreatedAt:  createdAt.UTC(),
	}, nil
}

// Models lists every table owned by the package, in migration order.
func Models() []interface{} {
	return []interface{}{
		&Question{},
		&Answer{},
		&Tag{},
		&QuestionTag{},
		&QuestionFollow{},
		&AnswerFollow{},
		&TagFollow{},
		&Comment{},
	}
}
