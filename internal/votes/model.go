package votes

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/content"
)

// Type is the direction of a vote.
type Type string

const (
	TypeUpvote   Type = "UPVOTE"
	TypeDownvote Type = "DOWNVOTE"
)

// Outcome describes how a cast changed the voter's stored vote.
type Outcome string

const (
	// OutcomeNew means no vote existed and one was recorded.
	OutcomeNew Outcome = "NEW"
	// OutcomeSwitched means the existing vote changed direction.
	OutcomeSwitched Outcome = "SWITCHED"
	// OutcomeRemoved means a repeated vote of the same type toggled it off.
	OutcomeRemoved Outcome = "REMOVED"
)

var (
	// ErrSelfVote indicates the voter authored the target content.
	ErrSelfVote = errors.New("votes: cannot vote on own content")
	// ErrContentNotFound indicates the target question or answer does not exist.
	ErrContentNotFound = errors.New("votes: content not found")
	// ErrInvalidType indicates a vote type other than UPVOTE or DOWNVOTE.
	ErrInvalidType = errors.New("votes: invalid vote type")
	// ErrDuplicateVote indicates a concurrent cast already recorded a vote for the pair.
	ErrDuplicateVote = errors.New("votes: duplicate vote")
)

// ParseType normalizes raw input into a vote Type.
func ParseType(raw string) (Type, error) {
	switch Type(strings.ToUpper(strings.TrimSpace(raw))) {
	case TypeUpvote:
		return TypeUpvote, nil
	case TypeDownvote:
		return TypeDownvote, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidType, raw)
	}
}

// Valid reports whether the type is a known direction.
func (t Type) Valid() bool {
	return t == TypeUpvote || t == TypeDownvote
}

func (t Type) String() string {
	return string(t)
}

// Vote is the single stored vote of one voter on one content item.
type Vote struct {
	VoteID           string       `gorm:"column:vote_id;primaryKey;size:190;not null"`
	VoterID          string       `gorm:"column:voter_id;size:190;not null;uniqueIndex:idx_votes_voter_content,priority:1"`
	ContentKind      content.Kind `gorm:"column:content_kind;size:16;not null;uniqueIndex:idx_votes_voter_content,priority:2;index:idx_votes_content,priority:1"`
	ContentID        string       `gorm:"column:content_id;size:190;not null;uniqueIndex:idx_votes_voter_content,priority:3;index:idx_votes_content,priority:2"`
	VoteType         Type         `gorm:"column:vote_type;size:16;not null"`
	CreatedAtSeconds int64        `gorm:"column:created_at_s;not null"`
	UpdatedAtSeconds int64        `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Vote) TableName() string {
	return "votes"
}

// Ref returns the content the vote targets.
func (v Vote) Ref() content.Ref {
	return content.Ref{Kind: v.ContentKind, ID: v.ContentID}
}

// CastResult reports the state transition of one cast.
type CastResult struct {
	Outcome  Outcome
	VoteID   string
	Previous *Type
	Current  *Type
	AuthorID string
}

// Tally counts the votes on one content item.
type Tally struct {
	Upvotes   int64
	Downvotes int64
}

// Score is upvotes minus downvotes.
func (t Tally) Score() int64 {
	return t.Upvotes - t.Downvotes
}

// Models lists every table owned by the package.
func Models() []interface{} {
	return []interface{}{&Vote{}}
}

func typePointer(value Type) *Type {
	v := value
	return &v
}
