package votes

import (
	"context"
	"errors"

	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/content"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	queryVoterContent = "voter_id = ? AND content_kind = ? AND content_id = ?"
	queryContent      = "content_kind = ? AND content_id = ?"
)

// Store persists votes.
type Store interface {
	Find(ctx context.Context, voterID string, ref content.Ref) (Vote, bool, error)
	Create(ctx context.Context, vote *Vote) error
	UpdateType(ctx context.Context, voteID string, voteType Type, updatedAtSeconds int64) error
	Delete(ctx context.Context, voteID string) error
	CountByType(ctx context.Context, ref content.Ref) (Tally, error)
	List(ctx context.Context, ref content.Ref) ([]Vote, error)
}

// GormStore is the relational vote Store.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore binds a GormStore to a database handle or transaction.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Find loads the voter's vote on the item with a row lock.
func (s *GormStore) Find(ctx context.Context, voterID string, ref content.Ref) (Vote, bool, error) {
	var vote Vote
	err := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where(queryVoterContent, voterID, ref.Kind, ref.ID).
		Take(&vote).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Vote{}, false, nil
	}
	if err != nil {
		return Vote{}, false, err
	}
	return vote, true, nil
}

// Create inserts a vote. A concurrent insert for the same voter and item
// yields ErrDuplicateVote.
func (s *GormStore) Create(ctx context.Context, vote *Vote) error {
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(vote)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return ErrDuplicateVote
		}
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrDuplicateVote
	}
	return nil
}

func (s *GormStore) UpdateType(ctx context.Context, voteID string, voteType Type, updatedAtSeconds int64) error {
	return s.db.WithContext(ctx).
		Model(&Vote{}).
		Where("vote_id = ?", voteID).
		Updates(map[string]interface{}{
			"vote_type":    voteType,
			"updated_at_s": updatedAtSeconds,
		}).Error
}

func (s *GormStore) Delete(ctx context.Context, voteID string) error {
	return s.db.WithContext(ctx).Where("vote_id = ?", voteID).Delete(&Vote{}).Error
}

// CountByType tallies the votes on one item.
func (s *GormStore) CountByType(ctx context.Context, ref content.Ref) (Tally, error) {
	type row struct {
		VoteType Type
		Total    int64
	}
	var rows []row
	err := s.db.WithContext(ctx).
		Model(&Vote{}).
		Select("vote_type, COUNT(*) AS total").
		Where(queryContent, ref.Kind, ref.ID).
		Group("vote_type").
		Scan(&rows).Error
	if err != nil {
		return Tally{}, err
	}
	var tally Tally
	for _, r := range rows {
		switch r.VoteType {
		case TypeUpvote:
			tally.Upvotes = r.Total
		case TypeDownvote:
			tally.Downvotes = r.Total
		}
	}
	return tally, nil
}

// List returns the votes on one item, oldest first.
func (s *GormStore) List(ctx context.Context, ref content.Ref) ([]Vote, error) {
	var votes []Vote
	err := s.db.WithContext(ctx).
		Where(queryContent, ref.Kind, ref.ID).
		Order("created_at_s ASC, vote_id ASC").
		Find(&votes).Error
	return votes, err
}
