package users

import (
	"context"
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/serviceerror"
	"go.uber.org/zap"
	"gorm.io/gorm/clause"
)

const (
	operationFollowUser   = "users.follow"
	operationUnfollowUser = "users.unfollow"
	operationListFollows  = "users.list_follows"
	queryFollowPair       = "follower_id = ? AND following_id = ?"
)

var (
	// ErrSelfFollow indicates a user tried to follow themselves.
	ErrSelfFollow = errors.New("users: cannot follow yourself")
	// ErrAlreadyFollowing indicates the follow relation already exists.
	ErrAlreadyFollowing = errors.New("users: already following")
	// ErrNotFollowing indicates the follow relation does not exist.
	ErrNotFollowing = errors.New("users: not following")
)

// Follow records that FollowerID follows FollowingID.
type Follow struct {
	FollowerID  string    `gorm:"column:follower_id;primaryKey;size:190;not null"`
	FollowingID string    `gorm:"column:following_id;primaryKey;size:190;not null;index"`
	CreatedAt   time.Time `gorm:"column:created_at;not null"`
}

// TableName exposes the table backing user follows.
func (Follow) TableName() string {
	return "user_follows"
}

// FollowCounts summarizes both directions of a user's follow graph.
type FollowCounts struct {
	Followers int64
	Following int64
}

// FollowUser makes followerID follow followingID. Both accounts must exist.
func (s *Service) FollowUser(ctx context.Context, followerID, followingID string) error {
	followerID, followingID = normalize(followerID), normalize(followingID)
	if err := s.requireUsers(ctx, followerID, followingID); err != nil {
		return err
	}
	if followerID == followingID {
		return ErrSelfFollow
	}
	record := Follow{FollowerID: followerID, FollowingID: followingID, CreatedAt: s.clock().UTC()}
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&record)
	if result.Error != nil {
		s.logError(operationFollowUser, "insert_failed", result.Error, zap.String("follower_id", followerID), zap.String("following_id", followingID))
		return serviceerror.New(operationFollowUser, "insert_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrAlreadyFollowing
	}
	return nil
}

// UnfollowUser removes the relation created by FollowUser.
func (s *Service) UnfollowUser(ctx context.Context, followerID, followingID string) error {
	followerID, followingID = normalize(followerID), normalize(followingID)
	if err := s.requireUsers(ctx, followerID, followingID); err != nil {
		return err
	}
	result := s.db.WithContext(ctx).Where(queryFollowPair, followerID, followingID).Delete(&Follow{})
	if result.Error != nil {
		s.logError(operationUnfollowUser, "delete_failed", result.Error, zap.String("follower_id", followerID), zap.String("following_id", followingID))
		return serviceerror.New(operationUnfollowUser, "delete_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFollowing
	}
	return nil
}

// IsFollowing reports whether followerID follows followingID.
func (s *Service) IsFollowing(ctx context.Context, followerID, followingID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Follow{}).
		Where(queryFollowPair, normalize(followerID), normalize(followingID)).
		Count(&count).Error
	if err != nil {
		s.logError(operationListFollows, "query_failed", err, zap.String("follower_id", followerID))
		return false, serviceerror.New(operationListFollows, "query_failed", err)
	}
	return count > 0, nil
}

// Followers lists the accounts following userID, most recent first.
func (s *Service) Followers(ctx context.Context, userID string) ([]User, error) {
	return s.listFollows(ctx, userID, "user_follows.follower_id", "user_follows.following_id")
}

// Following lists the accounts userID follows, most recent first.
func (s *Service) Following(ctx context.Context, userID string) ([]User, error) {
	return s.listFollows(ctx, userID, "user_follows.following_id", "user_follows.follower_id")
}

func (s *Service) listFollows(ctx context.Context, userID, joinColumn, filterColumn string) ([]User, error) {
	userID = normalize(userID)
	if err := s.requireUsers(ctx, userID); err != nil {
		return nil, err
	}
	var accounts []User
	err := s.db.WithContext(ctx).
		Joins("JOIN user_follows ON "+joinColumn+" = users.user_id").
		Where(filterColumn+" = ?", userID).
		Order("user_follows.created_at DESC").
		Find(&accounts).Error
	if err != nil {
		s.logError(operationListFollows, "query_failed", err, zap.String("user_id", userID))
		return nil, serviceerror.New(operationListFollows, "query_failed", err)
	}
	return accounts, nil
}

// FollowCounts counts userID's followers and followed accounts.
func (s *Service) FollowCounts(ctx context.Context, userID string) (FollowCounts, error) {
	userID = normalize(userID)
	var counts FollowCounts
	if err := s.db.WithContext(ctx).Model(&Follow{}).Where("following_id = ?", userID).Count(&counts.Followers).Error; err != nil {
		s.logError(operationListFollows, "query_failed", err, zap.String("user_id", userID))
		return FollowCounts{}, serviceerror.New(operationListFollows, "query_failed", err)
	}
	if err := s.db.WithContext(ctx).Model(&Follow{}).Where("follower_id = ?", userID).Count(&counts.Following).Error; err != nil {
		s.logError(operationListFollows, "query_failed", err, zap.String("user_id", userID))
		return FollowCounts{}, serviceerror.New(operationListFollows, "query_failed", err)
	}
	return counts, nil
}

func (s *Service) requireUsers(ctx context.Context, userIDs ...string) error {
	directory := NewDirectory(s.db)
	for _, userID := range userIDs {
		if _, err := directory.Find(ctx, userID); err != nil {
			if errors.Is(err, ErrUserNotFound) {
				return err
			}
			s.logError(operationGetUser, "query_failed", err, zap.String("user_id", userID))
			return serviceerror.New(operationGetUser, "query_failed", err)
		}
	}
	return nil
}
