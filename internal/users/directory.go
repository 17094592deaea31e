package users

import (
	"context"
	"errors"

	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/reputation"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrUserNotFound indicates the account does not exist.
var ErrUserNotFound = reputation.ErrUnknownUser

// Directory reads and updates user rows. Bind it to a transaction to make the
// reputation updates part of a larger unit of work.
type Directory struct {
	db *gorm.DB
}

// NewDirectory binds a Directory to a database handle or transaction.
func NewDirectory(db *gorm.DB) *Directory {
	return &Directory{db: db}
}

// Find loads one user.
func (d *Directory) Find(ctx context.Context, userID string) (User, error) {
	var user User
	err := d.db.WithContext(ctx).Where("user_id = ?", normalize(userID)).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// FindReputationHolder loads the user's total and version with a row lock.
func (d *Directory) FindReputationHolder(ctx context.Context, userID string) (reputation.Holder, error) {
	var user User
	err := d.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", normalize(userID)).
		Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return reputation.Holder{}, ErrUserNotFound
	}
	if err != nil {
		return reputation.Holder{}, err
	}
	return reputation.Holder{UserID: user.ID, Total: user.Reputation, Version: user.Version}, nil
}

// ApplyReputationDelta adds delta to the total if the row still carries
// expectedVersion and returns the new version.
func (d *Directory) ApplyReputationDelta(ctx context.Context, userID string, delta int, expectedVersion int64) (int64, error) {
	result := d.db.WithContext(ctx).
		Model(&User{}).
		Where("user_id = ? AND version = ?", normalize(userID), expectedVersion).
		Updates(map[string]interface{}{
			"reputation": gorm.Expr("reputation + ?", delta),
			"version":    gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected == 0 {
		return 0, reputation.ErrVersionConflict
	}
	return expectedVersion + 1, nil
}
