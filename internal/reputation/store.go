package reputation

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	queryUserRange  = "user_id = ? AND created_at_s >= ? AND created_at_s < ?"
	orderNewestTime = "created_at_s DESC, entry_id DESC"
)

// UserDirectory exposes the materialized reputation totals owned by the user store.
type UserDirectory interface {
	FindReputationHolder(ctx context.Context, userID string) (Holder, error)
	ApplyReputationDelta(ctx context.Context, userID string, delta int, expectedVersion int64) (int64, error)
}

// HistoryStore persists reputation history and the per-day tallies.
type HistoryStore interface {
	Append(ctx context.Context, entry *Entry) error
	SumPointsForUserOnDay(ctx context.Context, userID string, day time.Time) (int, error)
	SumGainsForUserOnDay(ctx context.Context, userID string, day time.Time) (int, error)
	LockTally(ctx context.Context, userID, day string) (DailyTally, bool, error)
	SaveTally(ctx context.Context, tally DailyTally, created bool) error
	List(ctx context.Context, userID string) ([]Entry, error)
	ListBetween(ctx context.Context, userID string, from, to time.Time) ([]Entry, error)
}

// GormStore is the relational HistoryStore.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore binds a GormStore to a database handle or transaction.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Append(ctx context.Context, entry *Entry) error {
	return s.db.WithContext(ctx).Create(entry).Error
}

// SumPointsForUserOnDay returns the signed net of the user's entries on the UTC day containing day.
func (s *GormStore) SumPointsForUserOnDay(ctx context.Context, userID string, day time.Time) (int, error) {
	start, end := dayBounds(day)
	var total int64
	err := s.db.WithContext(ctx).
		Model(&Entry{}).
		Select("COALESCE(SUM(points), 0)").
		Where(queryUserRange, userID, start.Unix(), end.Unix()).
		Scan(&total).Error
	return int(total), err
}

// SumGainsForUserOnDay floors the day's net at zero, which is what the daily cap counts.
func (s *GormStore) SumGainsForUserOnDay(ctx context.Context, userID string, day time.Time) (int, error) {
	total, err := s.SumPointsForUserOnDay(ctx, userID, day)
	if err != nil {
		return 0, err
	}
	if total < 0 {
		return 0, nil
	}
	return total, nil
}

// LockTally loads the (user, day) tally with a row lock. found is false when no
// row exists yet; the caller seeds and creates it.
func (s *GormStore) LockTally(ctx context.Context, userID, day string) (DailyTally, bool, error) {
	var tally DailyTally
	err := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND day = ?", userID, day).
		Take(&tally).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return DailyTally{UserID: userID, Day: day}, false, nil
	}
	if err != nil {
		return DailyTally{}, false, err
	}
	return tally, true, nil
}

func (s *GormStore) SaveTally(ctx context.Context, tally DailyTally, created bool) error {
	if created {
		return s.db.WithContext(ctx).Create(&tally).Error
	}
	return s.db.WithContext(ctx).
		Model(&DailyTally{}).
		Where("user_id = ? AND day = ?", tally.UserID, tally.Day).
		Updates(map[string]interface{}{
			"net_points":   tally.NetPoints,
			"updated_at_s": tally.UpdatedAtSeconds,
		}).Error
}

func (s *GormStore) List(ctx context.Context, userID string) ([]Entry, error) {
	var entries []Entry
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order(orderNewestTime).
		Find(&entries).Error
	return entries, err
}

// ListBetween returns entries in [from, to), newest first.
func (s *GormStore) ListBetween(ctx context.Context, userID string, from, to time.Time) ([]Entry, error) {
	var entries []Entry
	err := s.db.WithContext(ctx).
		Where(queryUserRange, userID, from.UTC().Unix(), to.UTC().Unix()).
		Order(orderNewestTime).
		Find(&entries).Error
	return entries, err
}

func dayBounds(moment time.Time) (time.Time, time.Time) {
	utc := moment.UTC()
	start := time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}

// DayKey formats the UTC calendar day used for tallies.
func DayKey(moment time.Time) string {
	return moment.UTC().Format(dayLayout)
}
