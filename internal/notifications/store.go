package notifications

import (
	"context"

	"gorm.io/gorm"
)

const (
	queryRecipient = "recipient_id = ?"
	orderNewest    = "created_at_s DESC, notification_id DESC"
)

// Store persists notifications.
type Store interface {
	Append(ctx context.Context, notification *Notification) error
	ListForRecipient(ctx context.Context, recipientID string, unreadOnly bool) ([]Notification, error)
	CountUnread(ctx context.Context, recipientID string) (int64, error)
	MarkRead(ctx context.Context, recipientID, notificationID string, readAtSeconds int64) (bool, error)
	MarkAllRead(ctx context.Context, recipientID string, readAtSeconds int64) (int64, error)
}

// GormStore is the relational notification Store.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore binds a GormStore to a database handle.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Append(ctx context.Context, notification *Notification) error {
	return s.db.WithContext(ctx).Create(notification).Error
}

func (s *GormStore) ListForRecipient(ctx context.Context, recipientID string, unreadOnly bool) ([]Notification, error) {
	var notifications []Notification
	query := s.db.WithContext(ctx).Where(queryRecipient, recipientID)
	if unreadOnly {
		query = query.Where("is_read = ?", false)
	}
	err := query.Order(orderNewest).Find(&notifications).Error
	return notifications, err
}

func (s *GormStore) CountUnread(ctx context.Context, recipientID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&Notification{}).
		Where(queryRecipient+" AND is_read = ?", recipientID, false).
		Count(&count).Error
	return count, err
}

// MarkRead reports false when no notification with the id belongs to the recipient.
// Marking an already read notification keeps its first read time.
func (s *GormStore) MarkRead(ctx context.Context, recipientID, notificationID string, readAtSeconds int64) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&Notification{}).
		Where(queryRecipient+" AND notification_id = ?", recipientID, notificationID).
		Count(&count).Error
	if err != nil || count == 0 {
		return false, err
	}
	err = s.db.WithContext(ctx).
		Model(&Notification{}).
		Where(queryRecipient+" AND notification_id = ? AND is_read = ?", recipientID, notificationID, false).
		Updates(map[string]interface{}{"is_read": true, "read_at_s": readAtSeconds}).Error
	return err == nil, err
}

func (s *GormStore) MarkAllRead(ctx context.Context, recipientID string, readAtSeconds int64) (int64, error) {
	result := s.db.WithContext(ctx).
		Model(&Notification{}).
		Where(queryRecipient+" AND is_read = ?", recipientID, false).
		Updates(map[string]interface{}{"is_read": true, "read_at_s": readAtSeconds})
	return result.RowsAffected, result.Error
}
