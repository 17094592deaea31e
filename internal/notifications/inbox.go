package notifications

import (
	"context"
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/serviceerror"
	"go.uber.org/zap"
)

const opInbox = "notifications.inbox"

// InboxConfig wires an Inbox.
type InboxConfig struct {
	Store  Store
	Clock  func() time.Time
	Logger *zap.Logger
}

// Inbox serves a recipient's notifications and read flags.
type Inbox struct {
	store  Store
	clock  func() time.Time
	logger *zap.Logger
}

// NewInbox validates the configuration and returns an Inbox.
func NewInbox(cfg InboxConfig) (*Inbox, error) {
	if cfg.Store == nil {
		return nil, serviceerror.New("notifications.inbox.new", "missing_store", errors.New("notification store is required"))
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Inbox{store: cfg.Store, clock: clock, logger: logger}, nil
}

// List returns every notification of the recipient, newest first.
func (i *Inbox) List(ctx context.Context, recipientID string) ([]Notification, error) {
	return i.list(ctx, recipientID, false)
}

// ListUnread returns the recipient's unread notifications, newest first.
func (i *Inbox) ListUnread(ctx context.Context, recipientID string) ([]Notification, error) {
	return i.list(ctx, recipientID, true)
}

func (i *Inbox) list(ctx context.Context, recipientID string, unreadOnly bool) ([]Notification, error) {
	notifications, err := i.store.ListForRecipient(ctx, recipientID, unreadOnly)
	if err != nil {
		i.logError("query_failed", err, zap.String("recipient_id", recipientID))
		return nil, serviceerror.New(opInbox, "query_failed", err)
	}
	return notifications, nil
}

// UnreadCount returns how many notifications the recipient has not read.
func (i *Inbox) UnreadCount(ctx context.Context, recipientID string) (int64, error) {
	count, err := i.store.CountUnread(ctx, recipientID)
	if err != nil {
		i.logError("query_failed", err, zap.String("recipient_id", recipientID))
		return 0, serviceerror.New(opInbox, "query_failed", err)
	}
	return count, nil
}

// MarkRead flags one notification as read. Recipients can only mark their own.
func (i *Inbox) MarkRead(ctx context.Context, recipientID, notificationID string) error {
	found, err := i.store.MarkRead(ctx, recipientID, notificationID, i.clock().UTC().Unix())
	if err != nil {
		i.logError("update_failed", err, zap.String("recipient_id", recipientID), zap.String("notification_id", notificationID))
		return serviceerror.New(opInbox, "update_failed", err)
	}
	if !found {
		return ErrNotFound
	}
	return nil
}

// MarkAllRead flags every unread notification of the recipient and returns how many changed.
func (i *Inbox) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	updated, err := i.store.MarkAllRead(ctx, recipientID, i.clock().UTC().Unix())
	if err != nil {
		i.logError("update_failed", err, zap.String("recipient_id", recipientID))
		return 0, serviceerror.New(opInbox, "update_failed", err)
	}
	return updated, nil
}

func (i *Inbox) logError(reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", opInbox),
		zap.String("reason", reason),
		zap.Error(err),
	}
	i.logger.Error("notification inbox error", append(attrs, fields...)...)
}
