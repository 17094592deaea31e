package notifications

import (
	"errors"

	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/content"
)

// Type classifies a notification for the inbox.
type Type string

const (
	TypeTag            Type = "TAG"
	TypeQuestion       Type = "QUESTION"
	TypeAnswer         Type = "ANSWER"
	TypeAnswerAccepted Type = "ANSWER_ACCEPTED"
	TypeAnswerUpdate   Type = "ANSWER_UPDATE"
	TypeQuestionUpdate Type = "QUESTION_UPDATE"
	TypeFollow         Type = "FOLLOW"
)

// ErrNotFound indicates the notification does not exist for the recipient.
var ErrNotFound = errors.New("notifications: not found")

// Notification is one inbox item. IsRead is the only field that changes after insert.
type Notification struct {
	NotificationID   string       `gorm:"column:notification_id;primaryKey;size:190;not null"`
	RecipientID      string       `gorm:"column:recipient_id;size:190;not null;index:idx_notifications_recipient,priority:1"`
	Type             Type         `gorm:"column:type;size:32;not null"`
	ReferenceKind    content.Kind `gorm:"column:reference_kind;size:16;not null"`
	ReferenceID      string       `gorm:"column:reference_id;size:190;not null"`
	Message          string       `gorm:"column:message;size:512;not null"`
	IsRead           bool         `gorm:"column:is_read;not null;default:false;index:idx_notifications_recipient,priority:2"`
	CreatedAtSeconds int64        `gorm:"column:created_at_s;not null"`
	ReadAtSeconds    *int64       `gorm:"column:read_at_s"`
}

// TableName provides the explicit table binding for GORM.
func (Notification) TableName() string {
	return "notifications"
}

// EventKind names the state transitions that fan out notifications.
type EventKind string

const (
	EventNewAnswer           EventKind = "NEW_ANSWER"
	EventNewQuestionWithTags EventKind = "NEW_QUESTION_WITH_TAGS"
	EventAnswerAccepted      EventKind = "ANSWER_ACCEPTED"
	EventContentUpdated      EventKind = "CONTENT_UPDATED"
	EventContentFollowed     EventKind = "CONTENT_FOLLOWED"
)

// Event is a committed state transition. Ref is the answer for NEW_ANSWER and
// ANSWER_ACCEPTED, the question for NEW_QUESTION_WITH_TAGS, and the edited or
// followed item otherwise. ActorID is the editor or follower where relevant.
type Event struct {
	Kind    EventKind
	Ref     content.Ref
	ActorID string
}

// FanoutResult counts the inserts of one Notify call.
type FanoutResult struct {
	Created int
	Failed  int
}

// Models lists every table owned by the package.
func Models() []interface{} {
	return []interface{}{&Notification{}}
}
