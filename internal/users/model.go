package users

import (
	"strings"
	"time"
)

// InitialReputation is the total every new account starts with; it is also the floor.
const InitialReputation = 1

// User is a platform account together with its materialized reputation state.
// Version is bumped on every reputation write and guards optimistic updates.
type User struct {
	ID          string    `gorm:"column:user_id;primaryKey;size:190;not null"`
	DisplayName string    `gorm:"column:display_name;size:320;not null"`
	Email       string    `gorm:"column:email;size:320;index"`
	Reputation  int       `gorm:"column:reputation;not null;default:1"`
	Version     int64     `gorm:"column:version;not null;default:1"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing user accounts.
func (User) TableName() string {
	return "users"
}

// Models lists every table owned by the package.
func Models() []interface{} {
	return []interface{}{&User{}, &Follow{}}
}

// normalize value helper used across service implementation.
func normalize(value string) string {
	return strings.TrimSpace(value)
}
