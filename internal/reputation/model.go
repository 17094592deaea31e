package reputation

import (
	"errors"
	"fmt"
)

const dayLayout = "2006-01-02"

var (
	// ErrUnknownUser indicates the reputation holder does not exist.
	ErrUnknownUser = errors.New("reputation: unknown user")
	// ErrVersionConflict indicates the holder's total changed since it was read.
	ErrVersionConflict = errors.New("reputation: version conflict")
	// ErrInsufficientReputation indicates the holder lacks a privilege.
	ErrInsufficientReputation = errors.New("reputation: insufficient reputation")
	// ErrInvalidAction indicates an action outside the point table.
	ErrInvalidAction = errors.New("reputation: invalid action")
)

// InsufficientReputationError reports the threshold a holder failed to meet.
type InsufficientReputationError struct {
	Privilege Privilege
	Required  int
	Actual    int
}

func (e *InsufficientReputationError) Error() string {
	return fmt.Sprintf("reputation: %s requires %d reputation, have %d", e.Privilege, e.Required, e.Actual)
}

func (e *InsufficientReputationError) Unwrap() error {
	return ErrInsufficientReputation
}

// Entry is one append-only reputation history row. Reversals are new rows with
// the inverse sign, never edits.
type Entry struct {
	EntryID          string  `gorm:"column:entry_id;primaryKey;size:190;not null"`
	UserID           string  `gorm:"column:user_id;size:190;not null;index:idx_reputation_user_time,priority:1"`
	Action           Action  `gorm:"column:action;size:32;not null"`
	Points           int     `gorm:"column:points;not null"`
	Reversal         bool    `gorm:"column:reversal;not null;default:false"`
	QuestionID       *string `gorm:"column:question_id;size:190"`
	AnswerID         *string `gorm:"column:answer_id;size:190"`
	VoteID           *string `gorm:"column:vote_id;size:190"`
	Description      string  `gorm:"column:description;size:320;not null"`
	CreatedAtSeconds int64   `gorm:"column:created_at_s;not null;index:idx_reputation_user_time,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (Entry) TableName() string {
	return "reputation_history"
}

// DailyTally is the per-(user, UTC day) running net of history points. Its row
// lock serializes daily cap checks for one user.
type DailyTally struct {
	UserID           string `gorm:"column:user_id;primaryKey;size:190;not null"`
	Day              string `gorm:"column:day;primaryKey;size:10;not null"`
	NetPoints        int    `gorm:"column:net_points;not null;default:0"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (DailyTally) TableName() string {
	return "reputation_daily_tallies"
}

// Gains is the tally's contribution toward the daily cap.
func (t DailyTally) Gains() int {
	if t.NetPoints < 0 {
		return 0
	}
	return t.NetPoints
}

// Holder is the materialized reputation state of one user.
type Holder struct {
	UserID  string
	Total   int
	Version int64
}

// Refs points a history entry to the content and vote that caused it.
type Refs struct {
	QuestionID string
	AnswerID   string
	VoteID     string
}

// AwardRequest asks the ledger to credit or debit a user for an action.
type AwardRequest struct {
	UserID string
	Action Action
	Refs   Refs
}

// AwardResult reports what an award or reversal changed. Capped is set when a
// positive delta was dropped because the daily cap had been reached; Entry is
// nil in that case.
type AwardResult struct {
	Entry   *Entry
	Capped  bool
	Total   int
	Applied int
}

// DailyStatus summarizes a user's progress toward today's cap.
type DailyStatus struct {
	Day       string
	Earned    int
	Cap       int
	Remaining int
	Reached   bool
}

// Models lists every table owned by the package.
func Models() []interface{} {
	return []interface{}{&Entry{}, &DailyTally{}}
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	v := value
	return &v
}
