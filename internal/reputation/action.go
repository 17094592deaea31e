package reputation

// Action enumerates the reasons a reputation entry is written.
type Action string

const (
	// ActionQuestionUpvote credits a question author for an upvote.
	ActionQuestionUpvote Action = "QUESTION_UPVOTE"
	// ActionQuestionDownvote debits a question author for a downvote.
	ActionQuestionDownvote Action = "QUESTION_DOWNVOTE"
	// ActionAnswerUpvote credits an answer author for an upvote.
	ActionAnswerUpvote Action = "ANSWER_UPVOTE"
	// ActionAnswerDownvote debits an answer author for a downvote.
	ActionAnswerDownvote Action = "ANSWER_DOWNVOTE"
	// ActionAnswerAccepted credits an answer author when the answer is accepted.
	ActionAnswerAccepted Action = "ANSWER_ACCEPTED"
	// ActionAnswerUnaccepted debits an answer author when acceptance is withdrawn.
	ActionAnswerUnaccepted Action = "ANSWER_UNACCEPTED"
	// ActionDownvoteGiven charges the voter for casting a downvote.
	ActionDownvoteGiven Action = "DOWNVOTE_GIVEN"
	// ActionQuestionAsked records a new question; it carries no points.
	ActionQuestionAsked Action = "QUESTION_ASKED"
)

type actionDefinition struct {
	points      int
	description string
}

var actionTable = map[Action]actionDefinition{
	ActionQuestionUpvote:   {points: 5, description: "Question upvoted"},
	ActionQuestionDownvote: {points: -2, description: "Question downvoted"},
	ActionAnswerUpvote:     {points: 10, description: "Answer upvoted"},
	ActionAnswerDownvote:   {points: -2, description: "Answer downvoted"},
	ActionAnswerAccepted:   {points: 15, description: "Answer accepted"},
	ActionAnswerUnaccepted: {points: -15, description: "Answer unaccepted"},
	ActionDownvoteGiven:    {points: -1, description: "Gave downvote"},
	ActionQuestionAsked:    {points: 0, description: "Question asked"},
}

// Points returns the signed point value of the action.
func (a Action) Points() int {
	return actionTable[a].points
}

// Description returns the human readable label stored on history entries.
func (a Action) Description() string {
	return actionTable[a].description
}

// Valid reports whether the action is part of the point table.
func (a Action) Valid() bool {
	_, ok := actionTable[a]
	return ok
}

func (a Action) String() string {
	return string(a)
}

// Privilege names a capability gated by reputation.
type Privilege string

const (
	PrivilegeUpvote     Privilege = "upvote"
	PrivilegeDownvote   Privilege = "downvote"
	PrivilegeComment    Privilege = "comment"
	PrivilegeCreateTags Privilege = "create_tags"
	PrivilegeEdit       Privilege = "edit"
	PrivilegeDelete     Privilege = "delete"
	PrivilegeModerate   Privilege = "moderate"
)

const (
	defaultDailyCap            = 200
	defaultUpvoteThreshold     = 15
	defaultDownvoteThreshold   = 125
	defaultCommentThreshold    = 50
	defaultCreateTagsThreshold = 1500
	defaultEditThreshold       = 2000
	defaultDeleteThreshold     = 10000
	// Floor is the minimum materialized reputation total.
	Floor = 1
)

// Policy holds the daily cap and privilege thresholds.
type Policy struct {
	DailyCap   int
	Thresholds map[Privilege]int
}

// DefaultPolicy returns the production point policy.
func DefaultPolicy() Policy {
	return Policy{
		DailyCap: defaultDailyCap,
		Thresholds: map[Privilege]int{
			PrivilegeUpvote:     defaultUpvoteThreshold,
			PrivilegeDownvote:   defaultDownvoteThreshold,
			PrivilegeComment:    defaultCommentThreshold,
			PrivilegeCreateTags: defaultCreateTagsThreshold,
			PrivilegeEdit:       defaultEditThreshold,
			PrivilegeDelete:     defaultDeleteThreshold,
			PrivilegeModerate:   defaultDeleteThreshold,
		},
	}
}

// WithThreshold returns a copy of the policy with one threshold replaced.
func (p Policy) WithThreshold(privilege Privilege, required int) Policy {
	thresholds := make(map[Privilege]int, len(p.Thresholds)+1)
	for key, value := range p.Thresholds {
		thresholds[key] = value
	}
	thresholds[privilege] = required
	p.Thresholds = thresholds
	return p
}

// Threshold returns the reputation required for a privilege.
func (p Policy) Threshold(privilege Privilege) int {
	return p.Thresholds[privilege]
}

// Privileges evaluates every privilege against a reputation total.
func (p Policy) Privileges(total int) map[Privilege]bool {
	granted := make(map[Privilege]bool, len(p.Thresholds))
	for privilege, required := range p.Thresholds {
		granted[privilege] = total >= required
	}
	return granted
}
