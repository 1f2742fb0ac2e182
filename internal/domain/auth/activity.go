package auth

import "time"

// ActivityKind names the session operation an ActivityEvent records.
type ActivityKind string

const (
	ActivityLogin    ActivityKind = "login"
	ActivityRegister ActivityKind = "register"
	ActivityLogout   ActivityKind = "logout"
	ActivityRestore  ActivityKind = "restore"
)

// ActivityKinds lists every kind in display order.
func ActivityKinds() []ActivityKind {
	return []ActivityKind{ActivityLogin, ActivityRegister, ActivityLogout, ActivityRestore}
}

// ActivityOutcome is the result of the recorded operation.
type ActivityOutcome string

const (
	OutcomeSuccess ActivityOutcome = "success"
	OutcomeFailure ActivityOutcome = "failure"
	OutcomePending ActivityOutcome = "pending"
)

// ActivityEvent is one entry of the auth activity log.
type ActivityEvent struct {
	ID        string          `json:"id"         db:"id"`
	ConsoleID string          `json:"console_id" db:"console_id"`
	Kind      ActivityKind    `json:"kind"       db:"kind"`
	Outcome   ActivityOutcome `json:"outcome"    db:"outcome"`
	Email     string          `json:"email"      db:"email"`
	ErrorCode string          `json:"error_code" db:"error_code"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// ActivityListOptions filters activity queries.
type ActivityListOptions struct {
	Email string
	Kind  ActivityKind
	Limit int
}
