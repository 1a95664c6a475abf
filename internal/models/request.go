package models

import "time"

// RequestStatus is the lifecycle state of an admin request
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
)

// IsTerminal reports whether no further transitions are allowed
func (s RequestStatus) IsTerminal() bool {
	return s == RequestApproved || s == RequestRejected
}

// AdminRequest is a user-submitted request awaiting an admin decision
type AdminRequest struct {
	ID          int64         `db:"id" json:"id"`
	UserID      int64         `db:"user_id" json:"user_id"`
	Text        string        `db:"request_text" json:"text"`
	Status      RequestStatus `db:"status" json:"status"`
	ProcessedAt *time.Time    `db:"processed_at" json:"processed_at,omitempty"`
	Username    *string       `db:"username" json:"username,omitempty"`
}
