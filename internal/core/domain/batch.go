package domain

import (
	"time"
)

// ChangeType is the kind of mutation a single change requests.
type ChangeType string

const (
	ChangeAdd             ChangeType = "Add"
	ChangeDeleteRecordSet ChangeType = "DeleteRecordSet"
)

// BatchStatus is the lifecycle state of a batch change envelope.
type BatchStatus string

const (
	BatchPending        BatchStatus = "Pending"
	BatchScheduled      BatchStatus = "Scheduled"
	BatchPendingReview  BatchStatus = "PendingReview"
	BatchProcessing     BatchStatus = "Processing"
	BatchComplete       BatchStatus = "Complete"
	BatchPartialFailure BatchStatus = "PartialFailure"
	BatchFailed         BatchStatus = "Failed"
)

// ApprovalStatus is the review state of a batch change.
type ApprovalStatus string

const (
	ApprovalAuto             ApprovalStatus = "AutoApproved"
	ApprovalPendingReview    ApprovalStatus = "PendingReview"
	ApprovalManuallyApproved ApprovalStatus = "ManuallyApproved"
	ApprovalManuallyRejected ApprovalStatus = "ManuallyRejected"
)

// SingleChangeStatus is the state of one child change within a batch.
type SingleChangeStatus string

const (
	ChangePending     SingleChangeStatus = "Pending"
	ChangeNeedsReview SingleChangeStatus = "NeedsReview"
	ChangeComplete    SingleChangeStatus = "Complete"
	ChangeFailed      SingleChangeStatus = "Failed"
)

// SingleChange is one requested record mutation inside a batch. InputName is
// echoed back canonicalized with a trailing dot; zone and record-set fields
// are populated by zone discovery and execution.
type SingleChange struct {
	ID         string      `json:"id"`
	ChangeType ChangeType  `json:"change_type"`
	InputName  string      `json:"input_name"`
	Type       RecordType  `json:"type"`
	TTL        *int        `json:"ttl,omitempty"`    // Add only
	Record     *RecordData `json:"record,omitempty"` // Add, or a specific record to delete

	ZoneID      string `json:"zone_id,omitempty"`
	ZoneName    string `json:"zone_name,omitempty"`
	RecordName  string `json:"record_name,omitempty"`
	RecordSetID string `json:"record_set_id,omitempty"`

	Status           SingleChangeStatus `json:"status"`
	SystemMessage    string             `json:"system_message,omitempty"`
	ValidationErrors []ChangeError      `json:"validation_errors,omitempty"`
}

// IsPartialDelete reports whether the change deletes one record from a
// multi-record set rather than the whole set.
func (c *SingleChange) IsPartialDelete() bool {
	return c.ChangeType == ChangeDeleteRecordSet && c.Record != nil
}

// BatchChange is a user-submitted atomic group of record mutations spanning
// one or more zones. Child changes keep submission order.
type BatchChange struct {
	ID             string         `json:"id"`
	UserID         string         `json:"user_id"`
	UserName       string         `json:"user_name"`
	Comments       *string        `json:"comments,omitempty"`
	OwnerGroupID   *string        `json:"owner_group_id,omitempty"`
	ScheduledTime  *time.Time     `json:"scheduled_time,omitempty"`
	ApprovalStatus ApprovalStatus `json:"approval_status"`
	Status         BatchStatus    `json:"status"`
	Changes        []SingleChange `json:"changes"`
	ReviewerID     *string        `json:"reviewer_id,omitempty"`
	ReviewComment  *string        `json:"review_comment,omitempty"`
	ReviewedAt     *time.Time     `json:"reviewed_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// BatchSummary is the list view of a batch, without child changes.
type BatchSummary struct {
	ID             string         `json:"id"`
	UserID         string         `json:"user_id"`
	UserName       string         `json:"user_name"`
	Comments       *string        `json:"comments,omitempty"`
	OwnerGroupID   *string        `json:"owner_group_id,omitempty"`
	ApprovalStatus ApprovalStatus `json:"approval_status"`
	Status         BatchStatus    `json:"status"`
	TotalChanges   int            `json:"total_changes"`
	CreatedAt      time.Time      `json:"created_at"`
}
