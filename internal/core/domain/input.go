package domain

import (
	"fmt"
	"strings"
	"time"
)

// ChangeInput is one requested mutation as submitted on the wire.
type ChangeInput struct {
	ChangeType ChangeType  `json:"change_type"`
	InputName  string      `json:"input_name"`
	Type       RecordType  `json:"type"`
	TTL        *int        `json:"ttl,omitempty"`
	Record     *RecordData `json:"record,omitempty"`
}

// BatchChangeInput is the submission payload for a batch change.
type BatchChangeInput struct {
	Comments      *string       `json:"comments,omitempty"`
	OwnerGroupID  *string       `json:"owner_group_id,omitempty"`
	ScheduledTime *time.Time    `json:"scheduled_time,omitempty"`
	Changes       []ChangeInput `json:"changes"`
}

// RequestErrors is a syntactic rejection of a whole request, rendered as
// {"errors": [...]} on the wire.
type RequestErrors struct {
	Errors []string `json:"errors"`
}

func (e *RequestErrors) Error() string {
	return strings.Join(e.Errors, "; ")
}

// BatchRejection is returned when validation fails hard. Changes carry the
// original submissions, in order, each with its validation errors attached.
type BatchRejection struct {
	Changes []SingleChange `json:"changes"`
}

func (r *BatchRejection) Error() string {
	n := 0
	for _, c := range r.Changes {
		n += len(c.ValidationErrors)
	}
	return fmt.Sprintf("batch change rejected with %d validation error(s)", n)
}
