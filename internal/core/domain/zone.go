package domain

import (
	"time"
)

// AccessLevel is the permission granted by an ACL rule.
type AccessLevel string

const (
	AccessNone   AccessLevel = "NoAccess"
	AccessRead   AccessLevel = "Read"
	AccessWrite  AccessLevel = "Write"
	AccessDelete AccessLevel = "Delete"
)

// Implies reports whether holding a grants everything b requires.
// Delete implies Write implies Read.
func (a AccessLevel) Implies(b AccessLevel) bool {
	rank := map[AccessLevel]int{AccessNone: 0, AccessRead: 1, AccessWrite: 2, AccessDelete: 3}
	return rank[a] >= rank[b]
}

// ACLRule grants an access level to exactly one of a user or a group,
// optionally scoped by record types and a record mask. The mask is a regex
// for forward zones and a CIDR for reverse PTR zones; a rule covering PTR
// together with forward types must carry an empty mask.
type ACLRule struct {
	UserID      *string      `json:"user_id,omitempty"`
	GroupID     *string      `json:"group_id,omitempty"`
	AccessLevel AccessLevel  `json:"access_level"`
	RecordTypes []RecordType `json:"record_types,omitempty"` // empty = all types
	RecordMask  *string      `json:"record_mask,omitempty"`
	Description string       `json:"description,omitempty"`
}

// AppliesToType reports whether the rule's type scope covers t.
func (r ACLRule) AppliesToType(t RecordType) bool {
	if len(r.RecordTypes) == 0 {
		return true
	}
	for _, rt := range r.RecordTypes {
		if rt == t {
			return true
		}
	}
	return false
}

// ZoneConnection describes how to reach an authoritative server, including
// TSIG key material for signed updates or transfers.
type ZoneConnection struct {
	Name          string `json:"name"`
	KeyName       string `json:"key_name"`
	Key           string `json:"key"`
	PrimaryServer string `json:"primary_server"`
}

// ZoneStatus is the lifecycle state of a zone.
type ZoneStatus string

const (
	ZoneSyncing   ZoneStatus = "Syncing"
	ZoneActive    ZoneStatus = "Active"
	ZoneAbandoned ZoneStatus = "Abandoned"
)

// Zone is an administrative DNS zone. Zone names are fully qualified,
// unique across the catalog and compared case-insensitively.
type Zone struct {
	ID                 string          `json:"id"`
	Name               string          `json:"name"`
	Email              string          `json:"email"`
	AdminGroupID       string          `json:"admin_group_id"`
	Shared             bool            `json:"shared"`
	IsTest             bool            `json:"is_test"`
	Status             ZoneStatus      `json:"status"`
	BackendID          *string         `json:"backend_id,omitempty"`
	Connection         *ZoneConnection `json:"connection,omitempty"`
	TransferConnection *ZoneConnection `json:"transfer_connection,omitempty"`
	ACL                []ACLRule       `json:"acl,omitempty"`
	AllowDottedHosts   bool            `json:"allow_dotted_hosts"`
	AllowDottedLimit   int             `json:"allow_dotted_limit"`
	RecurrenceSchedule *string         `json:"recurrence_schedule,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// IsReverse reports whether the zone is an in-addr.arpa or ip6.arpa zone.
func (z *Zone) IsReverse() bool {
	return IsReverseName(z.Name)
}

// ZoneChangeType identifies a zone lifecycle operation.
type ZoneChangeType string

const (
	ZoneChangeCreate ZoneChangeType = "Create"
	ZoneChangeUpdate ZoneChangeType = "Update"
	ZoneChangeDelete ZoneChangeType = "Delete"
)

// ZoneChange is the accepted envelope returned by zone lifecycle operations.
type ZoneChange struct {
	ID         string         `json:"id"`
	Zone       Zone           `json:"zone"`
	UserID     string         `json:"user_id"`
	ChangeType ZoneChangeType `json:"change_type"`
	Status     string         `json:"status"`
	CreatedAt  time.Time      `json:"created_at"`
}
