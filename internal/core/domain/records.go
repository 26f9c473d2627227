// Package domain contains the core business logic and entities for batchdns.
package domain

import (
	"strings"
	"time"
)

// RecordType represents the type of a DNS record (e.g., A, AAAA, MX).
type RecordType string

const (
	// TypeA represents an IPv4 address record.
	TypeA RecordType = "A"
	// TypeAAAA represents an IPv6 address record.
	TypeAAAA RecordType = "AAAA"
	// TypeCNAME represents a canonical name record.
	TypeCNAME RecordType = "CNAME"
	// TypePTR represents a pointer record.
	TypePTR RecordType = "PTR"
	// TypeTXT represents a text record.
	TypeTXT RecordType = "TXT"
	// TypeMX represents a mail exchange record.
	TypeMX RecordType = "MX"
	// TypeSRV represents a service locator record (RFC 2782).
	TypeSRV RecordType = "SRV"
	// TypeNAPTR represents a naming authority pointer record.
	TypeNAPTR RecordType = "NAPTR"
	// TypeDS represents a delegation signer record.
	TypeDS RecordType = "DS"
	// TypeNS represents a name server record.
	TypeNS RecordType = "NS"
)

// ForwardTypes are the record types resolved against forward zones. PTR is
// the only type resolved against reverse zones.
var ForwardTypes = []RecordType{TypeA, TypeAAAA, TypeCNAME, TypeTXT, TypeMX, TypeSRV, TypeNAPTR, TypeNS, TypeDS}

// KnownType reports whether t is a record type this service manages.
func KnownType(t RecordType) bool {
	switch t {
	case TypeA, TypeAAAA, TypeCNAME, TypePTR, TypeTXT, TypeMX, TypeSRV, TypeNAPTR, TypeDS, TypeNS:
		return true
	}
	return false
}

// SupportsMultipleRecords reports whether a record set of type t may hold
// more than one record. CNAME sets must hold exactly one record.
func SupportsMultipleRecords(t RecordType) bool {
	return t != TypeCNAME
}

// RecordData is the typed payload of a single record. The populated fields
// depend on the record type; unused fields are omitted on the wire.
type RecordData struct {
	Address     string `json:"address,omitempty"`     // A, AAAA
	CName       string `json:"cname,omitempty"`       // CNAME
	PtrDName    string `json:"ptrdname,omitempty"`    // PTR
	Text        string `json:"text,omitempty"`        // TXT
	Preference  *int   `json:"preference,omitempty"`  // MX, NAPTR
	Exchange    string `json:"exchange,omitempty"`    // MX
	Priority    *int   `json:"priority,omitempty"`    // SRV
	Weight      *int   `json:"weight,omitempty"`      // SRV
	Port        *int   `json:"port,omitempty"`        // SRV
	Target      string `json:"target,omitempty"`      // SRV
	Order       *int   `json:"order,omitempty"`       // NAPTR
	Flags       string `json:"flags,omitempty"`       // NAPTR
	Service     string `json:"service,omitempty"`     // NAPTR
	Regexp      string `json:"regexp,omitempty"`      // NAPTR
	Replacement string `json:"replacement,omitempty"` // NAPTR
	KeyTag      *int   `json:"keytag,omitempty"`      // DS
	Algorithm   *int   `json:"algorithm,omitempty"`   // DS
	DigestType  *int   `json:"digesttype,omitempty"`  // DS
	Digest      string `json:"digest,omitempty"`      // DS
	NSDName     string `json:"nsdname,omitempty"`     // NS
}

// Equal compares two record payloads for the given type. Domain-name valued
// fields compare case-insensitively.
func (d RecordData) Equal(t RecordType, other RecordData) bool {
	switch t {
	case TypeA, TypeAAAA:
		return d.Address == other.Address
	case TypeCNAME:
		return strings.EqualFold(d.CName, other.CName)
	case TypePTR:
		return strings.EqualFold(d.PtrDName, other.PtrDName)
	case TypeTXT:
		return d.Text == other.Text
	case TypeMX:
		return intPtrEqual(d.Preference, other.Preference) && strings.EqualFold(d.Exchange, other.Exchange)
	case TypeSRV:
		return intPtrEqual(d.Priority, other.Priority) && intPtrEqual(d.Weight, other.Weight) &&
			intPtrEqual(d.Port, other.Port) && strings.EqualFold(d.Target, other.Target)
	case TypeNAPTR:
		return intPtrEqual(d.Order, other.Order) && intPtrEqual(d.Preference, other.Preference) &&
			d.Flags == other.Flags && d.Service == other.Service && d.Regexp == other.Regexp &&
			strings.EqualFold(d.Replacement, other.Replacement)
	case TypeDS:
		return intPtrEqual(d.KeyTag, other.KeyTag) && intPtrEqual(d.Algorithm, other.Algorithm) &&
			intPtrEqual(d.DigestType, other.DigestType) && strings.EqualFold(d.Digest, other.Digest)
	case TypeNS:
		return strings.EqualFold(d.NSDName, other.NSDName)
	}
	return false
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// RecordSet is a named group of records of one type inside a zone. Name,
// type and zone id are immutable after creation. The apex is represented
// by a name equal to the zone name.
type RecordSet struct {
	ID                   string             `json:"id"`
	ZoneID               string             `json:"zone_id"`
	Name                 string             `json:"name"`
	Type                 RecordType         `json:"type"`
	TTL                  int                `json:"ttl"`
	Records              []RecordData       `json:"records"`
	OwnerGroupID         *string            `json:"owner_group_id,omitempty"`
	RecordSetGroupChange *OwnershipTransfer `json:"record_set_group_change,omitempty"`
	CreatedAt            time.Time          `json:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at"`
}

// ContainsRecord reports whether rs holds a record equal to rec.
func (rs *RecordSet) ContainsRecord(rec RecordData) bool {
	for _, r := range rs.Records {
		if r.Equal(rs.Type, rec) {
			return true
		}
	}
	return false
}

// RecordSetChangeAction identifies what a planned record-set operation does.
type RecordSetChangeAction string

const (
	ActionCreate RecordSetChangeAction = "Create"
	ActionUpdate RecordSetChangeAction = "Update"
	ActionDelete RecordSetChangeAction = "Delete"
)

// RecordSetChange is a single planned mutation of one record set, the unit
// of backend application and of per-record-set locking.
type RecordSetChange struct {
	ID        string                `json:"id"`
	ZoneID    string                `json:"zone_id"`
	Action    RecordSetChangeAction `json:"action"`
	RecordSet RecordSet             `json:"record_set"`
	// Existing is the record set being replaced or deleted, nil on create.
	Existing  *RecordSet `json:"existing,omitempty"`
	UserID    string     `json:"user_id"`
	CreatedAt time.Time  `json:"created_at"`
}
