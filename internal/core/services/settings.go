package services

import (
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/poyrazK/batchdns/internal/core/domain"
)

// TTLPolicy decides what happens when an Add that updates an existing
// record set omits its TTL.
type TTLPolicy string

const (
	// TTLPolicyDefault applies the configured server default TTL.
	TTLPolicyDefault TTLPolicy = "default"
	// TTLPolicyInherit keeps the existing record set's TTL.
	TTLPolicyInherit TTLPolicy = "inherit"
)

// GlobalACLRule grants access to a record type for members of a group,
// regardless of record ownership. A rule that does not list a type grants
// nothing for it.
type GlobalACLRule struct {
	GroupIDs    []string            `json:"group_ids"`
	UserIDs     []string            `json:"user_ids"`
	RecordTypes []domain.RecordType `json:"record_types"`
	AccessLevel domain.AccessLevel  `json:"access_level"`
}

// Settings is the read-only configuration snapshot shared by the batch
// pipeline. Reloads publish a whole new snapshot; snapshots are never
// mutated in place.
type Settings struct {
	MaxBatchChanges     int
	AllowManualReview   bool
	SchedulingEnabled   bool
	DefaultTTL          int
	TTLPolicy           TTLPolicy
	SharedApprovedTypes []domain.RecordType
	HighValueDomains    []*regexp.Regexp
	ManualReviewDomains []*regexp.Regexp
	ManualReviewZones   map[string]bool // lowered fqdn zone names
	ApprovedNameServers []*regexp.Regexp
	AllowedEmailDomains []string // empty = any domain
	GlobalACLs          []GlobalACLRule
}

// DefaultSettings returns the settings used when no configuration file is
// present.
func DefaultSettings() *Settings {
	return &Settings{
		MaxBatchChanges:     20,
		AllowManualReview:   true,
		SchedulingEnabled:   true,
		DefaultTTL:          7200,
		TTLPolicy:           TTLPolicyDefault,
		SharedApprovedTypes: []domain.RecordType{domain.TypeA, domain.TypeAAAA, domain.TypeCNAME, domain.TypeTXT, domain.TypePTR},
		ManualReviewZones:   map[string]bool{},
	}
}

// IsHighValueDomain matches fqdn against the protected-name list,
// case-insensitively.
func (s *Settings) IsHighValueDomain(fqdn string) bool {
	lower := strings.ToLower(fqdn)
	for _, re := range s.HighValueDomains {
		if re.MatchString(lower) {
			return true
		}
	}
	return false
}

// RequiresManualReview matches fqdn or its zone against the review list.
func (s *Settings) RequiresManualReview(fqdn, zoneName string) bool {
	if s.ManualReviewZones[strings.ToLower(zoneName)] {
		return true
	}
	lower := strings.ToLower(fqdn)
	for _, re := range s.ManualReviewDomains {
		if re.MatchString(lower) {
			return true
		}
	}
	return false
}

// IsApprovedNameServer checks an NS target against the allow list.
func (s *Settings) IsApprovedNameServer(nsdname string) bool {
	lower := strings.ToLower(nsdname)
	for _, re := range s.ApprovedNameServers {
		if re.MatchString(lower) {
			return true
		}
	}
	return false
}

// SharedTypeApproved reports whether t may be managed by any authenticated
// user in a shared zone lacking a more specific grant.
func (s *Settings) SharedTypeApproved(t domain.RecordType) bool {
	for _, at := range s.SharedApprovedTypes {
		if at == t {
			return true
		}
	}
	return false
}

// SettingsStore publishes immutable settings snapshots.
type SettingsStore struct {
	current atomic.Pointer[Settings]
}

// NewSettingsStore seeds the store with an initial snapshot.
func NewSettingsStore(s *Settings) *SettingsStore {
	st := &SettingsStore{}
	st.current.Store(s)
	return st
}

// Get returns the current snapshot.
func (st *SettingsStore) Get() *Settings { return st.current.Load() }

// Publish swaps in a new snapshot.
func (st *SettingsStore) Publish(s *Settings) { st.current.Store(s) }
