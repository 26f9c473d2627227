package domain

import (
	"time"
)

type Role string

const (
	RoleAdmin    Role = "admin"    // Full CRUD on zones/records within policy
	RoleReviewer Role = "reviewer" // May approve or reject batches pending review
	RoleReader   Role = "reader"   // GET-only access
)

// User is the authenticated principal acting on the API, resolved from an
// API key. Group membership drives most policy decisions.
type User struct {
	ID        string   `json:"id"`
	UserName  string   `json:"user_name"`
	IsSuper   bool     `json:"is_super"`
	IsSupport bool     `json:"is_support"`
	Groups    []string `json:"groups"`
}

// InGroup reports whether the user is a member of the given group.
func (u *User) InGroup(groupID string) bool {
	for _, g := range u.Groups {
		if g == groupID {
			return true
		}
	}
	return false
}

// CanReview reports whether the user may approve or reject batches.
func (u *User) CanReview() bool {
	return u.IsSuper || u.IsSupport
}

// Group is a named set of users that can own records and administer zones.
type Group struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	MemberIDs []string  `json:"member_ids"`
	CreatedAt time.Time `json:"created_at"`
}

// APIKey authenticates a caller and binds it to a user identity.
type APIKey struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	UserName  string     `json:"user_name"`
	Name      string     `json:"name"`       // Human-readable label, e.g. "ci-deploy-key"
	KeyHash   string     `json:"-"`          // SHA-256 hash of the key (never store raw)
	KeyPrefix string     `json:"key_prefix"` // First 8 chars for identification
	Role      Role       `json:"role"`
	IsSuper   bool       `json:"is_super"`
	IsSupport bool       `json:"is_support"`
	Active    bool       `json:"active"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// AuditLog records administrative actions performed on the system.
type AuditLog struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Action       string    `json:"action"`        // e.g., "SUBMIT_BATCH", "CREATE_ZONE"
	ResourceType string    `json:"resource_type"` // e.g., "BATCH", "ZONE", "RECORDSET"
	ResourceID   string    `json:"resource_id"`
	Details      string    `json:"details"`
	CreatedAt    time.Time `json:"created_at"`
}
