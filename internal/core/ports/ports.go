package ports

import (
	"context"
	"time"

	"github.com/poyrazK/batchdns/internal/core/domain"
)

// ZoneCatalog looks up and persists zones. Lookups by name are
// case-insensitive; a nil zone with nil error means not found.
type ZoneCatalog interface {
	GetZone(ctx context.Context, id string) (*domain.Zone, error)
	GetZoneByName(ctx context.Context, name string) (*domain.Zone, error)
	CreateZone(ctx context.Context, zone *domain.Zone) error
	UpdateZone(ctx context.Context, zone *domain.Zone) error
	ListZones(ctx context.Context) ([]domain.Zone, error)
}

// RecordCatalog reads and writes record sets. Name lookups are
// case-insensitive; a nil record set with nil error means not found.
type RecordCatalog interface {
	GetRecordSet(ctx context.Context, zoneID, id string) (*domain.RecordSet, error)
	FindRecordSet(ctx context.Context, zoneID, name string, t domain.RecordType) (*domain.RecordSet, error)
	FindRecordSetsByName(ctx context.Context, zoneID, name string) ([]domain.RecordSet, error)
	ListRecordSets(ctx context.Context, zoneID string) ([]domain.RecordSet, error)
	SaveRecordSet(ctx context.Context, rs *domain.RecordSet) error
	DeleteRecordSet(ctx context.Context, zoneID, id string) error
}

// BatchStore persists batch envelopes with their child changes. Children
// keep submission order.
type BatchStore interface {
	CreateBatch(ctx context.Context, batch *domain.BatchChange) error
	GetBatch(ctx context.Context, id string) (*domain.BatchChange, error)
	ListBatches(ctx context.Context, userID string) ([]domain.BatchSummary, error)
	// TransitionStatus is a compare-and-swap on the envelope status.
	TransitionStatus(ctx context.Context, id string, expected, next domain.BatchStatus) error
	// SetApproval records a review decision; valid only from PendingReview.
	SetApproval(ctx context.Context, id string, decision domain.ApprovalStatus, reviewerID, comment string) error
	UpdateChange(ctx context.Context, batchID string, change *domain.SingleChange) error
	ListDueScheduled(ctx context.Context, now time.Time) ([]string, error)
}

// GroupDirectory resolves groups for membership and contact lookups.
type GroupDirectory interface {
	GetGroup(ctx context.Context, id string) (*domain.Group, error)
}

// AuthStore resolves API keys and user identities.
type AuthStore interface {
	GetAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error)
	GetUser(ctx context.Context, id string) (*domain.User, error)
}

// AuditStore persists administrative action records.
type AuditStore interface {
	SaveAuditLog(ctx context.Context, log *domain.AuditLog) error
	GetAuditLogs(ctx context.Context, userID string) ([]domain.AuditLog, error)
}

// Backend applies a planned record-set change to an authoritative DNS
// server. Implementations are selected by the zone's backend id.
type Backend interface {
	Apply(ctx context.Context, zone *domain.Zone, change *domain.RecordSetChange) error
}

// BackendResolver selects the backend for a zone.
type BackendResolver interface {
	BackendFor(zone *domain.Zone) (Backend, error)
}

// LeaseManager serializes concurrent mutations of the same record set.
// Acquire takes keys in canonical order and returns a release func.
type LeaseManager interface {
	Acquire(ctx context.Context, keys []string, ttl time.Duration) (release func(), err error)
}

// Pinger reports connectivity for health checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BatchService is the public batch-change surface.
type BatchService interface {
	Submit(ctx context.Context, user *domain.User, input *domain.BatchChangeInput) (*domain.BatchChange, error)
	Get(ctx context.Context, user *domain.User, id string) (*domain.BatchChange, error)
	List(ctx context.Context, user *domain.User) ([]domain.BatchSummary, error)
	Approve(ctx context.Context, user *domain.User, id, comment string) (*domain.BatchChange, error)
	Reject(ctx context.Context, user *domain.User, id, comment string) (*domain.BatchChange, error)
	// Process executes an approved batch; normally driven by Submit or Approve.
	Process(ctx context.Context, id string) error
}

// ZoneService is the public zone lifecycle surface.
type ZoneService interface {
	Create(ctx context.Context, user *domain.User, zone *domain.Zone) (*domain.ZoneChange, error)
	Update(ctx context.Context, user *domain.User, zone *domain.Zone) (*domain.ZoneChange, error)
	Get(ctx context.Context, user *domain.User, id string) (*domain.Zone, error)
}

// RecordSetService is the public single record-set surface.
type RecordSetService interface {
	Create(ctx context.Context, user *domain.User, zoneID string, rs *domain.RecordSet) (*domain.RecordSetChange, error)
	Update(ctx context.Context, user *domain.User, zoneID string, rs *domain.RecordSet) (*domain.RecordSetChange, error)
	Delete(ctx context.Context, user *domain.User, zoneID, recordSetID string) (*domain.RecordSetChange, error)
	Get(ctx context.Context, user *domain.User, zoneID, recordSetID string) (*domain.RecordSet, error)
}
