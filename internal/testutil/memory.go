package testutil

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/poyrazK/batchdns/internal/core/domain"
)

// MemoryStore is an in-memory implementation of the catalog, batch, group,
// auth and audit ports for tests.
type MemoryStore struct {
	mu sync.Mutex

	Zones      map[string]*domain.Zone
	RecordSets map[string]*domain.RecordSet // keyed by id
	Batches    map[string]*domain.BatchChange
	Groups     map[string]*domain.Group
	APIKeys    map[string]*domain.APIKey // keyed by hash
	Users      map[string]*domain.User
	AuditLogs  []domain.AuditLog
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		Zones:      make(map[string]*domain.Zone),
		RecordSets: make(map[string]*domain.RecordSet),
		Batches:    make(map[string]*domain.BatchChange),
		Groups:     make(map[string]*domain.Group),
		APIKeys:    make(map[string]*domain.APIKey),
		Users:      make(map[string]*domain.User),
	}
}

func (s *MemoryStore) Ping(_ context.Context) error { return nil }

// --- ZoneCatalog ---

func (s *MemoryStore) GetZone(_ context.Context, id string) (*domain.Zone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	z, ok := s.Zones[id]
	if !ok {
		return nil, nil
	}
	copied := *z
	return &copied, nil
}

func (s *MemoryStore) GetZoneByName(_ context.Context, name string) (*domain.Zone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, z := range s.Zones {
		if strings.EqualFold(z.Name, name) {
			copied := *z
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) CreateZone(_ context.Context, zone *domain.Zone) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *zone
	s.Zones[zone.ID] = &copied
	return nil
}

func (s *MemoryStore) UpdateZone(_ context.Context, zone *domain.Zone) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *zone
	s.Zones[zone.ID] = &copied
	return nil
}

func (s *MemoryStore) ListZones(_ context.Context) ([]domain.Zone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var zones []domain.Zone
	for _, z := range s.Zones {
		zones = append(zones, *z)
	}
	return zones, nil
}

// --- RecordCatalog ---

func (s *MemoryStore) GetRecordSet(_ context.Context, zoneID, id string) (*domain.RecordSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs, ok := s.RecordSets[id]
	if !ok || rs.ZoneID != zoneID {
		return nil, nil
	}
	copied := *rs
	return &copied, nil
}

func (s *MemoryStore) FindRecordSet(_ context.Context, zoneID, name string, t domain.RecordType) (*domain.RecordSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rs := range s.RecordSets {
		if rs.ZoneID == zoneID && strings.EqualFold(rs.Name, name) && rs.Type == t {
			copied := *rs
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) FindRecordSetsByName(_ context.Context, zoneID, name string) ([]domain.RecordSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sets []domain.RecordSet
	for _, rs := range s.RecordSets {
		if rs.ZoneID == zoneID && strings.EqualFold(rs.Name, name) {
			sets = append(sets, *rs)
		}
	}
	return sets, nil
}

func (s *MemoryStore) ListRecordSets(_ context.Context, zoneID string) ([]domain.RecordSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sets []domain.RecordSet
	for _, rs := range s.RecordSets {
		if rs.ZoneID == zoneID {
			sets = append(sets, *rs)
		}
	}
	return sets, nil
}

func (s *MemoryStore) SaveRecordSet(_ context.Context, rs *domain.RecordSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *rs
	s.RecordSets[rs.ID] = &copied
	return nil
}

func (s *MemoryStore) DeleteRecordSet(_ context.Context, zoneID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs, ok := s.RecordSets[id]
	if ok && rs.ZoneID == zoneID {
		delete(s.RecordSets, id)
	}
	return nil
}

// --- BatchStore ---

func (s *MemoryStore) CreateBatch(_ context.Context, batch *domain.BatchChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *batch
	copied.Changes = append([]domain.SingleChange(nil), batch.Changes...)
	s.Batches[batch.ID] = &copied
	return nil
}

func (s *MemoryStore) GetBatch(_ context.Context, id string) (*domain.BatchChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.Batches[id]
	if !ok {
		return nil, nil
	}
	copied := *b
	copied.Changes = append([]domain.SingleChange(nil), b.Changes...)
	return &copied, nil
}

func (s *MemoryStore) ListBatches(_ context.Context, userID string) ([]domain.BatchSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var summaries []domain.BatchSummary
	for _, b := range s.Batches {
		if b.UserID != userID {
			continue
		}
		summaries = append(summaries, domain.BatchSummary{
			ID:             b.ID,
			UserID:         b.UserID,
			UserName:       b.UserName,
			Comments:       b.Comments,
			OwnerGroupID:   b.OwnerGroupID,
			ApprovalStatus: b.ApprovalStatus,
			Status:         b.Status,
			TotalChanges:   len(b.Changes),
			CreatedAt:      b.CreatedAt,
		})
	}
	return summaries, nil
}

func (s *MemoryStore) TransitionStatus(_ context.Context, id string, expected, next domain.BatchStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.Batches[id]
	if !ok || b.Status != expected {
		return domain.ErrInvalidState
	}
	b.Status = next
	return nil
}

func (s *MemoryStore) SetApproval(_ context.Context, id string, decision domain.ApprovalStatus, reviewerID, comment string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.Batches[id]
	if !ok || b.ApprovalStatus != domain.ApprovalPendingReview {
		return domain.ErrInvalidState
	}
	now := time.Now()
	b.ApprovalStatus = decision
	b.ReviewerID = &reviewerID
	b.ReviewComment = &comment
	b.ReviewedAt = &now
	return nil
}

func (s *MemoryStore) UpdateChange(_ context.Context, batchID string, change *domain.SingleChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.Batches[batchID]
	if !ok {
		return domain.ErrNotFound
	}
	for i := range b.Changes {
		if b.Changes[i].ID == change.ID {
			b.Changes[i] = *change
			return nil
		}
	}
	return domain.ErrNotFound
}

func (s *MemoryStore) ListDueScheduled(_ context.Context, now time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, b := range s.Batches {
		if b.Status == domain.BatchScheduled && b.ScheduledTime != nil && !b.ScheduledTime.After(now) {
			ids = append(ids, b.ID)
		}
	}
	return ids, nil
}

// --- GroupDirectory ---

func (s *MemoryStore) GetGroup(_ context.Context, id string) (*domain.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.Groups[id]
	if !ok {
		return nil, nil
	}
	copied := *g
	return &copied, nil
}

// --- AuthStore ---

func (s *MemoryStore) GetAPIKeyByHash(_ context.Context, keyHash string) (*domain.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.APIKeys[keyHash]
	if !ok {
		return nil, nil
	}
	copied := *k
	return &copied, nil
}

func (s *MemoryStore) GetUser(_ context.Context, id string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.Users[id]
	if !ok {
		return nil, nil
	}
	copied := *u
	return &copied, nil
}

// --- AuditStore ---

func (s *MemoryStore) SaveAuditLog(_ context.Context, entry *domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.AuditLogs = append(s.AuditLogs, *entry)
	return nil
}

func (s *MemoryStore) GetAuditLogs(_ context.Context, userID string) ([]domain.AuditLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var logs []domain.AuditLog
	for _, l := range s.AuditLogs {
		if l.UserID == userID {
			logs = append(logs, l)
		}
	}
	return logs, nil
}

// LocalLeases is a process-local lease manager for tests.
type LocalLeases struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewLocalLeases() *LocalLeases {
	return &LocalLeases{held: make(map[string]bool)}
}

func (l *LocalLeases) Acquire(_ context.Context, keys []string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, k := range keys {
		if l.held[k] {
			return nil, domain.ErrConflict
		}
	}
	for _, k := range keys {
		l.held[k] = true
	}
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		for _, k := range keys {
			delete(l.held, k)
		}
	}, nil
}
