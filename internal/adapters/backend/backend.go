package backend

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/poyrazK/batchdns/internal/core/domain"
	"github.com/poyrazK/batchdns/internal/core/ports"
)

// Registry maps backend ids to Backend implementations. Zones without a
// backend id fall through to the default backend.
type Registry struct {
	backends  map[string]ports.Backend
	defaultID string
}

func NewRegistry(defaultID string) *Registry {
	return &Registry{backends: make(map[string]ports.Backend), defaultID: defaultID}
}

// Register adds a backend under an id. Last registration wins.
func (r *Registry) Register(id string, b ports.Backend) {
	r.backends[id] = b
}

func (r *Registry) BackendFor(zone *domain.Zone) (ports.Backend, error) {
	id := r.defaultID
	if zone.BackendID != nil && *zone.BackendID != "" {
		id = *zone.BackendID
	}
	b, ok := r.backends[id]
	if !ok {
		return nil, fmt.Errorf("no backend registered for id %q", id)
	}
	return b, nil
}

// Memory is an in-process authoritative store, used as the default backend
// in development and as the apply target in tests.
type Memory struct {
	mu     sync.RWMutex
	logger *slog.Logger
	// zone id -> "name|type" -> record set
	zones map[string]map[string]domain.RecordSet
}

func NewMemory(logger *slog.Logger) *Memory {
	return &Memory{logger: logger, zones: make(map[string]map[string]domain.RecordSet)}
}

func (m *Memory) Apply(ctx context.Context, zone *domain.Zone, change *domain.RecordSetChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sets, ok := m.zones[zone.ID]
	if !ok {
		sets = make(map[string]domain.RecordSet)
		m.zones[zone.ID] = sets
	}
	key := strings.ToLower(change.RecordSet.Name) + "|" + string(change.RecordSet.Type)
	switch change.Action {
	case domain.ActionDelete:
		delete(sets, key)
	default:
		sets[key] = change.RecordSet
	}
	m.logger.Debug("applied record set change",
		"zone", zone.Name, "record", change.RecordSet.Name,
		"type", string(change.RecordSet.Type), "action", string(change.Action))
	return nil
}

// Lookup returns the backend's view of a record set, for tests and debugging.
func (m *Memory) Lookup(zoneID, name string, t domain.RecordType) (domain.RecordSet, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sets, ok := m.zones[zoneID]
	if !ok {
		return domain.RecordSet{}, false
	}
	rs, ok := sets[strings.ToLower(name)+"|"+string(t)]
	return rs, ok
}
