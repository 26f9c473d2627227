package testutil

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/poyrazK/batchdns/internal/core/domain"
	"github.com/poyrazK/batchdns/internal/core/ports"
)

// MockBackend is a testify mock of ports.Backend for failure injection.
type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) Apply(ctx context.Context, zone *domain.Zone, change *domain.RecordSetChange) error {
	args := m.Called(zone, change)
	return args.Error(0)
}

// StaticResolver returns the same backend for every zone.
type StaticResolver struct {
	Backend ports.Backend
}

func (r *StaticResolver) BackendFor(_ *domain.Zone) (ports.Backend, error) {
	return r.Backend, nil
}
