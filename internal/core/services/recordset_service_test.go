package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/poyrazK/batchdns/internal/adapters/backend"
	"github.com/poyrazK/batchdns/internal/core/domain"
	"github.com/poyrazK/batchdns/internal/core/ports"
	"github.com/poyrazK/batchdns/internal/testutil"
)

type recordSetEnv struct {
	store   *testutil.MemoryStore
	backend *backend.Memory
	svc     ports.RecordSetService
}

func newRecordSetEnv(t *testing.T) *recordSetEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := testutil.NewMemoryStore()
	ss := NewSettingsStore(DefaultSettings())

	mem := backend.NewMemory(logger)
	registry := backend.NewRegistry("memory")
	registry.Register("memory", mem)

	svc := NewRecordSetService(ss, NewPolicy(ss, store), store, store, registry, store, logger)
	return &recordSetEnv{store: store, backend: mem, svc: svc}
}

func aRecordSet(name string, records ...string) *domain.RecordSet {
	rs := &domain.RecordSet{Name: name, Type: domain.TypeA, TTL: 300}
	for _, addr := range records {
		rs.Records = append(rs.Records, domain.RecordData{Address: addr})
	}
	return rs
}

func TestRecordSetCreate(t *testing.T) {
	env := newRecordSetEnv(t)
	env.store.Zones["z1"] = &domain.Zone{ID: "z1", Name: "ok.", AdminGroupID: "admins"}
	admin := &domain.User{ID: "u1", UserName: "alice", Groups: []string{"admins"}}

	change, err := env.svc.Create(context.Background(), admin, "z1", aRecordSet("www.ok.", "192.0.2.1"))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if change.Action != domain.ActionCreate {
		t.Errorf("got action %s", change.Action)
	}
	if _, ok := env.backend.Lookup("z1", "www.ok.", domain.TypeA); !ok {
		t.Error("create should reach the backend")
	}

	t.Run("duplicate conflicts", func(t *testing.T) {
		_, err := env.svc.Create(context.Background(), admin, "z1", aRecordSet("www.ok.", "192.0.2.2"))
		if !errors.Is(err, domain.ErrConflict) {
			t.Errorf("got %v, want ErrConflict", err)
		}
	})

	t.Run("cname sibling conflicts", func(t *testing.T) {
		cname := &domain.RecordSet{Name: "www.ok.", Type: domain.TypeCNAME, TTL: 300,
			Records: []domain.RecordData{{CName: "target.ok."}}}
		_, err := env.svc.Create(context.Background(), admin, "z1", cname)
		if !errors.Is(err, domain.ErrConflict) {
			t.Errorf("got %v, want ErrConflict", err)
		}
	})

	t.Run("apex shorthand", func(t *testing.T) {
		change, err := env.svc.Create(context.Background(), admin, "z1", aRecordSet("@", "192.0.2.7"))
		if err != nil {
			t.Fatalf("apex create failed: %v", err)
		}
		if change.RecordSet.Name != "ok." {
			t.Errorf("got name %q, want the zone apex", change.RecordSet.Name)
		}
		if _, ok := env.backend.Lookup("z1", "ok.", domain.TypeA); !ok {
			t.Error("apex record should reach the backend under the zone name")
		}
	})

	t.Run("outsider forbidden", func(t *testing.T) {
		outsider := &domain.User{ID: "u9", UserName: "mallory"}
		_, err := env.svc.Create(context.Background(), outsider, "z1", aRecordSet("api.ok.", "192.0.2.3"))
		if !errors.Is(err, domain.ErrForbidden) {
			t.Errorf("got %v, want ErrForbidden", err)
		}
	})

	t.Run("unknown zone", func(t *testing.T) {
		_, err := env.svc.Create(context.Background(), admin, "missing", aRecordSet("www.ok.", "192.0.2.1"))
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("got %v, want ErrNotFound", err)
		}
	})
}

func TestRecordSetCreateShape(t *testing.T) {
	env := newRecordSetEnv(t)
	env.store.Zones["z1"] = &domain.Zone{ID: "z1", Name: "ok.", AdminGroupID: "admins"}
	admin := &domain.User{ID: "u1", UserName: "alice", Groups: []string{"admins"}}

	cases := []struct {
		name string
		rs   *domain.RecordSet
	}{
		{"empty record set", &domain.RecordSet{Name: "www.ok.", Type: domain.TypeA, TTL: 300}},
		{"multi-record cname", &domain.RecordSet{Name: "alias.ok.", Type: domain.TypeCNAME, TTL: 300,
			Records: []domain.RecordData{{CName: "a.ok."}, {CName: "b.ok."}}}},
		{"cname at apex", &domain.RecordSet{Name: "ok.", Type: domain.TypeCNAME, TTL: 300,
			Records: []domain.RecordData{{CName: "target.net."}}}},
		{"cname at apex shorthand", &domain.RecordSet{Name: "@", Type: domain.TypeCNAME, TTL: 300,
			Records: []domain.RecordData{{CName: "target.net."}}}},
		{"ttl below minimum", &domain.RecordSet{Name: "www.ok.", Type: domain.TypeA, TTL: 5,
			Records: []domain.RecordData{{Address: "192.0.2.1"}}}},
		{"bad address", &domain.RecordSet{Name: "www.ok.", Type: domain.TypeA, TTL: 300,
			Records: []domain.RecordData{{Address: "not-an-ip"}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := env.svc.Create(context.Background(), admin, "z1", tc.rs); !errors.Is(err, domain.ErrUnprocessable) {
				t.Errorf("got %v, want ErrUnprocessable", err)
			}
		})
	}
}

func TestRecordSetCreateSharedZone(t *testing.T) {
	env := newRecordSetEnv(t)
	env.store.Zones["z1"] = &domain.Zone{ID: "z1", Name: "shared.", AdminGroupID: "admins", Shared: true}
	admin := &domain.User{ID: "u1", UserName: "alice", Groups: []string{"admins"}}

	if _, err := env.svc.Create(context.Background(), admin, "z1", aRecordSet("www.shared.", "192.0.2.1")); !errors.Is(err, domain.ErrUnprocessable) {
		t.Fatalf("shared zone creation without owner group: got %v, want ErrUnprocessable", err)
	}

	owned := aRecordSet("www.shared.", "192.0.2.1")
	owned.OwnerGroupID = strPtr("g1")
	if _, err := env.svc.Create(context.Background(), admin, "z1", owned); err != nil {
		t.Fatalf("create with owner group failed: %v", err)
	}

	withTransfer := aRecordSet("api.shared.", "192.0.2.2")
	withTransfer.OwnerGroupID = strPtr("g1")
	withTransfer.RecordSetGroupChange = &domain.OwnershipTransfer{Status: domain.OwnershipRequested, RequestedOwnerGroupID: "g2"}
	if _, err := env.svc.Create(context.Background(), admin, "z1", withTransfer); !errors.Is(err, domain.ErrUnprocessable) {
		t.Errorf("transfer attached at creation: got %v, want ErrUnprocessable", err)
	}
}

func TestRecordSetUpdate(t *testing.T) {
	env := newRecordSetEnv(t)
	env.store.Zones["z1"] = &domain.Zone{ID: "z1", Name: "ok.", AdminGroupID: "admins"}
	env.store.RecordSets["rs1"] = &domain.RecordSet{
		ID: "rs1", ZoneID: "z1", Name: "www.ok.", Type: domain.TypeA, TTL: 300,
		Records: []domain.RecordData{{Address: "192.0.2.1"}},
	}
	admin := &domain.User{ID: "u1", UserName: "alice", Groups: []string{"admins"}}

	t.Run("contents and ttl", func(t *testing.T) {
		rs := aRecordSet("www.ok.", "192.0.2.9")
		rs.ID = "rs1"
		rs.TTL = 600
		change, err := env.svc.Update(context.Background(), admin, "z1", rs)
		if err != nil {
			t.Fatalf("update failed: %v", err)
		}
		if change.Action != domain.ActionUpdate {
			t.Errorf("got action %s", change.Action)
		}
		stored, _ := env.store.GetRecordSet(context.Background(), "z1", "rs1")
		if stored.TTL != 600 || stored.Records[0].Address != "192.0.2.9" {
			t.Errorf("stored %+v", stored)
		}
	})

	t.Run("identity immutable", func(t *testing.T) {
		rs := aRecordSet("renamed.ok.", "192.0.2.9")
		rs.ID = "rs1"
		if _, err := env.svc.Update(context.Background(), admin, "z1", rs); !errors.Is(err, domain.ErrUnprocessable) {
			t.Errorf("got %v, want ErrUnprocessable", err)
		}
	})

	t.Run("unknown record set", func(t *testing.T) {
		rs := aRecordSet("www.ok.", "192.0.2.9")
		rs.ID = "missing"
		if _, err := env.svc.Update(context.Background(), admin, "z1", rs); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("got %v, want ErrNotFound", err)
		}
	})
}

func TestRecordSetDelete(t *testing.T) {
	env := newRecordSetEnv(t)
	env.store.Zones["z1"] = &domain.Zone{ID: "z1", Name: "ok.", AdminGroupID: "admins"}
	env.store.RecordSets["rs1"] = &domain.RecordSet{
		ID: "rs1", ZoneID: "z1", Name: "www.ok.", Type: domain.TypeA, TTL: 300,
		Records: []domain.RecordData{{Address: "192.0.2.1"}},
	}
	admin := &domain.User{ID: "u1", UserName: "alice", Groups: []string{"admins"}}

	change, err := env.svc.Delete(context.Background(), admin, "z1", "rs1")
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if change.Action != domain.ActionDelete {
		t.Errorf("got action %s", change.Action)
	}
	if stored, _ := env.store.GetRecordSet(context.Background(), "z1", "rs1"); stored != nil {
		t.Error("record set should be gone from the catalog")
	}
	if _, ok := env.backend.Lookup("z1", "www.ok.", domain.TypeA); ok {
		t.Error("record set should be gone from the backend")
	}
}

// ownedRecordSet seeds a shared-zone record set owned by g1.
func (e *recordSetEnv) ownedRecordSet(id string, transfer *domain.OwnershipTransfer) {
	e.store.RecordSets[id] = &domain.RecordSet{
		ID: id, ZoneID: "z1", Name: "www.shared.", Type: domain.TypeA, TTL: 300,
		Records:              []domain.RecordData{{Address: "192.0.2.1"}},
		OwnerGroupID:         strPtr("g1"),
		RecordSetGroupChange: transfer,
	}
}

func transferUpdate(id string, owner *string, transfer *domain.OwnershipTransfer) *domain.RecordSet {
	rs := &domain.RecordSet{
		ID: id, Name: "www.shared.", Type: domain.TypeA, TTL: 300,
		Records:              []domain.RecordData{{Address: "192.0.2.1"}},
		OwnerGroupID:         owner,
		RecordSetGroupChange: transfer,
	}
	return rs
}

func TestOwnershipTransferLifecycle(t *testing.T) {
	env := newRecordSetEnv(t)
	env.store.Zones["z1"] = &domain.Zone{ID: "z1", Name: "shared.", AdminGroupID: "admins", Shared: true}
	ownerMember := &domain.User{ID: "u1", UserName: "owner", Groups: []string{"g1"}}
	requestedMember := &domain.User{ID: "u5", UserName: "recipient", Groups: []string{"g2"}}

	env.ownedRecordSet("rs1", nil)

	// The owning group offers a move to g2; the request parks in review.
	_, err := env.svc.Update(context.Background(), ownerMember, "z1",
		transferUpdate("rs1", strPtr("g1"), &domain.OwnershipTransfer{Status: domain.OwnershipRequested, RequestedOwnerGroupID: "g2"}))
	if err != nil {
		t.Fatalf("transfer request failed: %v", err)
	}
	stored, _ := env.store.GetRecordSet(context.Background(), "z1", "rs1")
	if stored.RecordSetGroupChange == nil || stored.RecordSetGroupChange.Status != domain.OwnershipPendingReview {
		t.Fatalf("a Requested submission should be stored as PendingReview, got %+v", stored.RecordSetGroupChange)
	}
	if stored.OwnerGroupID == nil || *stored.OwnerGroupID != "g1" {
		t.Fatalf("ownership must not move before the decision, got %v", stored.OwnerGroupID)
	}

	// The offering side cannot decide its own transfer.
	_, err = env.svc.Update(context.Background(), ownerMember, "z1",
		transferUpdate("rs1", strPtr("g1"), &domain.OwnershipTransfer{Status: domain.OwnershipManuallyApproved, RequestedOwnerGroupID: "g2"}))
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("owner member approval: got %v, want ErrForbidden", err)
	}

	// A member of the requested group accepts, which moves the owner.
	_, err = env.svc.Update(context.Background(), requestedMember, "z1",
		transferUpdate("rs1", strPtr("g1"), &domain.OwnershipTransfer{Status: domain.OwnershipManuallyApproved, RequestedOwnerGroupID: "g2"}))
	if err != nil {
		t.Fatalf("requested-group approval failed: %v", err)
	}
	stored, _ = env.store.GetRecordSet(context.Background(), "z1", "rs1")
	if stored.OwnerGroupID == nil || *stored.OwnerGroupID != "g2" {
		t.Fatalf("approval should move ownership to g2, got %v", stored.OwnerGroupID)
	}

	// Once resolved the proposal accepts no further updates.
	_, err = env.svc.Update(context.Background(), requestedMember, "z1",
		transferUpdate("rs1", strPtr("g2"), &domain.OwnershipTransfer{Status: domain.OwnershipCancelled, RequestedOwnerGroupID: "g2"}))
	if !errors.Is(err, domain.ErrUnprocessable) {
		t.Fatalf("cancel after approval: got %v, want ErrUnprocessable", err)
	}
	if !strings.Contains(err.Error(), "Cannot update RecordSet OwnerShip Status when request is cancelled.") {
		t.Errorf("got %q, want the cancelled-request message", err.Error())
	}
}

func TestOwnershipTransferCancellation(t *testing.T) {
	env := newRecordSetEnv(t)
	env.store.Zones["z1"] = &domain.Zone{ID: "z1", Name: "shared.", AdminGroupID: "admins", Shared: true}
	ownerMember := &domain.User{ID: "u1", UserName: "owner", Groups: []string{"g1"}}
	requestedMember := &domain.User{ID: "u5", UserName: "recipient", Groups: []string{"g2"}}
	superUser := &domain.User{ID: "u9", UserName: "root", IsSuper: true}
	pending := func() *domain.OwnershipTransfer {
		return &domain.OwnershipTransfer{Status: domain.OwnershipPendingReview, RequestedOwnerGroupID: "g2"}
	}
	cancel := &domain.OwnershipTransfer{Status: domain.OwnershipCancelled, RequestedOwnerGroupID: "g2"}

	t.Run("requested group cannot cancel", func(t *testing.T) {
		env.ownedRecordSet("rs1", pending())
		_, err := env.svc.Update(context.Background(), requestedMember, "z1",
			transferUpdate("rs1", strPtr("g1"), cancel))
		if !errors.Is(err, domain.ErrForbidden) {
			t.Fatalf("got %v, want ErrForbidden", err)
		}
	})

	t.Run("owner group cancels", func(t *testing.T) {
		env.ownedRecordSet("rs2", pending())
		if _, err := env.svc.Update(context.Background(), ownerMember, "z1",
			transferUpdate("rs2", strPtr("g1"), cancel)); err != nil {
			t.Fatalf("owner cancel failed: %v", err)
		}
		stored, _ := env.store.GetRecordSet(context.Background(), "z1", "rs2")
		if stored.RecordSetGroupChange.Status != domain.OwnershipCancelled {
			t.Errorf("got status %s, want Cancelled", stored.RecordSetGroupChange.Status)
		}
		if stored.OwnerGroupID == nil || *stored.OwnerGroupID != "g1" {
			t.Errorf("cancel must keep the owner, got %v", stored.OwnerGroupID)
		}
	})

	t.Run("super user cancels", func(t *testing.T) {
		env.ownedRecordSet("rs3", pending())
		if _, err := env.svc.Update(context.Background(), superUser, "z1",
			transferUpdate("rs3", strPtr("g1"), cancel)); err != nil {
			t.Fatalf("super-user cancel failed: %v", err)
		}
	})

	t.Run("zone admin rejects", func(t *testing.T) {
		env.ownedRecordSet("rs4", pending())
		zoneAdmin := &domain.User{ID: "u2", UserName: "admin", Groups: []string{"admins"}}
		_, err := env.svc.Update(context.Background(), zoneAdmin, "z1",
			transferUpdate("rs4", strPtr("g1"), &domain.OwnershipTransfer{Status: domain.OwnershipManuallyRejected, RequestedOwnerGroupID: "g2"}))
		if err != nil {
			t.Fatalf("admin rejection failed: %v", err)
		}
		stored, _ := env.store.GetRecordSet(context.Background(), "z1", "rs4")
		if stored.OwnerGroupID == nil || *stored.OwnerGroupID != "g1" {
			t.Errorf("rejection must keep the owner, got %v", stored.OwnerGroupID)
		}
		if stored.RecordSetGroupChange.Status != domain.OwnershipManuallyRejected {
			t.Errorf("got status %s, want ManuallyRejected", stored.RecordSetGroupChange.Status)
		}
	})
}

func TestOwnershipTransferGuards(t *testing.T) {
	env := newRecordSetEnv(t)
	env.store.Zones["z1"] = &domain.Zone{ID: "z1", Name: "shared.", AdminGroupID: "admins", Shared: true}
	env.store.Zones["z2"] = &domain.Zone{ID: "z2", Name: "private.", AdminGroupID: "admins"}
	zoneAdmin := &domain.User{ID: "u2", UserName: "admin", Groups: []string{"admins"}}

	t.Run("cancelled is final", func(t *testing.T) {
		env.ownedRecordSet("rs1", &domain.OwnershipTransfer{Status: domain.OwnershipCancelled, RequestedOwnerGroupID: "g2"})
		_, err := env.svc.Update(context.Background(), zoneAdmin, "z1",
			transferUpdate("rs1", strPtr("g1"), &domain.OwnershipTransfer{Status: domain.OwnershipPendingReview, RequestedOwnerGroupID: "g2"}))
		if !errors.Is(err, domain.ErrUnprocessable) {
			t.Fatalf("got %v, want ErrUnprocessable", err)
		}
	})

	t.Run("auto approve needs both memberships", func(t *testing.T) {
		env.ownedRecordSet("rs2", nil)
		env.store.RecordSets["rs2"].Name = "api.shared."

		both := &domain.User{ID: "u3", UserName: "both", Groups: []string{"g1", "g2"}}
		rs := transferUpdate("rs2", strPtr("g1"), &domain.OwnershipTransfer{Status: domain.OwnershipAutoApproved, RequestedOwnerGroupID: "g2"})
		rs.Name = "api.shared."
		if _, err := env.svc.Update(context.Background(), both, "z1", rs); err != nil {
			t.Fatalf("auto-approve by dual member failed: %v", err)
		}
		stored, _ := env.store.GetRecordSet(context.Background(), "z1", "rs2")
		if stored.OwnerGroupID == nil || *stored.OwnerGroupID != "g2" {
			t.Errorf("auto-approve should move ownership, got %v", stored.OwnerGroupID)
		}
	})

	t.Run("transfer on private zone rejected", func(t *testing.T) {
		env.store.RecordSets["rs3"] = &domain.RecordSet{
			ID: "rs3", ZoneID: "z2", Name: "www.private.", Type: domain.TypeA, TTL: 300,
			Records: []domain.RecordData{{Address: "192.0.2.1"}},
		}
		rs := transferUpdate("rs3", nil, &domain.OwnershipTransfer{Status: domain.OwnershipRequested, RequestedOwnerGroupID: "g2"})
		rs.Name = "www.private."
		if _, err := env.svc.Update(context.Background(), zoneAdmin, "z2", rs); !errors.Is(err, domain.ErrUnprocessable) {
			t.Errorf("got %v, want ErrUnprocessable", err)
		}
	})

	t.Run("direct owner reassignment is admin-only", func(t *testing.T) {
		env.ownedRecordSet("rs4", nil)
		env.store.RecordSets["rs4"].Name = "direct.shared."

		member := &domain.User{ID: "u4", UserName: "member", Groups: []string{"g1"}}
		rs := transferUpdate("rs4", strPtr("g9"), nil)
		rs.Name = "direct.shared."
		if _, err := env.svc.Update(context.Background(), member, "z1", rs); !errors.Is(err, domain.ErrForbidden) {
			t.Fatalf("got %v, want ErrForbidden", err)
		}

		if _, err := env.svc.Update(context.Background(), zoneAdmin, "z1", rs); err != nil {
			t.Fatalf("admin reassignment failed: %v", err)
		}
		stored, _ := env.store.GetRecordSet(context.Background(), "z1", "rs4")
		if stored.OwnerGroupID == nil || *stored.OwnerGroupID != "g9" {
			t.Errorf("got owner %v, want g9", stored.OwnerGroupID)
		}
	})
}
