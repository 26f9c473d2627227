package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/poyrazK/batchdns/internal/core/domain"
	"github.com/poyrazK/batchdns/internal/core/ports"
	"github.com/poyrazK/batchdns/internal/testutil"
)

func newZoneService(store *testutil.MemoryStore, settings *Settings) ports.ZoneService {
	if settings == nil {
		settings = DefaultSettings()
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewZoneService(NewSettingsStore(settings), store, store, store, logger)
}

func adminStore() *testutil.MemoryStore {
	store := testutil.NewMemoryStore()
	store.Groups["admins"] = &domain.Group{ID: "admins", Name: "zone admins", Email: "admins@ok"}
	return store
}

func TestZoneCreate(t *testing.T) {
	store := adminStore()
	svc := newZoneService(store, nil)
	admin := &domain.User{ID: "u1", UserName: "alice", Groups: []string{"admins"}}

	change, err := svc.Create(context.Background(), admin, &domain.Zone{
		Name: " Example.COM ", Email: "hostmaster@example.com", AdminGroupID: "admins",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if change.Zone.Name != "example.com." {
		t.Errorf("zone name should be lowered and dotted, got %q", change.Zone.Name)
	}
	if change.Zone.Status != domain.ZoneActive {
		t.Errorf("got status %s, want Active", change.Zone.Status)
	}
	if change.ChangeType != domain.ZoneChangeCreate {
		t.Errorf("got change type %s", change.ChangeType)
	}

	_, err = svc.Create(context.Background(), admin, &domain.Zone{
		Name: "EXAMPLE.com.", Email: "hostmaster@example.com", AdminGroupID: "admins",
	})
	if !errors.Is(err, domain.ErrConflict) {
		t.Errorf("duplicate name should conflict case-insensitively, got %v", err)
	}
}

func TestZoneCreateValidation(t *testing.T) {
	store := adminStore()
	svc := newZoneService(store, nil)
	admin := &domain.User{ID: "u1", UserName: "alice", Groups: []string{"admins"}}

	cases := []struct {
		name string
		zone domain.Zone
		want error
	}{
		{"unknown admin group", domain.Zone{Name: "a.net.", Email: "x@a.net", AdminGroupID: "nope"}, domain.ErrUnprocessable},
		{"bad email", domain.Zone{Name: "a.net.", Email: "not-an-email", AdminGroupID: "admins"}, domain.ErrUnprocessable},
		{"email with too many labels", domain.Zone{Name: "a.net.", Email: "x@a.b.c.d.net", AdminGroupID: "admins"}, domain.ErrUnprocessable},
		{"tsig key not base64", domain.Zone{Name: "a.net.", Email: "x@a.net", AdminGroupID: "admins",
			Connection: &domain.ZoneConnection{KeyName: "k", Key: "!!not-base64!!", PrimaryServer: "10.0.0.1:53"}}, domain.ErrUnprocessable},
		{"acl rule with both principals", domain.Zone{Name: "a.net.", Email: "x@a.net", AdminGroupID: "admins",
			ACL: []domain.ACLRule{{UserID: strPtr("u"), GroupID: strPtr("g"), AccessLevel: domain.AccessWrite}}}, domain.ErrUnprocessable},
		{"acl mask mixing ptr and forward", domain.Zone{Name: "a.net.", Email: "x@a.net", AdminGroupID: "admins",
			ACL: []domain.ACLRule{{GroupID: strPtr("g"), AccessLevel: domain.AccessWrite,
				RecordMask: strPtr("www.*"), RecordTypes: []domain.RecordType{domain.TypePTR, domain.TypeA}}}}, domain.ErrUnprocessable},
		{"bad recurrence schedule", domain.Zone{Name: "a.net.", Email: "x@a.net", AdminGroupID: "admins",
			RecurrenceSchedule: strPtr("not a cron")}, domain.ErrUnprocessable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			zone := tc.zone
			if _, err := svc.Create(context.Background(), admin, &zone); !errors.Is(err, tc.want) {
				t.Errorf("got %v, want %v", err, tc.want)
			}
		})
	}

	t.Run("valid recurrence schedule", func(t *testing.T) {
		zone := domain.Zone{Name: "cronned.net.", Email: "x@a.net", AdminGroupID: "admins",
			RecurrenceSchedule: strPtr("0 3 * * *")}
		if _, err := svc.Create(context.Background(), admin, &zone); err != nil {
			t.Errorf("five-field cron should parse: %v", err)
		}
	})
}

func TestZoneCreateEmailAllowList(t *testing.T) {
	store := adminStore()
	settings := DefaultSettings()
	settings.AllowedEmailDomains = []string{"corp.net"}
	svc := newZoneService(store, settings)
	admin := &domain.User{ID: "u1", UserName: "alice", Groups: []string{"admins"}}

	if _, err := svc.Create(context.Background(), admin, &domain.Zone{
		Name: "a.net.", Email: "ops@corp.net", AdminGroupID: "admins",
	}); err != nil {
		t.Errorf("allowed domain should pass: %v", err)
	}
	if _, err := svc.Create(context.Background(), admin, &domain.Zone{
		Name: "b.net.", Email: "ops@mail.corp.net", AdminGroupID: "admins",
	}); err != nil {
		t.Errorf("subdomain of an allowed domain should pass: %v", err)
	}
	if _, err := svc.Create(context.Background(), admin, &domain.Zone{
		Name: "c.net.", Email: "ops@elsewhere.net", AdminGroupID: "admins",
	}); !errors.Is(err, domain.ErrUnprocessable) {
		t.Errorf("got %v, want ErrUnprocessable", err)
	}
}

func TestZoneCreateRequiresGroupMembership(t *testing.T) {
	store := adminStore()
	svc := newZoneService(store, nil)
	outsider := &domain.User{ID: "u2", UserName: "mallory"}

	_, err := svc.Create(context.Background(), outsider, &domain.Zone{
		Name: "a.net.", Email: "x@a.net", AdminGroupID: "admins",
	})
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("got %v, want ErrForbidden", err)
	}

	super := &domain.User{ID: "u3", UserName: "root", IsSuper: true}
	if _, err := svc.Create(context.Background(), super, &domain.Zone{
		Name: "a.net.", Email: "x@a.net", AdminGroupID: "admins",
	}); err != nil {
		t.Errorf("super user may create zones for any group: %v", err)
	}
}

func TestZoneUpdate(t *testing.T) {
	store := adminStore()
	store.Zones["z1"] = &domain.Zone{
		ID: "z1", Name: "a.net.", Email: "x@a.net", AdminGroupID: "admins", Status: domain.ZoneActive,
	}
	svc := newZoneService(store, nil)
	admin := &domain.User{ID: "u1", UserName: "alice", Groups: []string{"admins"}}
	super := &domain.User{ID: "u3", UserName: "root", IsSuper: true}

	t.Run("admin updates email", func(t *testing.T) {
		change, err := svc.Update(context.Background(), admin, &domain.Zone{
			ID: "z1", Name: "a.net.", Email: "new@a.net", AdminGroupID: "admins",
		})
		if err != nil {
			t.Fatalf("update failed: %v", err)
		}
		if change.Zone.Email != "new@a.net" {
			t.Errorf("got email %q", change.Zone.Email)
		}
	})

	t.Run("name is immutable", func(t *testing.T) {
		_, err := svc.Update(context.Background(), admin, &domain.Zone{
			ID: "z1", Name: "renamed.net.", Email: "x@a.net", AdminGroupID: "admins",
		})
		if !errors.Is(err, domain.ErrUnprocessable) {
			t.Errorf("got %v, want ErrUnprocessable", err)
		}
	})

	t.Run("shared flag is super-only", func(t *testing.T) {
		_, err := svc.Update(context.Background(), admin, &domain.Zone{
			ID: "z1", Name: "a.net.", Email: "x@a.net", AdminGroupID: "admins", Shared: true,
		})
		if !errors.Is(err, domain.ErrForbidden) {
			t.Errorf("got %v, want ErrForbidden", err)
		}
		if _, err := svc.Update(context.Background(), super, &domain.Zone{
			ID: "z1", Name: "a.net.", Email: "x@a.net", AdminGroupID: "admins", Shared: true,
		}); err != nil {
			t.Errorf("super user may flip shared: %v", err)
		}
	})

	t.Run("non-admin denied", func(t *testing.T) {
		outsider := &domain.User{ID: "u2", UserName: "mallory"}
		_, err := svc.Update(context.Background(), outsider, &domain.Zone{
			ID: "z1", Name: "a.net.", Email: "x@a.net", AdminGroupID: "admins",
		})
		if !errors.Is(err, domain.ErrForbidden) {
			t.Errorf("got %v, want ErrForbidden", err)
		}
	})

	t.Run("unknown zone", func(t *testing.T) {
		_, err := svc.Update(context.Background(), admin, &domain.Zone{ID: "missing", Name: "a.net."})
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("got %v, want ErrNotFound", err)
		}
	})
}
