package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/poyrazK/batchdns/internal/core/domain"
	"github.com/poyrazK/batchdns/internal/core/ports"
)

// recordSetService is the single record-set CRUD surface. It enforces the
// same policy and CNAME rules as the batch pipeline, plus the
// ownership-transfer state machine, which only exists on this surface.
type recordSetService struct {
	settings *SettingsStore
	policy   *Policy
	zones    ports.ZoneCatalog
	records  ports.RecordCatalog
	backends ports.BackendResolver
	audit    ports.AuditStore
	logger   *slog.Logger
}

func NewRecordSetService(settings *SettingsStore, policy *Policy, zones ports.ZoneCatalog,
	records ports.RecordCatalog, backends ports.BackendResolver, audit ports.AuditStore,
	logger *slog.Logger) ports.RecordSetService {
	return &recordSetService{
		settings: settings,
		policy:   policy,
		zones:    zones,
		records:  records,
		backends: backends,
		audit:    audit,
		logger:   logger,
	}
}

func (s *recordSetService) Create(ctx context.Context, user *domain.User, zoneID string, rs *domain.RecordSet) (*domain.RecordSetChange, error) {
	zone, err := s.loadZone(ctx, zoneID)
	if err != nil {
		return nil, err
	}
	rs.ZoneID = zone.ID
	rs.Name = apexName(zone, strings.TrimSpace(rs.Name))
	if err := s.validateShape(zone, rs); err != nil {
		return nil, err
	}

	existing, err := s.records.FindRecordSet(ctx, zone.ID, rs.Name, rs.Type)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: record set %q %s", domain.ErrConflict, rs.Name, rs.Type)
	}
	if err := s.checkCNAMESiblings(ctx, zone, rs); err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, user, zone, rs, nil, domain.AccessWrite); err != nil {
		return nil, err
	}
	if zone.Shared && rs.OwnerGroupID == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnprocessable,
			domain.SharedZoneOwnerRequiredError(zone.Name, strings.TrimSuffix(rs.Name, ".")).Message)
	}
	if rs.RecordSetGroupChange != nil {
		return nil, fmt.Errorf("%w: an ownership transfer cannot be attached at creation", domain.ErrUnprocessable)
	}

	now := time.Now()
	rs.ID = uuid.New().String()
	rs.CreatedAt = now
	rs.UpdatedAt = now
	return s.apply(ctx, user, zone, rs, nil, domain.ActionCreate)
}

func (s *recordSetService) Update(ctx context.Context, user *domain.User, zoneID string, rs *domain.RecordSet) (*domain.RecordSetChange, error) {
	zone, err := s.loadZone(ctx, zoneID)
	if err != nil {
		return nil, err
	}
	current, err := s.records.GetRecordSet(ctx, zone.ID, rs.ID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, domain.ErrNotFound
	}
	// Name, type and zone are the record set's identity; updates change
	// contents, TTL and ownership only.
	rs.Name = apexName(zone, strings.TrimSpace(rs.Name))
	if !strings.EqualFold(rs.Name, current.Name) || rs.Type != current.Type {
		return nil, fmt.Errorf("%w: record set name and type cannot be changed", domain.ErrUnprocessable)
	}
	rs.ZoneID = zone.ID
	rs.Name = current.Name
	if err := s.validateShape(zone, rs); err != nil {
		return nil, err
	}
	if resolvesTransfer(rs, current) {
		// A transfer decision is not a content edit. It carries its own
		// authorization rules (the requested group may approve), so the
		// write policy does not apply and the record contents stay put.
		rs.TTL = current.TTL
		rs.Records = current.Records
	} else if err := s.authorize(ctx, user, zone, rs, current, domain.AccessWrite); err != nil {
		return nil, err
	}
	if err := s.applyOwnershipTransfer(ctx, user, zone, rs, current); err != nil {
		return nil, err
	}

	rs.CreatedAt = current.CreatedAt
	rs.UpdatedAt = time.Now()
	return s.apply(ctx, user, zone, rs, current, domain.ActionUpdate)
}

func (s *recordSetService) Delete(ctx context.Context, user *domain.User, zoneID, recordSetID string) (*domain.RecordSetChange, error) {
	zone, err := s.loadZone(ctx, zoneID)
	if err != nil {
		return nil, err
	}
	current, err := s.records.GetRecordSet(ctx, zone.ID, recordSetID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, domain.ErrNotFound
	}
	if err := s.authorize(ctx, user, zone, current, current, domain.AccessDelete); err != nil {
		return nil, err
	}
	return s.apply(ctx, user, zone, current, current, domain.ActionDelete)
}

func (s *recordSetService) Get(ctx context.Context, user *domain.User, zoneID, recordSetID string) (*domain.RecordSet, error) {
	zone, err := s.loadZone(ctx, zoneID)
	if err != nil {
		return nil, err
	}
	rs, err := s.records.GetRecordSet(ctx, zone.ID, recordSetID)
	if err != nil {
		return nil, err
	}
	if rs == nil {
		return nil, domain.ErrNotFound
	}
	return rs, nil
}

func (s *recordSetService) loadZone(ctx context.Context, zoneID string) (*domain.Zone, error) {
	zone, err := s.zones.GetZone(ctx, zoneID)
	if err != nil {
		return nil, err
	}
	if zone == nil {
		return nil, domain.ErrNotFound
	}
	return zone, nil
}

// validateShape checks record data, TTL and the CNAME structural rules.
func (s *recordSetService) validateShape(zone *domain.Zone, rs *domain.RecordSet) error {
	if !domain.KnownType(rs.Type) {
		return fmt.Errorf("%w: unknown record type %q", domain.ErrUnprocessable, string(rs.Type))
	}
	if len(rs.Records) == 0 {
		return fmt.Errorf("%w: record set must contain at least one record", domain.ErrUnprocessable)
	}
	if !domain.SupportsMultipleRecords(rs.Type) && len(rs.Records) > 1 {
		return fmt.Errorf("%w: %s record sets cannot contain multiple records", domain.ErrUnprocessable, rs.Type)
	}
	if rs.Type == domain.TypeCNAME && strings.EqualFold(rs.Name, zone.Name) {
		return fmt.Errorf("%w: CNAME cannot be the apex of zone %q", domain.ErrUnprocessable, zone.Name)
	}
	if e := domain.ValidateTTL(rs.TTL); e != nil {
		return fmt.Errorf("%w: %s", domain.ErrUnprocessable, e.Message)
	}
	for i := range rs.Records {
		if errs := domain.ValidateRecordData(rs.Type, &rs.Records[i]); len(errs) > 0 {
			return fmt.Errorf("%w: %s", domain.ErrUnprocessable, errs[0].Message)
		}
	}
	return nil
}

// checkCNAMESiblings enforces CNAME name exclusivity in both directions.
func (s *recordSetService) checkCNAMESiblings(ctx context.Context, zone *domain.Zone, rs *domain.RecordSet) error {
	atName, err := s.records.FindRecordSetsByName(ctx, zone.ID, rs.Name)
	if err != nil {
		return err
	}
	for _, sibling := range atName {
		if sibling.Type == rs.Type {
			continue
		}
		if sibling.Type == domain.TypeCNAME || rs.Type == domain.TypeCNAME {
			return fmt.Errorf("%w: %s", domain.ErrConflict, domain.CNAMEConflictError(rs.Name).Message)
		}
	}
	return nil
}

func (s *recordSetService) authorize(ctx context.Context, user *domain.User, zone *domain.Zone, rs, existing *domain.RecordSet, level domain.AccessLevel) error {
	e := s.policy.Authorize(ctx, AccessRequest{
		User:       user,
		Zone:       zone,
		RecordName: rs.Name,
		FQDN:       rs.Name,
		Type:       rs.Type,
		Existing:   existing,
		Level:      level,
	})
	if e != nil {
		return fmt.Errorf("%w: %s", domain.ErrForbidden, e.Message)
	}
	return nil
}

// applyOwnershipTransfer runs the transfer state machine and, on approval,
// moves the owner group. An owner change without a transfer proposal is
// reserved for zone admins and super users.
func (s *recordSetService) applyOwnershipTransfer(ctx context.Context, user *domain.User, zone *domain.Zone, rs, current *domain.RecordSet) error {
	proposed := rs.RecordSetGroupChange
	if proposed == nil {
		// Dropping an in-flight transfer is not allowed; it must be
		// cancelled or resolved through the state machine.
		if current.RecordSetGroupChange != nil && !domain.OwnershipTerminal(current.RecordSetGroupChange.Status) {
			rs.RecordSetGroupChange = current.RecordSetGroupChange
		}
		if !ownerEqual(rs.OwnerGroupID, current.OwnerGroupID) && !user.IsSuper && !user.InGroup(zone.AdminGroupID) {
			return fmt.Errorf("%w: only a zone administrator may reassign the owner group directly", domain.ErrForbidden)
		}
		return nil
	}
	// Echoing the stored proposal back is not a transition.
	if current.RecordSetGroupChange != nil && *proposed == *current.RecordSetGroupChange {
		rs.OwnerGroupID = current.OwnerGroupID
		return nil
	}

	actorInBoth := false
	if current.OwnerGroupID != nil {
		actorInBoth = user.InGroup(*current.OwnerGroupID) && user.InGroup(proposed.RequestedOwnerGroupID)
	}
	if err := domain.TransitionOwnership(current.RecordSetGroupChange, *proposed, actorInBoth, zone.Shared); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrUnprocessable, err.Error())
	}

	switch proposed.Status {
	case domain.OwnershipManuallyApproved, domain.OwnershipManuallyRejected:
		// The requested group decides on the transfer offered to it;
		// reviewers and the zone admin may also resolve.
		if !user.InGroup(proposed.RequestedOwnerGroupID) && !user.CanReview() && !user.InGroup(zone.AdminGroupID) {
			return fmt.Errorf("%w: %s", domain.ErrForbidden, domain.ErrOwnershipUserNotInGroup.Error())
		}
	case domain.OwnershipCancelled:
		if !user.IsSuper && (current.OwnerGroupID == nil || !user.InGroup(*current.OwnerGroupID)) {
			return fmt.Errorf("%w: only the current owner group or a super user may cancel a transfer", domain.ErrForbidden)
		}
	}

	// A transfer submitted as Requested parks straight in review.
	stored := *proposed
	if stored.Status == domain.OwnershipRequested {
		stored.Status = domain.OwnershipPendingReview
	}
	rs.RecordSetGroupChange = &stored

	if stored.Status == domain.OwnershipManuallyApproved || stored.Status == domain.OwnershipAutoApproved {
		id := stored.RequestedOwnerGroupID
		rs.OwnerGroupID = &id
	} else {
		rs.OwnerGroupID = current.OwnerGroupID
	}
	return nil
}

// resolvesTransfer reports whether the update is a decision on an in-flight
// ownership transfer rather than a content edit.
func resolvesTransfer(rs, current *domain.RecordSet) bool {
	return rs.RecordSetGroupChange != nil && current.RecordSetGroupChange != nil &&
		!domain.OwnershipTerminal(current.RecordSetGroupChange.Status) &&
		rs.RecordSetGroupChange.Status != current.RecordSetGroupChange.Status
}

// apexName resolves the "@" shorthand to the zone's own name and makes any
// other name absolute.
func apexName(zone *domain.Zone, name string) string {
	if name == "@" {
		return zone.Name
	}
	return domain.EnsureTrailingDot(name)
}

func ownerEqual(a, b *string) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || *a == *b
}

// apply pushes the change to the zone's backend, persists it and writes the
// audit trail.
func (s *recordSetService) apply(ctx context.Context, user *domain.User, zone *domain.Zone, rs, existing *domain.RecordSet, action domain.RecordSetChangeAction) (*domain.RecordSetChange, error) {
	change := &domain.RecordSetChange{
		ID:        uuid.New().String(),
		ZoneID:    zone.ID,
		Action:    action,
		RecordSet: *rs,
		Existing:  existing,
		UserID:    user.ID,
		CreatedAt: time.Now(),
	}
	backend, err := s.backends.BackendFor(zone)
	if err != nil {
		return nil, err
	}
	if err := backend.Apply(ctx, zone, change); err != nil {
		s.logger.Error("backend apply failed", "zone", zone.Name, "record", rs.Name, "error", err)
		return nil, err
	}
	if action == domain.ActionDelete {
		err = s.records.DeleteRecordSet(ctx, zone.ID, rs.ID)
	} else {
		err = s.records.SaveRecordSet(ctx, rs)
	}
	if err != nil {
		return nil, err
	}

	entry := &domain.AuditLog{
		ID:           uuid.New().String(),
		UserID:       user.ID,
		Action:       strings.ToUpper(string(action)) + "_RECORDSET",
		ResourceType: "RECORDSET",
		ResourceID:   rs.ID,
		Details:      rs.Name + " " + string(rs.Type) + " in " + zone.Name,
		CreatedAt:    time.Now(),
	}
	if err := s.audit.SaveAuditLog(ctx, entry); err != nil {
		s.logger.Error("audit log write failed", "resource_id", rs.ID, "error", err)
	}
	return change, nil
}
