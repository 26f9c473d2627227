package services

import (
	"context"
	"strings"

	"github.com/poyrazK/batchdns/internal/core/domain"
	"github.com/poyrazK/batchdns/internal/core/ports"
)

// Validator runs the multi-phase validation pipeline over a batch. Later
// phases only see changes that have not already hard-failed.
type Validator struct {
	settings  *SettingsStore
	discovery *Discovery
	policy    *Policy
	records   ports.RecordCatalog
}

func NewValidator(settings *SettingsStore, discovery *Discovery, policy *Policy, records ports.RecordCatalog) *Validator {
	return &Validator{settings: settings, discovery: discovery, policy: policy, records: records}
}

// ValidatedChange is the planning IR for one change: the change itself plus
// everything later phases and the planner need to know about it.
type ValidatedChange struct {
	Index    int
	Change   *domain.SingleChange
	Zone     *domain.Zone
	Existing *domain.RecordSet // same name+type, nil when absent
	// Noop marks a DeleteRecordSet that found nothing to delete; it
	// completes successfully without touching the backend.
	Noop bool

	hard bool
	soft bool
}

// AddError records a diagnostic and tracks its severity.
func (vc *ValidatedChange) AddError(e domain.ChangeError) {
	vc.Change.ValidationErrors = append(vc.Change.ValidationErrors, e)
	if e.Kind.Soft() {
		vc.soft = true
	} else {
		vc.hard = true
	}
}

// HardFailed reports whether the change cannot proceed regardless of review.
func (vc *ValidatedChange) HardFailed() bool { return vc.hard }

// NeedsReview reports whether the change carries only soft failures.
func (vc *ValidatedChange) NeedsReview() bool { return vc.soft && !vc.hard }

// FQDN is the fully-qualified name targeted by the change. For PTR changes
// it is derived from the discovered reverse zone.
func (vc *ValidatedChange) FQDN() string {
	if vc.Change.Type == domain.TypePTR && vc.Zone != nil {
		return vc.Change.RecordName + "." + vc.Zone.Name
	}
	return vc.Change.InputName
}

// ValidationResult aggregates per-change outcomes for the whole batch.
type ValidationResult struct {
	Changes []*ValidatedChange
}

// AnyHard reports whether any change hard-failed.
func (r *ValidationResult) AnyHard() bool {
	for _, vc := range r.Changes {
		if vc.hard {
			return true
		}
	}
	return false
}

// AnySoft reports whether any change is eligible for manual review.
func (r *ValidationResult) AnySoft() bool {
	for _, vc := range r.Changes {
		if vc.NeedsReview() {
			return true
		}
	}
	return false
}

// Validate runs phases 1-4 over the changes of a prepared batch.
func (v *Validator) Validate(ctx context.Context, user *domain.User, batch *domain.BatchChange) (*ValidationResult, error) {
	result := &ValidationResult{}
	for i := range batch.Changes {
		result.Changes = append(result.Changes, &ValidatedChange{Index: i, Change: &batch.Changes[i]})
	}

	v.validateSyntax(result)
	if err := v.discoverZones(ctx, result); err != nil {
		return nil, err
	}
	v.checkBatchDuplicates(result)
	if err := v.checkContext(ctx, user, batch, result); err != nil {
		return nil, err
	}
	return result, nil
}

// Phase 1: per-change input syntax. Failures here are hard.
func (v *Validator) validateSyntax(result *ValidationResult) {
	settings := v.settings.Get()
	for _, vc := range result.Changes {
		c := vc.Change
		if !domain.KnownType(c.Type) {
			vc.AddError(domain.NewChangeError(domain.ErrInvalidRecordType,
				"Invalid record type: %q. Supported types are A, AAAA, CNAME, PTR, TXT, MX, SRV, NAPTR, DS and NS.", string(c.Type)))
			continue
		}
		if c.Type != domain.TypePTR {
			if e := domain.ValidateDomainName(c.InputName); e != nil {
				vc.AddError(*e)
				continue
			}
		}
		if c.ChangeType == domain.ChangeAdd {
			if c.Record == nil {
				vc.AddError(domain.NewChangeError(domain.ErrMissingField, "Missing record data for type %q.", string(c.Type)))
				continue
			}
			for _, e := range domain.ValidateRecordData(c.Type, c.Record) {
				vc.AddError(e)
			}
			if c.TTL != nil {
				if e := domain.ValidateTTL(*c.TTL); e != nil {
					vc.AddError(*e)
				}
			} else if settings.DefaultTTL <= 0 && settings.TTLPolicy != TTLPolicyInherit {
				vc.AddError(domain.NewChangeError(domain.ErrInvalidTTL,
					"Missing TTL for record %q and no server default is configured.", c.InputName))
			}
		} else if c.Record != nil {
			// A specific record on a delete selects one record from a set.
			for _, e := range domain.ValidateRecordData(c.Type, c.Record) {
				vc.AddError(e)
			}
		}
	}
}

// Phase 2: zone discovery. ZoneDiscoveryFailed is soft; reverse-zone type
// mismatches are hard.
func (v *Validator) discoverZones(ctx context.Context, result *ValidationResult) error {
	for _, vc := range result.Changes {
		if vc.hard {
			continue
		}
		res, cerr := v.discovery.Discover(ctx, vc.Change.InputName, vc.Change.Type)
		if cerr != nil {
			vc.AddError(*cerr)
			continue
		}
		vc.Zone = res.Zone
		vc.Change.ZoneID = res.Zone.ID
		vc.Change.ZoneName = res.Zone.Name
		vc.Change.RecordName = res.RecordName
	}
	return nil
}

// Phase 3: duplicates within the batch. CNAME names must be unique across
// the whole batch; the diagnostic lands on the CNAME change, not on its
// neighbor. PTR changes with the same input IP may coexist.
func (v *Validator) checkBatchDuplicates(result *ValidationResult) {
	byName := make(map[string][]*ValidatedChange)
	for _, vc := range result.Changes {
		if vc.hard || vc.Change.ChangeType != domain.ChangeAdd || vc.Change.Type == domain.TypePTR {
			continue
		}
		key := strings.ToLower(vc.Change.InputName)
		byName[key] = append(byName[key], vc)
	}
	for _, group := range byName {
		if len(group) < 2 {
			continue
		}
		for _, vc := range group {
			if vc.Change.Type == domain.TypeCNAME {
				vc.AddError(domain.RecordNameNotUniqueError(vc.Change.InputName, vc.Change.Type))
			}
		}
	}
}

// Phase 4: per-change context checks against existing state and policy.
func (v *Validator) checkContext(ctx context.Context, user *domain.User, batch *domain.BatchChange, result *ValidationResult) error {
	settings := v.settings.Get()

	// Keys deleted earlier in the batch; an Add over one of these is an
	// update, not a collision.
	deletedKeys := make(map[string]bool)
	for _, vc := range result.Changes {
		if vc.Change.ChangeType == domain.ChangeDeleteRecordSet && !vc.Change.IsPartialDelete() {
			deletedKeys[changeKey(vc)] = true
		}
	}

	for _, vc := range result.Changes {
		if vc.hard || vc.Zone == nil {
			continue
		}
		c := vc.Change
		fqdn := vc.FQDN()

		if settings.IsHighValueDomain(fqdn) {
			vc.AddError(domain.HighValueDomainError(fqdn))
			continue
		}
		if settings.RequiresManualReview(fqdn, vc.Zone.Name) {
			vc.AddError(domain.ManualReviewRequiredError(fqdn))
		}
		if vc.Zone.Shared && batch.OwnerGroupID == nil {
			vc.AddError(domain.SharedZoneOwnerRequiredError(vc.Zone.Name, strings.TrimSuffix(c.RecordName, ".")))
			continue
		}
		if e := v.policy.CheckDottedHost(user, vc.Zone, c.RecordName, c.Type); e != nil {
			vc.AddError(*e)
			continue
		}

		existing, err := v.records.FindRecordSet(ctx, vc.Zone.ID, c.RecordName, c.Type)
		if err != nil {
			return err
		}
		vc.Existing = existing

		atName, err := v.records.FindRecordSetsByName(ctx, vc.Zone.ID, c.RecordName)
		if err != nil {
			return err
		}

		switch c.ChangeType {
		case domain.ChangeAdd:
			v.checkAdd(vc, batch, existing, atName, deletedKeys)
		case domain.ChangeDeleteRecordSet:
			v.checkDelete(vc, existing)
		}
		if vc.hard {
			continue
		}

		level := domain.AccessWrite
		if c.ChangeType == domain.ChangeDeleteRecordSet {
			level = domain.AccessDelete
		}
		if e := v.policy.Authorize(ctx, AccessRequest{
			User:       user,
			Zone:       vc.Zone,
			RecordName: c.RecordName,
			FQDN:       fqdn,
			Type:       c.Type,
			Existing:   existing,
			Level:      level,
		}); e != nil {
			vc.AddError(*e)
		}
	}
	return nil
}

func (v *Validator) checkAdd(vc *ValidatedChange, batch *domain.BatchChange, existing *domain.RecordSet, atName []domain.RecordSet, deletedKeys map[string]bool) {
	c := vc.Change
	settings := v.settings.Get()

	if c.Type == domain.TypeCNAME && strings.EqualFold(c.RecordName, vc.Zone.Name) {
		vc.AddError(domain.NewChangeError(domain.ErrCnameCannotBeApex,
			"CNAME cannot be the apex of zone %q.", vc.Zone.Name))
		return
	}
	if c.Type == domain.TypeNS {
		if strings.EqualFold(c.RecordName, vc.Zone.Name) {
			vc.AddError(domain.NewChangeError(domain.ErrInvalidRecordType,
				"NS record %q at the zone apex cannot be managed.", c.InputName))
			return
		}
		if !settings.IsApprovedNameServer(c.Record.NSDName) {
			vc.AddError(domain.NewChangeError(domain.ErrNotApprovedNameServer,
				"Name server %q is not an approved name server.", c.Record.NSDName))
			return
		}
	}

	if existing != nil && !deletedKeys[changeKey(vc)] {
		vc.AddError(domain.RecordAlreadyExistsError(vc.FQDN()))
		return
	}
	for _, rs := range atName {
		if rs.Type == c.Type {
			continue
		}
		conflictKey := keyOf(vc.Zone.ID, rs.Name, rs.Type)
		if deletedKeys[conflictKey] {
			continue
		}
		// A CNAME may not share its name with any other type, in either
		// direction.
		if rs.Type == domain.TypeCNAME || c.Type == domain.TypeCNAME {
			vc.AddError(domain.CNAMEConflictError(vc.FQDN()))
			return
		}
	}
}

func (v *Validator) checkDelete(vc *ValidatedChange, existing *domain.RecordSet) {
	c := vc.Change
	if existing == nil {
		vc.Noop = true
		c.SystemMessage = domain.MsgRecordDoesNotExist
		return
	}
	if c.IsPartialDelete() && !existing.ContainsRecord(*c.Record) {
		vc.Noop = true
		c.SystemMessage = domain.MsgRecordDoesNotExist
	}
}

func changeKey(vc *ValidatedChange) string {
	return keyOf(vc.Change.ZoneID, vc.Change.RecordName, vc.Change.Type)
}

func keyOf(zoneID, recordName string, t domain.RecordType) string {
	return zoneID + "|" + strings.ToLower(recordName) + "|" + string(t)
}
