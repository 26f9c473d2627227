package services

import (
	"context"
	"fmt"
	"net"
	"regexp"
	"sort"
	"strings"

	"github.com/poyrazK/batchdns/internal/core/domain"
	"github.com/poyrazK/batchdns/internal/core/ports"
)

// Policy decides whether a user may perform an operation on a record.
// Precedence, highest to lowest: super-user, zone admin, global ACL,
// per-zone ACL (most specific matching rule decides), record-owner-group
// membership on a shared zone, shared-zone approved-type fallback.
type Policy struct {
	settings *SettingsStore
	groups   ports.GroupDirectory
}

func NewPolicy(settings *SettingsStore, groups ports.GroupDirectory) *Policy {
	return &Policy{settings: settings, groups: groups}
}

// AccessRequest describes one attempted record operation.
type AccessRequest struct {
	User       *domain.User
	Zone       *domain.Zone
	RecordName string // relative
	FQDN       string
	Type       domain.RecordType
	Existing   *domain.RecordSet  // nil for new records
	Level      domain.AccessLevel // Write for add/update, Delete for delete
}

// Authorize returns nil when the operation is permitted, or a NotAuthorized
// diagnostic carrying the current owner's contact information.
func (p *Policy) Authorize(ctx context.Context, req AccessRequest) *domain.ChangeError {
	if req.User.IsSuper {
		return nil
	}
	if req.User.InGroup(req.Zone.AdminGroupID) {
		return nil
	}
	if p.globalACLGrants(req) {
		return nil
	}

	if rule, matched := p.mostSpecificACLRule(req); matched {
		if rule.AccessLevel.Implies(req.Level) {
			return nil
		}
		return p.deny(ctx, req)
	}

	if req.Zone.Shared {
		if req.Existing != nil && req.Existing.OwnerGroupID != nil {
			if req.User.InGroup(*req.Existing.OwnerGroupID) {
				return nil
			}
			return p.deny(ctx, req)
		}
		if p.settings.Get().SharedTypeApproved(req.Type) {
			return nil
		}
	}

	return p.deny(ctx, req)
}

func (p *Policy) deny(ctx context.Context, req AccessRequest) *domain.ChangeError {
	ownerID := req.Zone.AdminGroupID
	if req.Existing != nil && req.Existing.OwnerGroupID != nil {
		ownerID = *req.Existing.OwnerGroupID
	}
	ownerName, ownerEmail := ownerID, req.Zone.Email
	if g, err := p.groups.GetGroup(ctx, ownerID); err == nil && g != nil {
		ownerName, ownerEmail = g.Name, g.Email
	}
	err := domain.NotAuthorizedError(req.User.UserName, ownerName, ownerEmail)
	return &err
}

func (p *Policy) globalACLGrants(req AccessRequest) bool {
	for _, rule := range p.settings.Get().GlobalACLs {
		if !globalRuleAppliesToUser(rule, req.User) {
			continue
		}
		// A global rule that does not list the target type grants nothing.
		if !containsType(rule.RecordTypes, req.Type) {
			continue
		}
		if rule.AccessLevel.Implies(req.Level) {
			return true
		}
	}
	return false
}

func globalRuleAppliesToUser(rule GlobalACLRule, user *domain.User) bool {
	for _, id := range rule.UserIDs {
		if id == user.ID {
			return true
		}
	}
	for _, g := range rule.GroupIDs {
		if user.InGroup(g) {
			return true
		}
	}
	return false
}

func containsType(types []domain.RecordType, t domain.RecordType) bool {
	for _, rt := range types {
		if rt == t {
			return true
		}
	}
	return false
}

// mostSpecificACLRule returns the matching zone ACL rule with the highest
// specificity: user rules before group rules, then narrower type sets, then
// more restrictive masks (longer CIDR prefixes; a defined regex over none).
func (p *Policy) mostSpecificACLRule(req AccessRequest) (domain.ACLRule, bool) {
	var matched []domain.ACLRule
	for _, rule := range req.Zone.ACL {
		if !aclRuleAppliesToUser(rule, req.User) {
			continue
		}
		if !rule.AppliesToType(req.Type) {
			continue
		}
		if !p.maskMatches(rule, req) {
			continue
		}
		matched = append(matched, rule)
	}
	if len(matched) == 0 {
		return domain.ACLRule{}, false
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return ruleSpecificity(matched[i], req.Zone) < ruleSpecificity(matched[j], req.Zone)
	})
	return matched[0], true
}

func aclRuleAppliesToUser(rule domain.ACLRule, user *domain.User) bool {
	if rule.UserID != nil {
		return *rule.UserID == user.ID
	}
	if rule.GroupID != nil {
		return user.InGroup(*rule.GroupID)
	}
	return false
}

// ruleSpecificity orders rules from most to least specific; lower sorts first.
func ruleSpecificity(rule domain.ACLRule, zone *domain.Zone) int {
	score := 0
	if rule.UserID == nil {
		score += 1 << 20
	}
	typeCount := len(rule.RecordTypes)
	if typeCount == 0 {
		typeCount = len(domain.ForwardTypes) + 1
	}
	score += typeCount << 10
	score += maskSpecificity(rule, zone)
	return score
}

func maskSpecificity(rule domain.ACLRule, zone *domain.Zone) int {
	if rule.RecordMask == nil || *rule.RecordMask == "" {
		return 100
	}
	if zone.IsReverse() {
		if _, ipnet, err := net.ParseCIDR(*rule.RecordMask); err == nil {
			ones, bits := ipnet.Mask.Size()
			return bits - ones // smaller range wins
		}
	}
	return 0
}

func (p *Policy) maskMatches(rule domain.ACLRule, req AccessRequest) bool {
	if rule.RecordMask == nil || *rule.RecordMask == "" {
		return true
	}
	if req.Zone.IsReverse() && req.Type == domain.TypePTR {
		_, ipnet, err := net.ParseCIDR(*rule.RecordMask)
		if err != nil {
			return false
		}
		ip := ipFromReverse(req.Zone.Name, req.RecordName)
		return ip != nil && ipnet.Contains(ip)
	}
	re, err := regexp.Compile("^" + *rule.RecordMask + "$")
	if err != nil {
		return false
	}
	return re.MatchString(req.RecordName)
}

// ipFromReverse rebuilds the IPv4 address described by a reverse zone name
// (classful or classless) plus a relative record name.
func ipFromReverse(zoneName, recordName string) net.IP {
	lower := strings.ToLower(domain.EnsureTrailingDot(zoneName))
	trimmed := strings.TrimSuffix(lower, ".in-addr.arpa.")
	if trimmed == lower {
		return nil
	}
	labels := strings.Split(trimmed, ".")
	if len(labels) != 3 {
		return nil
	}
	// Classless zones carry a <base>/<prefix> first label.
	if idx := strings.Index(labels[0], "/"); idx >= 0 {
		labels[0] = labels[0][:idx]
	}
	var o1, o2, o3, o4 int
	if _, err := fmt.Sscanf(labels[2], "%d", &o1); err != nil {
		return nil
	}
	if _, err := fmt.Sscanf(labels[1], "%d", &o2); err != nil {
		return nil
	}
	if _, err := fmt.Sscanf(labels[0], "%d", &o3); err != nil {
		return nil
	}
	if _, err := fmt.Sscanf(recordName, "%d", &o4); err != nil {
		return nil
	}
	return net.IPv4(byte(o1), byte(o2), byte(o3), byte(o4))
}

// CheckDottedHost enforces the zone's dotted-host policy for a relative
// record name. Dots are only permitted when the zone allows them, the dot
// count fits the zone limit, and the acting principal's grant covers the
// record type.
func (p *Policy) CheckDottedHost(user *domain.User, zone *domain.Zone, recordName string, t domain.RecordType) *domain.ChangeError {
	if zone.IsReverse() || strings.EqualFold(recordName, zone.Name) {
		return nil
	}
	dots := strings.Count(strings.TrimSuffix(recordName, "."), ".")
	if dots == 0 {
		return nil
	}

	allowed := zone.AllowDottedHosts && dots <= zone.AllowDottedLimit
	if allowed && !user.IsSuper && !user.InGroup(zone.AdminGroupID) {
		allowed = false
		for _, rule := range zone.ACL {
			if aclRuleAppliesToUser(rule, user) && rule.AppliesToType(t) && rule.AccessLevel.Implies(domain.AccessWrite) {
				allowed = true
				break
			}
		}
	}
	if allowed {
		return nil
	}
	err := domain.NewChangeError(domain.ErrDottedHostNotAllowed,
		"Record with name %q and type %q is a dotted host which is not allowed in zone %q.",
		recordName, string(t), zone.Name)
	return &err
}

// CanSetShared gates the zone shared-flag transition from false to true.
func (p *Policy) CanSetShared(user *domain.User) bool { return user.IsSuper }

// CanSetRecurrence gates the recurrenceSchedule attribute.
func (p *Policy) CanSetRecurrence(user *domain.User) bool { return user.IsSuper }
