package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/poyrazK/batchdns/internal/core/domain"
	"github.com/poyrazK/batchdns/internal/core/ports"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// zoneService manages the zone lifecycle. Record content inside zones is the
// batch pipeline's business, not this service's.
type zoneService struct {
	settings *SettingsStore
	zones    ports.ZoneCatalog
	groups   ports.GroupDirectory
	audit    ports.AuditStore
	logger   *slog.Logger
}

func NewZoneService(settings *SettingsStore, zones ports.ZoneCatalog, groups ports.GroupDirectory,
	audit ports.AuditStore, logger *slog.Logger) ports.ZoneService {
	return &zoneService{settings: settings, zones: zones, groups: groups, audit: audit, logger: logger}
}

func (s *zoneService) Create(ctx context.Context, user *domain.User, zone *domain.Zone) (*domain.ZoneChange, error) {
	zone.Name = domain.EnsureTrailingDot(strings.TrimSpace(strings.ToLower(zone.Name)))
	if e := domain.ValidateDomainName(zone.Name); e != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnprocessable, e.Message)
	}
	if err := s.validateZoneInput(ctx, user, zone); err != nil {
		return nil, err
	}

	existing, err := s.zones.GetZoneByName(ctx, zone.Name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: zone %q", domain.ErrConflict, zone.Name)
	}

	now := time.Now()
	zone.ID = uuid.New().String()
	zone.Status = domain.ZoneActive
	zone.CreatedAt = now
	zone.UpdatedAt = now
	if err := s.zones.CreateZone(ctx, zone); err != nil {
		return nil, err
	}
	s.auditZone(ctx, user.ID, "CREATE_ZONE", zone.ID, zone.Name)
	return s.zoneChange(zone, user.ID, domain.ZoneChangeCreate), nil
}

func (s *zoneService) Update(ctx context.Context, user *domain.User, zone *domain.Zone) (*domain.ZoneChange, error) {
	current, err := s.zones.GetZone(ctx, zone.ID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, domain.ErrNotFound
	}
	if !user.IsSuper && !user.InGroup(current.AdminGroupID) {
		return nil, domain.ErrForbidden
	}
	if !strings.EqualFold(zone.Name, current.Name) {
		return nil, fmt.Errorf("%w: zone name cannot be changed", domain.ErrUnprocessable)
	}
	zone.Name = current.Name
	if zone.Shared != current.Shared && !user.IsSuper {
		return nil, fmt.Errorf("%w: only a system administrator may change the shared flag", domain.ErrForbidden)
	}
	if !recurrenceEqual(zone.RecurrenceSchedule, current.RecurrenceSchedule) && !user.IsSuper {
		return nil, fmt.Errorf("%w: only a system administrator may change the recurrence schedule", domain.ErrForbidden)
	}
	if err := s.validateZoneInput(ctx, user, zone); err != nil {
		return nil, err
	}

	zone.CreatedAt = current.CreatedAt
	zone.Status = current.Status
	zone.UpdatedAt = time.Now()
	if err := s.zones.UpdateZone(ctx, zone); err != nil {
		return nil, err
	}
	s.auditZone(ctx, user.ID, "UPDATE_ZONE", zone.ID, zone.Name)
	return s.zoneChange(zone, user.ID, domain.ZoneChangeUpdate), nil
}

func (s *zoneService) Get(ctx context.Context, user *domain.User, id string) (*domain.Zone, error) {
	zone, err := s.zones.GetZone(ctx, id)
	if err != nil {
		return nil, err
	}
	if zone == nil {
		return nil, domain.ErrNotFound
	}
	return zone, nil
}

// validateZoneInput applies the checks shared by create and update: admin
// group membership, contact email shape, TSIG key material, ACL rule shape
// and the recurrence schedule.
func (s *zoneService) validateZoneInput(ctx context.Context, user *domain.User, zone *domain.Zone) error {
	group, err := s.groups.GetGroup(ctx, zone.AdminGroupID)
	if err != nil {
		return err
	}
	if group == nil {
		return fmt.Errorf("%w: admin group %q not found", domain.ErrUnprocessable, zone.AdminGroupID)
	}
	if !user.IsSuper && !user.InGroup(group.ID) {
		return fmt.Errorf("%w: user %q is not a member of admin group %q",
			domain.ErrForbidden, user.UserName, group.Name)
	}

	if err := s.validateEmail(zone.Email); err != nil {
		return err
	}
	if err := validateConnection(zone.Connection); err != nil {
		return err
	}
	if err := validateConnection(zone.TransferConnection); err != nil {
		return err
	}
	for _, rule := range zone.ACL {
		if err := validateACLRule(rule); err != nil {
			return err
		}
	}
	if zone.RecurrenceSchedule != nil {
		if _, err := cronParser.Parse(*zone.RecurrenceSchedule); err != nil {
			return fmt.Errorf("%w: invalid recurrence schedule %q: %v",
				domain.ErrUnprocessable, *zone.RecurrenceSchedule, err)
		}
	}
	return nil
}

func (s *zoneService) validateEmail(email string) error {
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return fmt.Errorf("%w: invalid zone contact email %q", domain.ErrUnprocessable, email)
	}
	host := strings.ToLower(email[at+1:])
	if strings.Count(host, ".") > 2 {
		return fmt.Errorf("%w: zone contact email domain %q has too many labels", domain.ErrUnprocessable, host)
	}
	allowed := s.settings.Get().AllowedEmailDomains
	if len(allowed) == 0 {
		return nil
	}
	for _, d := range allowed {
		d = strings.ToLower(d)
		if host == d || strings.HasSuffix(host, "."+d) {
			return nil
		}
	}
	return fmt.Errorf("%w: zone contact email domain %q is not on the allowed list", domain.ErrUnprocessable, host)
}

func validateConnection(conn *domain.ZoneConnection) error {
	if conn == nil {
		return nil
	}
	if conn.KeyName == "" || conn.Key == "" || conn.PrimaryServer == "" {
		return fmt.Errorf("%w: zone connection requires key name, key and primary server", domain.ErrUnprocessable)
	}
	if _, err := base64.StdEncoding.DecodeString(conn.Key); err != nil {
		return fmt.Errorf("%w: TSIG key for %q is not valid base64", domain.ErrUnprocessable, conn.KeyName)
	}
	return nil
}

func validateACLRule(rule domain.ACLRule) error {
	if (rule.UserID == nil) == (rule.GroupID == nil) {
		return fmt.Errorf("%w: ACL rule must name exactly one of a user or a group", domain.ErrUnprocessable)
	}
	if rule.RecordMask == nil {
		return nil
	}
	// A mask cannot span PTR and forward types: PTR masks are CIDRs, forward
	// masks are regexes.
	hasPTR, hasForward := false, false
	for _, t := range rule.RecordTypes {
		if t == domain.TypePTR {
			hasPTR = true
		} else {
			hasForward = true
		}
	}
	if hasPTR && hasForward {
		return fmt.Errorf("%w: an ACL rule with a record mask cannot cover PTR together with forward types", domain.ErrUnprocessable)
	}
	return nil
}

func recurrenceEqual(a, b *string) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || *a == *b
}

func (s *zoneService) zoneChange(zone *domain.Zone, userID string, t domain.ZoneChangeType) *domain.ZoneChange {
	return &domain.ZoneChange{
		ID:         uuid.New().String(),
		Zone:       *zone,
		UserID:     userID,
		ChangeType: t,
		Status:     "Complete",
		CreatedAt:  time.Now(),
	}
}

func (s *zoneService) auditZone(ctx context.Context, userID, action, zoneID, zoneName string) {
	entry := &domain.AuditLog{
		ID:           uuid.New().String(),
		UserID:       userID,
		Action:       action,
		ResourceType: "ZONE",
		ResourceID:   zoneID,
		Details:      zoneName,
		CreatedAt:    time.Now(),
	}
	if err := s.audit.SaveAuditLog(ctx, entry); err != nil {
		s.logger.Error("audit log write failed", "action", action, "resource_id", zoneID, "error", err)
	}
}
