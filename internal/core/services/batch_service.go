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
	"github.com/poyrazK/batchdns/internal/infrastructure/metrics"
)

// batchService orchestrates the batch-change lifecycle: submission through
// validation, the review gate, and execution against the backends.
type batchService struct {
	settings  *SettingsStore
	validator *Validator
	planner   *Planner
	executor  *Executor
	store     ports.BatchStore
	zones     ports.ZoneCatalog
	records   ports.RecordCatalog
	groups    ports.GroupDirectory
	audit     ports.AuditStore
	logger    *slog.Logger

	// syncProcess runs execution inline with Submit/Approve instead of in
	// a background goroutine. Tests set this.
	syncProcess bool
}

func NewBatchService(settings *SettingsStore, validator *Validator, planner *Planner, executor *Executor,
	store ports.BatchStore, zones ports.ZoneCatalog, records ports.RecordCatalog,
	groups ports.GroupDirectory, audit ports.AuditStore, logger *slog.Logger, syncProcess bool) ports.BatchService {
	return &batchService{
		settings:    settings,
		validator:   validator,
		planner:     planner,
		executor:    executor,
		store:       store,
		zones:       zones,
		records:     records,
		groups:      groups,
		audit:       audit,
		logger:      logger,
		syncProcess: syncProcess,
	}
}

// Submit validates the input batch and either rejects it, parks it for
// review or scheduling, or executes it.
func (s *batchService) Submit(ctx context.Context, user *domain.User, input *domain.BatchChangeInput) (*domain.BatchChange, error) {
	settings := s.settings.Get()

	if len(input.Changes) == 0 {
		return nil, &domain.RequestErrors{Errors: []string{"Batch change must contain at least one change."}}
	}
	if len(input.Changes) > settings.MaxBatchChanges {
		return nil, fmt.Errorf("%w: %d changes submitted, limit is %d",
			domain.ErrBatchTooLarge, len(input.Changes), settings.MaxBatchChanges)
	}
	if input.ScheduledTime != nil {
		if !settings.SchedulingEnabled {
			return nil, fmt.Errorf("%w: scheduled changes are disabled on this server", domain.ErrUnprocessable)
		}
		if !input.ScheduledTime.After(time.Now()) {
			return nil, &domain.RequestErrors{Errors: []string{"Scheduled time must be in the future."}}
		}
		if input.OwnerGroupID == nil {
			return nil, fmt.Errorf("%w: scheduled batch changes require an owner group ID", domain.ErrUnprocessable)
		}
	}
	if input.OwnerGroupID != nil && !user.IsSuper {
		group, err := s.groups.GetGroup(ctx, *input.OwnerGroupID)
		if err != nil {
			return nil, err
		}
		if group == nil {
			return nil, fmt.Errorf("%w: owner group %q not found", domain.ErrUnprocessable, *input.OwnerGroupID)
		}
		if !user.InGroup(group.ID) {
			return nil, fmt.Errorf("%w: user %q is not a member of owner group %q",
				domain.ErrUnprocessable, user.UserName, group.Name)
		}
	}

	batch := s.newBatch(user, input)
	result, err := s.validator.Validate(ctx, user, batch)
	if err != nil {
		return nil, err
	}
	for _, vc := range result.Changes {
		for _, e := range vc.Change.ValidationErrors {
			metrics.ValidationFailures.WithLabelValues(string(e.Kind)).Inc()
		}
	}

	if result.AnyHard() {
		metrics.BatchesTotal.WithLabelValues("rejected").Inc()
		return nil, &domain.BatchRejection{Changes: batch.Changes}
	}

	if result.AnySoft() {
		// Soft failures route to manual review when the server allows it
		// and the batch names an owner group for followup; otherwise they
		// reject like hard failures.
		if !settings.AllowManualReview || batch.OwnerGroupID == nil {
			metrics.BatchesTotal.WithLabelValues("rejected").Inc()
			return nil, &domain.BatchRejection{Changes: batch.Changes}
		}
		for _, vc := range result.Changes {
			if vc.NeedsReview() {
				vc.Change.Status = domain.ChangeNeedsReview
			}
		}
		batch.Status = domain.BatchPendingReview
		batch.ApprovalStatus = domain.ApprovalPendingReview
		if err := s.store.CreateBatch(ctx, batch); err != nil {
			return nil, err
		}
		metrics.BatchesTotal.WithLabelValues("pending_review").Inc()
		s.auditAction(ctx, user.ID, "SUBMIT_BATCH", batch.ID, "batch parked for manual review")
		return batch, nil
	}

	batch.ApprovalStatus = domain.ApprovalAuto
	if batch.ScheduledTime != nil {
		batch.Status = domain.BatchScheduled
		if err := s.store.CreateBatch(ctx, batch); err != nil {
			return nil, err
		}
		metrics.BatchesTotal.WithLabelValues("scheduled").Inc()
		s.auditAction(ctx, user.ID, "SUBMIT_BATCH", batch.ID,
			"batch scheduled for "+batch.ScheduledTime.UTC().Format(time.RFC3339))
		return batch, nil
	}

	batch.Status = domain.BatchPending
	if err := s.store.CreateBatch(ctx, batch); err != nil {
		return nil, err
	}
	s.auditAction(ctx, user.ID, "SUBMIT_BATCH", batch.ID, "batch accepted")
	s.dispatch(ctx, batch.ID)
	return s.store.GetBatch(ctx, batch.ID)
}

// newBatch converts the submission into a persistent envelope with
// canonicalized input names.
func (s *batchService) newBatch(user *domain.User, input *domain.BatchChangeInput) *domain.BatchChange {
	batch := &domain.BatchChange{
		ID:            uuid.New().String(),
		UserID:        user.ID,
		UserName:      user.UserName,
		Comments:      input.Comments,
		OwnerGroupID:  input.OwnerGroupID,
		ScheduledTime: input.ScheduledTime,
		CreatedAt:     time.Now(),
	}
	for _, in := range input.Changes {
		name := in.InputName
		// PTR input names are IP addresses and stay as submitted.
		if in.Type != domain.TypePTR {
			name = domain.EnsureTrailingDot(strings.TrimSpace(name))
		}
		batch.Changes = append(batch.Changes, domain.SingleChange{
			ID:         uuid.New().String(),
			ChangeType: in.ChangeType,
			InputName:  name,
			Type:       in.Type,
			TTL:        in.TTL,
			Record:     in.Record,
			Status:     domain.ChangePending,
		})
	}
	return batch
}

func (s *batchService) Get(ctx context.Context, user *domain.User, id string) (*domain.BatchChange, error) {
	batch, err := s.store.GetBatch(ctx, id)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return nil, domain.ErrNotFound
	}
	if batch.UserID != user.ID && !user.CanReview() {
		return nil, domain.ErrForbidden
	}
	return batch, nil
}

func (s *batchService) List(ctx context.Context, user *domain.User) ([]domain.BatchSummary, error) {
	return s.store.ListBatches(ctx, user.ID)
}

// Approve releases a batch from the review gate and executes it.
func (s *batchService) Approve(ctx context.Context, user *domain.User, id, comment string) (*domain.BatchChange, error) {
	batch, err := s.reviewable(ctx, user, id)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetApproval(ctx, id, domain.ApprovalManuallyApproved, user.ID, comment); err != nil {
		return nil, err
	}
	if err := s.store.TransitionStatus(ctx, id, domain.BatchPendingReview, domain.BatchPending); err != nil {
		return nil, err
	}
	for i := range batch.Changes {
		if batch.Changes[i].Status == domain.ChangeNeedsReview {
			batch.Changes[i].Status = domain.ChangePending
			if err := s.store.UpdateChange(ctx, id, &batch.Changes[i]); err != nil {
				return nil, err
			}
		}
	}
	s.auditAction(ctx, user.ID, "APPROVE_BATCH", id, comment)
	s.dispatch(ctx, id)
	return s.store.GetBatch(ctx, id)
}

// Reject terminally fails a batch pending review.
func (s *batchService) Reject(ctx context.Context, user *domain.User, id, comment string) (*domain.BatchChange, error) {
	batch, err := s.reviewable(ctx, user, id)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetApproval(ctx, id, domain.ApprovalManuallyRejected, user.ID, comment); err != nil {
		return nil, err
	}
	if err := s.store.TransitionStatus(ctx, id, domain.BatchPendingReview, domain.BatchFailed); err != nil {
		return nil, err
	}
	for i := range batch.Changes {
		c := &batch.Changes[i]
		if c.Status == domain.ChangeComplete || c.Status == domain.ChangeFailed {
			continue
		}
		c.Status = domain.ChangeFailed
		c.SystemMessage = "Batch change was rejected by a reviewer."
		if err := s.store.UpdateChange(ctx, id, c); err != nil {
			return nil, err
		}
	}
	metrics.BatchesTotal.WithLabelValues("rejected_review").Inc()
	s.auditAction(ctx, user.ID, "REJECT_BATCH", id, comment)
	return s.store.GetBatch(ctx, id)
}

func (s *batchService) reviewable(ctx context.Context, user *domain.User, id string) (*domain.BatchChange, error) {
	if !user.CanReview() {
		return nil, domain.ErrForbidden
	}
	batch, err := s.store.GetBatch(ctx, id)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return nil, domain.ErrNotFound
	}
	if batch.Status != domain.BatchPendingReview {
		return nil, fmt.Errorf("%w: batch %q has status %q, expected %q",
			domain.ErrInvalidState, id, batch.Status, domain.BatchPendingReview)
	}
	return batch, nil
}

// dispatch hands the batch to the executor, inline or in the background.
func (s *batchService) dispatch(ctx context.Context, id string) {
	if s.syncProcess {
		if err := s.Process(ctx, id); err != nil {
			s.logger.Error("batch processing failed", "batch_id", id, "error", err)
		}
		return
	}
	go func() {
		// Detach from the request context; processing outlives the request.
		if err := s.Process(context.Background(), id); err != nil {
			s.logger.Error("batch processing failed", "batch_id", id, "error", err)
		}
	}()
}

// Process drives one batch from Pending through Processing to a terminal
// status. The Pending->Processing compare-and-swap makes concurrent workers
// safe: only one wins the batch.
func (s *batchService) Process(ctx context.Context, id string) error {
	batch, err := s.store.GetBatch(ctx, id)
	if err != nil {
		return err
	}
	if batch == nil {
		return domain.ErrNotFound
	}
	if err := s.store.TransitionStatus(ctx, id, domain.BatchPending, domain.BatchProcessing); err != nil {
		return err
	}

	result, err := s.prepare(ctx, batch)
	if err != nil {
		s.logger.Error("batch preparation failed", "batch_id", id, "error", err)
		return s.finish(ctx, batch, domain.BatchFailed)
	}
	nodes := s.planner.Plan(result)
	status := s.executor.Execute(ctx, batch, result, nodes)
	return s.finish(ctx, batch, status)
}

// prepare rebuilds the planning IR for an already-validated batch: zones are
// resolved by stored id and existing state is re-read, since it may have
// moved between submission and execution.
func (s *batchService) prepare(ctx context.Context, batch *domain.BatchChange) (*ValidationResult, error) {
	result := &ValidationResult{}
	for i := range batch.Changes {
		c := &batch.Changes[i]
		vc := &ValidatedChange{Index: i, Change: c}

		zone, err := s.zones.GetZone(ctx, c.ZoneID)
		if err != nil {
			return nil, err
		}
		if zone == nil {
			return nil, fmt.Errorf("zone %q no longer exists", c.ZoneID)
		}
		vc.Zone = zone

		existing, err := s.records.FindRecordSet(ctx, zone.ID, c.RecordName, c.Type)
		if err != nil {
			return nil, err
		}
		vc.Existing = existing

		if c.ChangeType == domain.ChangeDeleteRecordSet {
			if existing == nil || (c.IsPartialDelete() && !existing.ContainsRecord(*c.Record)) {
				vc.Noop = true
				c.SystemMessage = domain.MsgRecordDoesNotExist
			}
		}
		result.Changes = append(result.Changes, vc)
	}
	return result, nil
}

func (s *batchService) finish(ctx context.Context, batch *domain.BatchChange, status domain.BatchStatus) error {
	for i := range batch.Changes {
		if err := s.store.UpdateChange(ctx, batch.ID, &batch.Changes[i]); err != nil {
			return err
		}
	}
	if err := s.store.TransitionStatus(ctx, batch.ID, domain.BatchProcessing, status); err != nil {
		return err
	}
	metrics.BatchesTotal.WithLabelValues(strings.ToLower(string(status))).Inc()
	s.logger.Info("batch processed", "batch_id", batch.ID, "status", string(status), "changes", len(batch.Changes))
	return nil
}

func (s *batchService) auditAction(ctx context.Context, userID, action, batchID, details string) {
	entry := &domain.AuditLog{
		ID:           uuid.New().String(),
		UserID:       userID,
		Action:       action,
		ResourceType: "BATCH",
		ResourceID:   batchID,
		Details:      details,
		CreatedAt:    time.Now(),
	}
	if err := s.audit.SaveAuditLog(ctx, entry); err != nil {
		s.logger.Error("audit log write failed", "action", action, "resource_id", batchID, "error", err)
	}
}
