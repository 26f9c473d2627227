package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/poyrazK/batchdns/internal/core/domain"
	"github.com/poyrazK/batchdns/internal/core/ports"
	"github.com/poyrazK/batchdns/internal/infrastructure/metrics"
)

// leaseTTL bounds how long a record-set lease outlives a crashed worker.
const leaseTTL = 30 * time.Second

// Executor applies a validated plan to the DNS backends. Each record-set
// operation is an independent attempt; sibling operations continue past a
// backend failure.
type Executor struct {
	records  ports.RecordCatalog
	backends ports.BackendResolver
	leases   ports.LeaseManager
	logger   *slog.Logger
}

func NewExecutor(records ports.RecordCatalog, backends ports.BackendResolver, leases ports.LeaseManager, logger *slog.Logger) *Executor {
	return &Executor{records: records, backends: backends, leases: leases, logger: logger}
}

// Execute runs every plan node, updates the batch's child changes in place
// and returns the terminal batch status: Complete when every change
// succeeded, Failed when every change failed, PartialFailure otherwise.
func (e *Executor) Execute(ctx context.Context, batch *domain.BatchChange, result *ValidationResult, nodes []*PlanNode) domain.BatchStatus {
	// Validation no-ops complete without touching the backend.
	for _, vc := range result.Changes {
		if vc.Noop {
			vc.Change.Status = domain.ChangeComplete
		}
	}

	for _, node := range nodes {
		e.executeNode(ctx, batch, node)
	}

	succeeded, failed := 0, 0
	for i := range batch.Changes {
		switch batch.Changes[i].Status {
		case domain.ChangeFailed:
			failed++
		default:
			succeeded++
		}
	}
	switch {
	case failed == 0:
		return domain.BatchComplete
	case succeeded == 0:
		return domain.BatchFailed
	default:
		return domain.BatchPartialFailure
	}
}

func (e *Executor) executeNode(ctx context.Context, batch *domain.BatchChange, node *PlanNode) {
	release, err := e.leases.Acquire(ctx, []string{node.Key}, leaseTTL)
	if err != nil {
		e.failNode(batch, node, "Failed to acquire record lock: "+err.Error())
		return
	}
	defer release()

	// A concurrent batch may have raced us to this key; re-resolve the
	// current state under the lease.
	current, err := e.records.FindRecordSet(ctx, node.Zone.ID, node.RecordName, node.Type)
	if err != nil {
		e.failNode(batch, node, "Failed to read record set: "+err.Error())
		return
	}
	action := node.Action
	switch {
	case action == domain.ActionCreate && current != nil:
		e.failNode(batch, node, domain.RecordAlreadyExistsError(node.RecordName+"."+node.Zone.Name).Message)
		return
	case action != domain.ActionCreate && current == nil:
		if action == domain.ActionDelete {
			e.completeNode(batch, node, "", domain.MsgRecordDoesNotExist)
			return
		}
		action = domain.ActionCreate
	}

	rs := e.buildRecordSet(batch, node, current, action)
	change := &domain.RecordSetChange{
		ID:        uuid.New().String(),
		ZoneID:    node.Zone.ID,
		Action:    action,
		RecordSet: rs,
		Existing:  current,
		UserID:    batch.UserID,
		CreatedAt: time.Now(),
	}

	backend, err := e.backends.BackendFor(node.Zone)
	if err != nil {
		e.failNode(batch, node, "No backend available for zone "+node.Zone.Name+": "+err.Error())
		return
	}

	start := time.Now()
	err = backend.Apply(ctx, node.Zone, change)
	metrics.BackendApplyDuration.WithLabelValues(string(action)).Observe(time.Since(start).Seconds())
	if err != nil {
		e.logger.Error("backend apply failed",
			"zone", node.Zone.Name, "record", node.RecordName, "type", string(node.Type), "error", err)
		e.failNode(batch, node, err.Error())
		return
	}

	switch action {
	case domain.ActionDelete:
		err = e.records.DeleteRecordSet(ctx, node.Zone.ID, rs.ID)
	default:
		err = e.records.SaveRecordSet(ctx, &rs)
	}
	if err != nil {
		e.failNode(batch, node, "Failed to persist record set: "+err.Error())
		return
	}

	e.completeNode(batch, node, rs.ID, "")
}

// buildRecordSet materializes the target record set, applying the ownership
// adoption rules: in a shared zone, new record sets take the batch's owner
// group and updated unowned ones adopt it; owned ones keep their owner. In
// private zones the owner group is never set.
func (e *Executor) buildRecordSet(batch *domain.BatchChange, node *PlanNode, current *domain.RecordSet, action domain.RecordSetChangeAction) domain.RecordSet {
	now := time.Now()
	rs := domain.RecordSet{
		ID:        uuid.New().String(),
		ZoneID:    node.Zone.ID,
		Name:      node.RecordName,
		Type:      node.Type,
		TTL:       node.TTL,
		Records:   node.Records,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if current != nil {
		rs.ID = current.ID
		rs.CreatedAt = current.CreatedAt
		rs.OwnerGroupID = current.OwnerGroupID
		rs.RecordSetGroupChange = current.RecordSetGroupChange
	}
	if node.Zone.Shared && rs.OwnerGroupID == nil {
		rs.OwnerGroupID = batch.OwnerGroupID
	}
	return rs
}

func (e *Executor) failNode(batch *domain.BatchChange, node *PlanNode, msg string) {
	for _, idx := range node.ChangeIdx {
		c := &batch.Changes[idx]
		c.Status = domain.ChangeFailed
		c.SystemMessage = msg
	}
	metrics.BatchChangesTotal.WithLabelValues("failed").Add(float64(len(node.ChangeIdx)))
}

func (e *Executor) completeNode(batch *domain.BatchChange, node *PlanNode, recordSetID, msg string) {
	for _, idx := range node.ChangeIdx {
		c := &batch.Changes[idx]
		c.Status = domain.ChangeComplete
		c.RecordSetID = recordSetID
		if msg != "" {
			c.SystemMessage = msg
		}
	}
	metrics.BatchChangesTotal.WithLabelValues("complete").Add(float64(len(node.ChangeIdx)))
}
