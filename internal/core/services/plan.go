package services

import (
	"sort"
	"strings"

	"github.com/poyrazK/batchdns/internal/core/domain"
)

// PlanNode is one coalesced record-set operation keyed by
// (zoneId, recordName, type). It is the unit of backend application and of
// per-record-set locking, and carries back-pointers to the batch change
// indexes it serves.
type PlanNode struct {
	Key        string
	Zone       *domain.Zone
	RecordName string
	Type       domain.RecordType
	Action     domain.RecordSetChangeAction
	Existing   *domain.RecordSet
	Records    []domain.RecordData // desired final contents, empty on delete
	TTL        int
	ChangeIdx  []int
}

// Planner collapses validated adds and deletes into record-set operations:
// delete-then-add becomes an update, multiple adds of a multi-record type
// union into one set, and partial deletes subtract single records.
type Planner struct {
	settings *SettingsStore
}

func NewPlanner(settings *SettingsStore) *Planner {
	return &Planner{settings: settings}
}

// Plan builds the operation graph from the surviving changes, in canonical
// key order so leases are acquired without deadlock.
func (p *Planner) Plan(result *ValidationResult) []*PlanNode {
	type group struct {
		node           *PlanNode
		adds           []*ValidatedChange
		fullDelete     bool
		partialDeletes []domain.RecordData
	}
	groups := make(map[string]*group)
	var order []string

	for _, vc := range result.Changes {
		if vc.HardFailed() || vc.Noop || vc.Zone == nil {
			continue
		}
		key := changeKey(vc)
		g, ok := groups[key]
		if !ok {
			g = &group{node: &PlanNode{
				Key:        key,
				Zone:       vc.Zone,
				RecordName: vc.Change.RecordName,
				Type:       vc.Change.Type,
				Existing:   vc.Existing,
			}}
			groups[key] = g
			order = append(order, key)
		}
		g.node.ChangeIdx = append(g.node.ChangeIdx, vc.Index)
		switch vc.Change.ChangeType {
		case domain.ChangeAdd:
			g.adds = append(g.adds, vc)
		case domain.ChangeDeleteRecordSet:
			if vc.Change.IsPartialDelete() {
				g.partialDeletes = append(g.partialDeletes, *vc.Change.Record)
			} else {
				g.fullDelete = true
			}
		}
	}

	settings := p.settings.Get()
	var nodes []*PlanNode
	for _, key := range order {
		g := groups[key]
		node := g.node

		var records []domain.RecordData
		if node.Existing != nil && !g.fullDelete {
			records = append(records, node.Existing.Records...)
		}
		for _, del := range g.partialDeletes {
			records = removeRecord(node.Type, records, del)
		}
		for _, add := range g.adds {
			records = appendUnique(node.Type, records, *add.Change.Record)
		}
		node.Records = records
		node.TTL = p.resolveTTL(settings, g.adds, node.Existing)

		switch {
		case node.Existing == nil && len(records) > 0:
			node.Action = domain.ActionCreate
		case node.Existing != nil && len(records) == 0:
			node.Action = domain.ActionDelete
		case node.Existing != nil:
			node.Action = domain.ActionUpdate
		default:
			// Deletes of nothing were flagged no-op during validation.
			continue
		}
		nodes = append(nodes, node)
	}

	sort.Slice(nodes, func(i, j int) bool {
		return strings.Compare(nodes[i].Key, nodes[j].Key) < 0
	})
	return nodes
}

func (p *Planner) resolveTTL(settings *Settings, adds []*ValidatedChange, existing *domain.RecordSet) int {
	for _, add := range adds {
		if add.Change.TTL != nil {
			return *add.Change.TTL
		}
	}
	if settings.TTLPolicy == TTLPolicyInherit && existing != nil {
		return existing.TTL
	}
	return settings.DefaultTTL
}

func removeRecord(t domain.RecordType, records []domain.RecordData, rec domain.RecordData) []domain.RecordData {
	out := records[:0]
	for _, r := range records {
		if !r.Equal(t, rec) {
			out = append(out, r)
		}
	}
	return out
}

func appendUnique(t domain.RecordType, records []domain.RecordData, rec domain.RecordData) []domain.RecordData {
	for _, r := range records {
		if r.Equal(t, rec) {
			return records
		}
	}
	return append(records, rec)
}
