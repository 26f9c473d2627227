package domain

// OwnershipStatus is the state of an ownership-transfer proposal on a
// shared-zone record set.
type OwnershipStatus string

const (
	OwnershipRequested        OwnershipStatus = "Requested"
	OwnershipPendingReview    OwnershipStatus = "PendingReview"
	OwnershipManuallyApproved OwnershipStatus = "ManuallyApproved"
	OwnershipManuallyRejected OwnershipStatus = "ManuallyRejected"
	OwnershipCancelled        OwnershipStatus = "Cancelled"
	OwnershipAutoApproved     OwnershipStatus = "AutoApproved"
)

// OwnershipTransfer is an in-flight proposal to move a record set to a new
// owner group.
type OwnershipTransfer struct {
	Status                OwnershipStatus `json:"status"`
	RequestedOwnerGroupID string          `json:"requested_owner_group_id"`
}

// Transitions are linear: Requested -> PendingReview -> approved/rejected,
// with Cancelled reachable from PendingReview only. Resolved proposals
// accept no further transitions.
var ownershipTransitions = map[OwnershipStatus][]OwnershipStatus{
	OwnershipRequested:     {OwnershipPendingReview},
	OwnershipPendingReview: {OwnershipManuallyApproved, OwnershipManuallyRejected, OwnershipCancelled},
}

// TransitionOwnership validates a proposed transition of a transfer
// proposal. AutoApproved is only permitted as a direct terminal state, and
// only when the actor belongs to both the current and requested owner
// groups on a shared zone; the caller supplies those facts.
func TransitionOwnership(current *OwnershipTransfer, proposed OwnershipTransfer, actorInBothGroups, zoneShared bool) error {
	if !zoneShared {
		return ErrOwnershipNonSharedZone
	}
	if current != nil && OwnershipTerminal(current.Status) {
		return ErrOwnershipCancelledCannotUpdate
	}

	if proposed.Status == OwnershipAutoApproved {
		if !actorInBothGroups {
			return ErrOwnershipUserNotInGroup
		}
		return nil
	}

	if current == nil {
		if proposed.Status == OwnershipRequested || proposed.Status == OwnershipPendingReview {
			return nil
		}
		return ErrOwnershipInvalidTransition
	}

	for _, next := range ownershipTransitions[current.Status] {
		if next == proposed.Status {
			return nil
		}
	}
	return ErrOwnershipInvalidTransition
}

// OwnershipTerminal reports whether a transfer status accepts no further
// transitions.
func OwnershipTerminal(s OwnershipStatus) bool {
	switch s {
	case OwnershipManuallyApproved, OwnershipManuallyRejected, OwnershipCancelled, OwnershipAutoApproved:
		return true
	}
	return false
}
