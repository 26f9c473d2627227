package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a validation failure independently of transport codes.
type ErrorKind string

const (
	// Input validation (hard).
	ErrMissingField           ErrorKind = "MissingField"
	ErrInvalidRecordType      ErrorKind = "InvalidRecordType"
	ErrInvalidIPv4            ErrorKind = "InvalidIPv4"
	ErrInvalidIPv6            ErrorKind = "InvalidIPv6"
	ErrInvalidDomainName      ErrorKind = "InvalidDomainName"
	ErrInvalidTTL             ErrorKind = "InvalidTTL"
	ErrInvalidCnameForIP      ErrorKind = "InvalidCnameForIP"
	ErrCnameTooLong           ErrorKind = "CnameTooLong"
	ErrPtrTooLong             ErrorKind = "PtrTooLong"
	ErrMxPreferenceOutOfRange ErrorKind = "MxPreferenceOutOfRange"
	ErrDigestNotHex           ErrorKind = "DigestNotHex"
	ErrUnknownAlgorithm       ErrorKind = "UnknownAlgorithm"
	ErrUnknownDigestType      ErrorKind = "UnknownDigestType"
	ErrNotApprovedNameServer  ErrorKind = "NotApprovedNameServer"

	// Structural (hard).
	ErrChangeLimitExceeded            ErrorKind = "ChangeLimitExceeded"
	ErrEmptyBatch                     ErrorKind = "EmptyBatch"
	ErrCnameCannotBeApex              ErrorKind = "CnameCannotBeApex"
	ErrCnameCannotHaveMultipleRecords ErrorKind = "CnameCannotHaveMultipleRecords"

	// Zone / reverse zone (hard).
	ErrInvalidRecordTypeInReverseZone ErrorKind = "InvalidRecordTypeInReverseZone"
	ErrReverseZoneCidrMismatch        ErrorKind = "ReverseZoneCidrMismatch"

	// Discovery (soft).
	ErrZoneDiscoveryFailed ErrorKind = "ZoneDiscoveryFailed"

	// Context.
	ErrRecordAlreadyExists        ErrorKind = "RecordAlreadyExists"
	ErrRecordDoesNotExist         ErrorKind = "RecordDoesNotExist"
	ErrCNAMEConflict              ErrorKind = "CNAMEConflict"
	ErrRecordNameNotUniqueInBatch ErrorKind = "RecordNameNotUniqueInBatch"
	ErrNotAuthorized              ErrorKind = "NotAuthorized"
	ErrHighValueDomain            ErrorKind = "HighValueDomain"
	ErrDottedHostNotAllowed       ErrorKind = "DottedHostNotAllowed"
	ErrOwnerGroupRequired         ErrorKind = "OwnerGroupRequired"

	// Review (soft).
	ErrRecordRequiresManualReview ErrorKind = "RecordRequiresManualReview"

	// Execution (per change).
	ErrBackendUnsynced ErrorKind = "BackendUnsynced"
	ErrBackendRejected ErrorKind = "BackendRejected"
)

// Soft reports whether the kind is eligible for manual review instead of
// hard rejection.
func (k ErrorKind) Soft() bool {
	return k == ErrZoneDiscoveryFailed || k == ErrRecordRequiresManualReview
}

// ChangeError is a single validation diagnostic attached to a change. The
// message strings are stable and user-visible.
type ChangeError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e ChangeError) Error() string { return e.Message }

// NewChangeError builds a diagnostic with a formatted message.
func NewChangeError(kind ErrorKind, format string, args ...interface{}) ChangeError {
	return ChangeError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// MsgRecordDoesNotExist annotates a DeleteRecordSet that found nothing to
// delete and completed as a no-op.
const MsgRecordDoesNotExist = "This record does not exist. No further action is required."

// HighValueDomainError is the pinned diagnostic for changes to protected names.
func HighValueDomainError(fqdn string) ChangeError {
	return NewChangeError(ErrHighValueDomain,
		"Record name %q is configured as a High Value Domain, so it cannot be modified.", fqdn)
}

// SharedZoneOwnerRequiredError is the pinned diagnostic for a change into a
// shared zone submitted without a batch owner group.
func SharedZoneOwnerRequiredError(zoneName, recordName string) ChangeError {
	return NewChangeError(ErrOwnerGroupRequired,
		"Zone %q is a shared zone, so owner group ID must be specified for record %q.", zoneName, recordName)
}

// NotAuthorizedError carries the contact information of the current owner.
func NotAuthorizedError(userName, ownerName, ownerEmail string) ChangeError {
	return NewChangeError(ErrNotAuthorized,
		"User %q is not authorized. Contact owner group %q at %s to make DNS changes.",
		userName, ownerName, ownerEmail)
}

// ZoneDiscoveryError flags an input name that matched no managed zone.
func ZoneDiscoveryError(inputName string) ChangeError {
	return NewChangeError(ErrZoneDiscoveryFailed,
		"Zone Discovery Failed: zone for %q does not exist in this system.", inputName)
}

// RecordAlreadyExistsError flags an Add over an existing record set.
func RecordAlreadyExistsError(fqdn string) ChangeError {
	return NewChangeError(ErrRecordAlreadyExists,
		"Record %q Already Exists: cannot add an existing record; to update it, delete the record and add it again.", fqdn)
}

// CNAMEConflictError flags a name collision with a CNAME record set.
func CNAMEConflictError(fqdn string) ChangeError {
	return NewChangeError(ErrCNAMEConflict,
		"CNAME Conflict: CNAME record names must be unique. Existing record with name %q and another type conflicts with this record.", fqdn)
}

// RecordNameNotUniqueError flags duplicate names within one batch.
func RecordNameNotUniqueError(fqdn string, t RecordType) ChangeError {
	return NewChangeError(ErrRecordNameNotUniqueInBatch,
		"Record Name %q Not Unique In Batch Change: cannot have multiple %q records with the same name.", fqdn, string(t))
}

// ManualReviewRequiredError flags a name on the manual-review list.
func ManualReviewRequiredError(fqdn string) ChangeError {
	return NewChangeError(ErrRecordRequiresManualReview,
		"Record name %q requires manual review.", fqdn)
}

// Ownership-transfer failures surface as plain errors from the state machine.
var (
	ErrOwnershipCancelledCannotUpdate = errors.New("Cannot update RecordSet OwnerShip Status when request is cancelled.")
	ErrOwnershipInvalidTransition     = errors.New("invalid ownership transfer status transition")
	ErrOwnershipUserNotInGroup        = errors.New("user is not a member of the requested owner group")
	ErrOwnershipNonSharedZone         = errors.New("ownership transfer requires a shared zone")
)

// Service-level sentinel errors mapped to transport codes by the API layer.
var (
	ErrNotFound      = errors.New("not found")
	ErrForbidden     = errors.New("forbidden")
	ErrConflict      = errors.New("already exists")
	ErrInvalidState  = errors.New("operation not valid in current state")
	ErrUnprocessable = errors.New("unprocessable")
	ErrBatchTooLarge = errors.New("batch change exceeds the configured change limit")
)
