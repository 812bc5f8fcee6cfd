package nftstake

import (
	"errors"
	"fmt"
)

var (
	ErrMaxLocksReached    = errors.New("nftstake: max locks reached")
	ErrFreezePeriodActive = errors.New("nftstake: freeze period active")
	ErrNothingToClaim     = errors.New("nftstake: nothing to claim")
	ErrUnverifiedAsset    = errors.New("nftstake: asset not verified for collection")
	ErrPointsOverflow     = errors.New("nftstake: points balance would overflow")
	ErrInvalidConfig      = errors.New("nftstake: invalid config")

	ErrAlreadyInitialized = errors.New("nftstake: config already initialized")
	ErrNotInitialized     = errors.New("nftstake: config not initialized")
	ErrAlreadyRegistered  = errors.New("nftstake: holder already registered")
	ErrHolderNotFound     = errors.New("nftstake: holder not registered")
	ErrDuplicateLock      = errors.New("nftstake: item already locked")
	ErrLockNotFound       = errors.New("nftstake: lock not found")
	ErrNotOwner           = errors.New("nftstake: caller does not own lock")

	errNilStore   = errors.New("nftstake engine: store not configured")
	errNilCustody = errors.New("nftstake engine: custody not configured")
)

// Class buckets errors by how a caller should react to them.
type Class int

const (
	ClassUnknown Class = iota
	// ClassPolicyViolation errors are user-correctable and never retried.
	ClassPolicyViolation
	// ClassStateConflict errors signal a caller or record precondition failure.
	ClassStateConflict
	// ClassCollaboratorFailure errors come from the custody service.
	ClassCollaboratorFailure
)

func (c Class) String() string {
	switch c {
	case ClassPolicyViolation:
		return "policy_violation"
	case ClassStateConflict:
		return "state_conflict"
	case ClassCollaboratorFailure:
		return "collaborator_failure"
	default:
		return "unknown"
	}
}

var (
	policyErrors = []error{ErrMaxLocksReached, ErrFreezePeriodActive, ErrNothingToClaim, ErrUnverifiedAsset, ErrPointsOverflow, ErrInvalidConfig}
	stateErrors  = []error{ErrAlreadyInitialized, ErrNotInitialized, ErrAlreadyRegistered, ErrHolderNotFound, ErrDuplicateLock, ErrLockNotFound, ErrNotOwner}
)

// Classify reports the class of err.
func Classify(err error) Class {
	if err == nil {
		return ClassUnknown
	}
	var custodyErr *CustodyError
	if errors.As(err, &custodyErr) {
		return ClassCollaboratorFailure
	}
	for _, target := range policyErrors {
		if errors.Is(err, target) {
			return ClassPolicyViolation
		}
	}
	for _, target := range stateErrors {
		if errors.Is(err, target) {
			return ClassStateConflict
		}
	}
	return ClassUnknown
}

// CustodyError wraps a failure reported by the custody service.
type CustodyError struct {
	Op   string
	Item ItemID
	Err  error
}

func (e *CustodyError) Error() string {
	return fmt.Sprintf("nftstake: custody %s %s: %v", e.Op, e.Item, e.Err)
}

func (e *CustodyError) Unwrap() error { return e.Err }

func custodyErr(op string, item ItemID, err error) error {
	return &CustodyError{Op: op, Item: item, Err: err}
}
