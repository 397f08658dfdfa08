package domain

import "fmt"

// ValidationCode classifies a ValidationError.
type ValidationCode string

const (
	ErrInvalidAddress ValidationCode = "invalid_address"
	ErrInvalidHash    ValidationCode = "invalid_hash"
	ErrInvalidAmount  ValidationCode = "invalid_amount"
	ErrUnknownNetwork ValidationCode = "unknown_network"
	ErrMissingField   ValidationCode = "missing_field"
	ErrInvalidStatus  ValidationCode = "invalid_status"
	ErrInvalidType    ValidationCode = "invalid_type"
)

// ValidationError reports malformed input. It is always caller-correctable
// and never retried internally.
type ValidationError struct {
	Code  ValidationCode
	Field string // which input field, when known
	Value string // offending value, when safe to echo
}

func (e *ValidationError) Error() string {
	switch {
	case e.Field != "" && e.Value != "":
		return fmt.Sprintf("validation failed (%s): field %q, value %q", e.Code, e.Field, e.Value)
	case e.Field != "":
		return fmt.Sprintf("validation failed (%s): field %q", e.Code, e.Field)
	case e.Value != "":
		return fmt.Sprintf("validation failed (%s): value %q", e.Code, e.Value)
	}
	return fmt.Sprintf("validation failed (%s)", e.Code)
}

// AlreadyExistsError reports a duplicate transaction hash on ingestion.
// Expected under concurrent duplicate submission, not an anomaly.
type AlreadyExistsError struct {
	Hash string
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("transaction %s already recorded", e.Hash)
}

// NotFoundError reports that an operation targeted a wallet, sheet or
// transaction that does not exist.
type NotFoundError struct {
	Kind string // "wallet", "sheet", "transaction"
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.Key)
}

// OutOfOrderUpdateError reports a confirmation-count regression.
type OutOfOrderUpdateError struct {
	Hash     string
	Current  uint64
	Proposed uint64
}

func (e *OutOfOrderUpdateError) Error() string {
	return fmt.Sprintf(
		"out-of-order confirmation update for %s: have %d, got %d",
		e.Hash, e.Current, e.Proposed,
	)
}

// InvalidTransitionError reports an illegal status transition.
type InvalidTransitionError struct {
	Hash string
	From TxStatus
	To   TxStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("illegal status transition for %s: %s -> %s", e.Hash, e.From, e.To)
}
