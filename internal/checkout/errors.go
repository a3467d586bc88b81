package checkout

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Every checkout failure matches exactly one of them with
// errors.Is.
var (
	ErrInvalidRequest    = errors.New("invalid checkout request")
	ErrProductNotFound   = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrPersistence       = errors.New("persistence failure")
	ErrIdentityConflict  = errors.New("identity conflict")
)

// NoLine marks an Error that is not tied to a request line.
const NoLine = -1

// Error describes why a checkout attempt aborted. Line is the index of the
// offending request line or NoLine.
type Error struct {
	Kind        error
	Line        int
	ProductID   int64
	ProductName string
	Available   int
	Err         error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Line != NoLine {
		fmt.Fprintf(&b, ": line %d", e.Line)
	}
	if e.ProductID != 0 {
		fmt.Fprintf(&b, ": product %d", e.ProductID)
		if e.ProductName != "" {
			fmt.Fprintf(&b, " (%s)", e.ProductName)
		}
	}
	if errors.Is(e.Kind, ErrInsufficientStock) {
		fmt.Fprintf(&b, ": %d available", e.Available)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func invalid(line int, format string, args ...any) *Error {
	return &Error{Kind: ErrInvalidRequest, Line: line, Err: fmt.Errorf(format, args...)}
}

// Outcome labels a checkout result for metrics and logs.
func Outcome(res *Result, err error) string {
	switch {
	case err == nil && res != nil && res.Replayed:
		return "replayed"
	case err == nil:
		return "committed"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrProductNotFound):
		return "product_not_found"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrIdentityConflict):
		return "identity_conflict"
	default:
		return "persistence_failure"
	}
}
