package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrMissingResultToken is returned before any resource is evaluated when
	// the configured sink needs a result token and the event carries none.
	ErrMissingResultToken = errors.New("result token is required to report evaluations")

	// ErrCredentialExpired means the run outlived its session credential.
	// The invoker must re-trigger the run; reports are never sent with a
	// stale session.
	ErrCredentialExpired = errors.New("session credential expired during run")

	// ErrInvalidEvent wraps every envelope decoding or validation failure.
	ErrInvalidEvent = errors.New("invalid invocation event")
)

// DelegationError reports a failed role assumption. It is fatal to the run.
type DelegationError struct {
	RoleARN string
	Region  string
	Err     error
}

func (e *DelegationError) Error() string {
	return fmt.Sprintf("assume role %q in %s: %v", e.RoleARN, e.Region, e.Err)
}

func (e *DelegationError) Unwrap() error { return e.Err }

// NotFoundError reports a resource that disappeared between listing and
// describing. The engine skips the resource and continues.
type NotFoundError struct {
	ResourceType ResourceType
	ResourceID   string
	Err          error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found: %v", e.ResourceType, e.ResourceID, e.Err)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// ReportError reports a record the sink rejected or could not receive.
// It is isolated to that record; the run continues.
type ReportError struct {
	ResourceType ResourceType
	ResourceID   string
	Err          error
}

func (e *ReportError) Error() string {
	return fmt.Sprintf("report evaluation for %s %s: %v", e.ResourceType, e.ResourceID, e.Err)
}

func (e *ReportError) Unwrap() error { return e.Err }

// AttributeError reports attributes an enumerator could not read while the
// rest of the resource was described. The attributes that were read are
// returned alongside it, so a rule that does not depend on the failed ones
// can still be evaluated.
type AttributeError struct {
	ResourceType ResourceType
	ResourceID   string
	Failed       map[string]error
}

// Attributes returns the failed attribute keys in sorted order.
func (e *AttributeError) Attributes() []string {
	keys := make([]string, 0, len(e.Failed))
	for k := range e.Failed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (e *AttributeError) Error() string {
	parts := make([]string, 0, len(e.Failed))
	for _, k := range e.Attributes() {
		parts = append(parts, fmt.Sprintf("%s: %v", k, e.Failed[k]))
	}
	return fmt.Sprintf("describe %s %s: %s", e.ResourceType, e.ResourceID, strings.Join(parts, "; "))
}

func (e *AttributeError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed))
	for _, k := range e.Attributes() {
		errs = append(errs, e.Failed[k])
	}
	return errs
}
