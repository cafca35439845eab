package members

import (
	"errors"
	"fmt"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingSourceURI  = errors.New("source uri is required")

	// ErrMemberNotFound indicates that no member row is backed by the requested source uri.
	ErrMemberNotFound = errors.New("members: member not found")
)

const (
	opServiceNew     = "members.service.new"
	opReconcile      = "members.reconcile"
	opReconcileAll   = "members.reconcile_all"
	opUpsertMember   = "members.upsert_member"
	opUpsertProfile  = "members.upsert_profile"
	opRecordAudit    = "members.record_audit"
	opGetByURI       = "members.get_by_uri"
	opCount          = "members.count"
	opPing           = "members.ping"
	reasonMissingDB  = "missing_database"
	reasonInvalidArg = "invalid_argument"
	reasonIDFailed   = "id_generation_failed"
	reasonQuery      = "query_failed"
	reasonUpsert     = "upsert_failed"
	reasonReload     = "reload_failed"
	reasonInsert     = "insert_failed"
)

// ServiceError reports a misuse or configuration problem of the member service.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the "operation.reason" identifier of the failure.
func (e *ServiceError) Code() string {
	return e.code
}

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// DatabaseError wraps a failure raised by the relational store. The enclosing
// transaction is rolled back whenever one is returned.
type DatabaseError struct {
	Operation string
	Reason    string
	Err       error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("database error during %s (%s): %v", e.Operation, e.Reason, e.Err)
}

func (e *DatabaseError) Unwrap() error {
	return e.Err
}

// Code returns the "operation.reason" identifier of the failure.
func (e *DatabaseError) Code() string {
	return fmt.Sprintf("%s.%s", e.Operation, e.Reason)
}

func newDatabaseError(operation, reason string, cause error) error {
	return &DatabaseError{Operation: operation, Reason: reason, Err: cause}
}
