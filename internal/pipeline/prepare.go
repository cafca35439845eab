package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/s-sasaki-earthsea-wizard/vecr-garage/internal/members"
	"github.com/s-sasaki-earthsea-wizard/vecr-garage/internal/storage"
)

// Reconciler applies validated records to the database.
type Reconciler interface {
	Reconcile(ctx context.Context, kind members.Kind, record members.Record, source members.SourceRef) (members.Reconciliation, error)
	Ping(ctx context.Context) error
}

// BatchReconciler additionally applies many records in one transaction.
type BatchReconciler interface {
	Reconciler
	ReconcileAll(ctx context.Context, items []members.ReconcileItem) ([]members.Reconciliation, error)
}

// fetchRecord reads, decodes and validates one member file.
func fetchRecord(ctx context.Context, store storage.ObjectStore, key string, kind members.Kind) (members.Record, Stage, error) {
	content, err := store.ReadObject(ctx, key)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, StageFetch, &missingFileError{key: key, cause: err}
	}
	if err != nil {
		return nil, StageFetch, err
	}
	record, err := members.DecodeRecord(content)
	if err != nil {
		return nil, StageDecode, err
	}
	if err := members.Validate(kind, record); err != nil {
		return nil, StageValidate, err
	}
	return record, "", nil
}

type missingFileError struct {
	key   string
	cause error
}

func (e *missingFileError) Error() string {
	return fmt.Sprintf("file not found in storage: %s", e.key)
}

func (e *missingFileError) Unwrap() error {
	return e.cause
}
