package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/s-sasaki-earthsea-wizard/vecr-garage/internal/dedup"
	"github.com/s-sasaki-earthsea-wizard/vecr-garage/internal/members"
	"github.com/s-sasaki-earthsea-wizard/vecr-garage/internal/storage"
)

// Mode selects the failure contract of a batch registration.
type Mode string

const (
	// ModeAtomic validates every file first and commits all of them in one transaction or none.
	ModeAtomic Mode = "atomic"
	// ModeIndependent registers each file on its own and continues past failures.
	ModeIndependent Mode = "independent"
)

// ErrInvalidMode indicates a missing or unsupported registration mode.
var ErrInvalidMode = errors.New("pipeline: registration mode must be atomic or independent")

// ParseMode normalizes raw input into a Mode. There is no default.
func ParseMode(rawInput string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(rawInput))) {
	case ModeAtomic:
		return ModeAtomic, nil
	case ModeIndependent:
		return ModeIndependent, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, rawInput)
	}
}

// BatchError reports why an atomic registration wrote nothing.
type BatchError struct {
	Failures []FileFailure
	Err      error
}

func (e *BatchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("batch registration rolled back: %v", e.Err)
	}
	parts := make([]string, 0, len(e.Failures))
	for _, failure := range e.Failures {
		parts = append(parts, failure.String())
	}
	return fmt.Sprintf("batch registration aborted, %d file(s) failed: %s", len(e.Failures), strings.Join(parts, "; "))
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

// RegistrarConfig describes the dependencies of a Registrar.
type RegistrarConfig struct {
	Store          storage.ObjectStore
	Reconciler     BatchReconciler
	TargetPrefixes []dedup.TargetPrefix
	Logger         *zap.Logger
}

// Registrar registers every member file found under the target prefixes.
type Registrar struct {
	store      storage.ObjectStore
	reconciler BatchReconciler
	prefixes   []dedup.TargetPrefix
	logger     *zap.Logger
}

// RegisterRequest selects the kinds to register and the failure contract.
type RegisterRequest struct {
	Kinds []members.Kind
	Mode  Mode
}

// RegisterReport lists the registered keys and, in independent mode, the failures.
type RegisterReport struct {
	Mode       Mode          `json:"mode"`
	Registered []string      `json:"registered"`
	Failures   []FileFailure `json:"-"`
	Errors     []string      `json:"errors"`
}

// NewRegistrar validates cfg and constructs a Registrar.
func NewRegistrar(cfg RegistrarConfig) (*Registrar, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	if cfg.Reconciler == nil {
		return nil, errMissingReconciler
	}
	prefixes := cfg.TargetPrefixes
	if len(prefixes) == 0 {
		prefixes = dedup.DefaultTargetPrefixes()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registrar{
		store:      cfg.Store,
		reconciler: cfg.Reconciler,
		prefixes:   prefixes,
		logger:     logger,
	}, nil
}

type listedFile struct {
	key  string
	etag string
	kind members.Kind
}

// Register lists and registers member files. In ModeAtomic any failure returns
// a *BatchError and leaves the database untouched; in ModeIndependent
// failures are collected in the report and the error is nil.
func (r *Registrar) Register(ctx context.Context, request RegisterRequest) (RegisterReport, error) {
	mode, err := ParseMode(string(request.Mode))
	if err != nil {
		return RegisterReport{}, err
	}
	kinds := request.Kinds
	if len(kinds) == 0 {
		kinds = members.AllKinds()
	}
	for _, kind := range kinds {
		if !kind.Valid() {
			return RegisterReport{}, fmt.Errorf("%w: %q", members.ErrInvalidKind, kind)
		}
	}

	files, err := r.listFiles(ctx, kinds)
	if err != nil {
		return RegisterReport{}, err
	}
	r.logger.Info("batch registration started", zap.String("mode", string(mode)), zap.Int("files", len(files)))

	report := RegisterReport{Mode: mode, Registered: []string{}, Errors: []string{}}
	if mode == ModeAtomic {
		return r.registerAtomic(ctx, files, report)
	}
	return r.registerIndependent(ctx, files, report), nil
}

func (r *Registrar) registerAtomic(ctx context.Context, files []listedFile, report RegisterReport) (RegisterReport, error) {
	items := make([]members.ReconcileItem, 0, len(files))
	for _, file := range files {
		record, stage, err := fetchRecord(ctx, r.store, file.key, file.kind)
		if err != nil {
			report.addFailure(FileFailure{Key: file.key, Kind: file.kind, Stage: stage, Err: err})
			continue
		}
		items = append(items, members.ReconcileItem{
			Kind:   file.kind,
			Record: record,
			Source: members.SourceRef{URI: file.key, Fingerprint: file.etag},
		})
	}
	if len(report.Failures) > 0 {
		r.logger.Error("batch registration aborted before writing", zap.Int("failures", len(report.Failures)))
		return report, &BatchError{Failures: report.Failures}
	}

	if _, err := r.reconciler.ReconcileAll(ctx, items); err != nil {
		r.logger.Error("batch registration rolled back", zap.Error(err))
		return report, &BatchError{Err: err}
	}
	for _, item := range items {
		report.Registered = append(report.Registered, item.Source.URI)
	}
	r.logger.Info("batch registration committed", zap.Int("registered", len(report.Registered)))
	return report, nil
}

func (r *Registrar) registerIndependent(ctx context.Context, files []listedFile, report RegisterReport) RegisterReport {
	for _, file := range files {
		record, stage, err := fetchRecord(ctx, r.store, file.key, file.kind)
		if err != nil {
			report.addFailure(FileFailure{Key: file.key, Kind: file.kind, Stage: stage, Err: err})
			continue
		}
		_, err = r.reconciler.Reconcile(ctx, file.kind, record, members.SourceRef{URI: file.key, Fingerprint: file.etag})
		if err != nil {
			report.addFailure(FileFailure{Key: file.key, Kind: file.kind, Stage: StageReconcile, Err: err})
			continue
		}
		report.Registered = append(report.Registered, file.key)
	}
	r.logger.Info("independent registration finished",
		zap.Int("registered", len(report.Registered)),
		zap.Int("failures", len(report.Failures)))
	return report
}

func (r *Registrar) listFiles(ctx context.Context, kinds []members.Kind) ([]listedFile, error) {
	wanted := make(map[members.Kind]bool, len(kinds))
	for _, kind := range kinds {
		wanted[kind] = true
	}
	seen := make(map[string]bool)
	var files []listedFile
	for _, prefix := range r.prefixes {
		if !wanted[prefix.Kind] {
			continue
		}
		listed, err := storage.ListYAML(ctx, r.store, prefix.Prefix)
		if err != nil {
			return nil, fmt.Errorf("pipeline: list %s: %w", prefix.Prefix, err)
		}
		for _, object := range listed {
			if seen[object.Key] {
				continue
			}
			seen[object.Key] = true
			files = append(files, listedFile{key: object.Key, etag: object.ETag, kind: prefix.Kind})
		}
	}
	return files, nil
}

func (report *RegisterReport) addFailure(failure FileFailure) {
	report.Failures = append(report.Failures, failure)
	report.Errors = append(report.Errors, failure.String())
}
