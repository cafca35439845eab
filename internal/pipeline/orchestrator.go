package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/s-sasaki-earthsea-wizard/vecr-garage/internal/dedup"
	"github.com/s-sasaki-earthsea-wizard/vecr-garage/internal/events"
	"github.com/s-sasaki-earthsea-wizard/vecr-garage/internal/members"
	"github.com/s-sasaki-earthsea-wizard/vecr-garage/internal/storage"
)

const (
	serviceTypeWebhook = "webhook"

	messageNoEvents   = "No valid events found in webhook payload"
	errorNoEvents     = "No valid events found"
	messageNoNewFiles = "No new files to process (duplicate detection working)"
)

var (
	errMissingStore      = errors.New("pipeline: object store is required")
	errMissingReconciler = errors.New("pipeline: reconciler is required")
)

// OrchestratorConfig describes the dependencies of an Orchestrator.
type OrchestratorConfig struct {
	Store          storage.ObjectStore
	Reconciler     Reconciler
	Cache          dedup.Cache
	DedupEnabled   bool
	TargetPrefixes []dedup.TargetPrefix
	Logger         *zap.Logger
}

// Orchestrator turns storage notifications into member reconciliations.
// It is safe for concurrent use.
type Orchestrator struct {
	store      storage.ObjectStore
	reconciler Reconciler
	filter     *dedup.Filter
	logger     *zap.Logger
}

// Result summarizes one notification.
type Result struct {
	Success        bool      `json:"success"`
	Message        string    `json:"message"`
	ProcessedFiles []string  `json:"processed_files"`
	Errors         []string  `json:"errors"`
	Outcomes       []Outcome `json:"-"`
	NoEvents       bool      `json:"-"`
}

// Status reports the reachability of the collaborators and the cache size.
type Status struct {
	ServiceType          string   `json:"service_type"`
	StorageReachable     bool     `json:"storage_reachable"`
	DatabaseReachable    bool     `json:"database_reachable"`
	ProcessedEventsCount int      `json:"processed_events_count"`
	DedupEnabled         bool     `json:"etag_check_enabled"`
	TargetPrefixes       []string `json:"target_prefixes"`
}

// Healthy reports whether both collaborators are reachable.
func (s Status) Healthy() bool {
	return s.StorageReachable && s.DatabaseReachable
}

// NewOrchestrator validates cfg and constructs an Orchestrator.
func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	if cfg.Reconciler == nil {
		return nil, errMissingReconciler
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cache := cfg.Cache
	if cfg.DedupEnabled && cache == nil {
		cache = dedup.NewMemoryCache(dedup.DefaultCapacity)
	}
	filter, err := dedup.NewFilter(dedup.FilterConfig{
		Cache:          cache,
		DedupEnabled:   cfg.DedupEnabled,
		TargetPrefixes: cfg.TargetPrefixes,
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}
	return &Orchestrator{
		store:      cfg.Store,
		reconciler: cfg.Reconciler,
		filter:     filter,
		logger:     logger,
	}, nil
}

// HandleNotification parses a decoded notification body and processes its events.
func (o *Orchestrator) HandleNotification(ctx context.Context, payload map[string]any) Result {
	o.logger.Info("received storage notification")
	return o.HandleEvents(ctx, events.Parse(payload))
}

// HandleEvents processes every event to completion. Failures are recorded per
// file and never stop the remaining events; cancellation of ctx is ignored.
func (o *Orchestrator) HandleEvents(ctx context.Context, changeEvents []events.ChangeEvent) Result {
	ctx = context.WithoutCancel(ctx)

	if len(changeEvents) == 0 {
		o.logger.Warn(messageNoEvents)
		return Result{
			Success:        false,
			Message:        messageNoEvents,
			ProcessedFiles: []string{},
			Errors:         []string{errorNoEvents},
			NoEvents:       true,
		}
	}
	o.logger.Info("processing change events", zap.Int("count", len(changeEvents)))

	result := Result{
		ProcessedFiles: []string{},
		Errors:         []string{},
		Outcomes:       make([]Outcome, 0, len(changeEvents)),
	}
	type pendingMark struct {
		decision dedup.Decision
		etag     string
	}
	var marks []pendingMark

	for _, event := range changeEvents {
		decision := o.filter.Evaluate(event)
		if !decision.Process {
			result.Outcomes = append(result.Outcomes, skipped(event.ObjectName, string(decision.Reason)))
			continue
		}

		outcome := o.processEvent(ctx, event, decision)
		result.Outcomes = append(result.Outcomes, outcome)
		switch outcome.Status {
		case OutcomeSucceeded:
			result.ProcessedFiles = append(result.ProcessedFiles, event.ObjectName)
			marks = append(marks, pendingMark{decision: decision, etag: event.ETag})
		case OutcomeFailed:
			result.Errors = append(result.Errors, fmt.Sprintf("Failed to process %s: %s", event.ObjectName, outcome.Reason))
			o.logger.Error("failed to process file event",
				zap.String("object", event.ObjectName),
				zap.String("stage", string(outcome.Stage)),
				zap.String("reason", outcome.Reason))
		}
	}

	for _, mark := range marks {
		o.filter.MarkProcessed(mark.decision, mark.etag)
	}

	result.Success = len(result.Errors) == 0
	if len(result.ProcessedFiles) > 0 {
		result.Message = fmt.Sprintf("Processed %d files successfully", len(result.ProcessedFiles))
	} else {
		result.Message = messageNoNewFiles
	}
	if len(result.Errors) > 0 {
		result.Message += fmt.Sprintf(", %d errors occurred", len(result.Errors))
	}
	return result
}

func (o *Orchestrator) processEvent(ctx context.Context, event events.ChangeEvent, decision dedup.Decision) (outcome Outcome) {
	stage := StageFetch
	defer func() {
		if recovered := recover(); recovered != nil {
			outcome = failed(event.ObjectName, decision.Kind, stage, fmt.Errorf("unexpected error: %v", recovered))
		}
	}()

	o.logger.Info("processing file event",
		zap.String("event_name", event.EventName),
		zap.String("object", decision.DecodedKey),
		zap.String("kind", decision.Kind.String()))

	record, failedStage, err := fetchRecord(ctx, o.store, decision.DecodedKey, decision.Kind)
	if err != nil {
		return failed(event.ObjectName, decision.Kind, failedStage, err)
	}

	stage = StageReconcile
	reconciliation, err := o.reconciler.Reconcile(ctx, decision.Kind, record, members.SourceRef{
		URI:         decision.DecodedKey,
		Fingerprint: event.ETag,
	})
	if err != nil {
		return failed(event.ObjectName, decision.Kind, StageReconcile, err)
	}

	o.logger.Info("registered member from file",
		zap.String("object", decision.DecodedKey),
		zap.String("kind", decision.Kind.String()),
		zap.String("member_uuid", reconciliation.Member.UUID),
		zap.String("action", string(reconciliation.Action)))
	return succeeded(event.ObjectName, decision.Kind)
}

// Status probes storage and the database. Probe failures are reported, not returned.
func (o *Orchestrator) Status(ctx context.Context) Status {
	status := Status{
		ServiceType:          serviceTypeWebhook,
		ProcessedEventsCount: o.filter.CacheLen(),
		DedupEnabled:         o.filter.DedupEnabled(),
	}
	for _, prefix := range o.filter.Prefixes() {
		status.TargetPrefixes = append(status.TargetPrefixes, prefix.Prefix)
	}
	if err := o.store.Ping(ctx); err != nil {
		o.logger.Warn("storage unreachable", zap.Error(err))
	} else {
		status.StorageReachable = true
	}
	if err := o.reconciler.Ping(ctx); err != nil {
		o.logger.Warn("database unreachable", zap.Error(err))
	} else {
		status.DatabaseReachable = true
	}
	return status
}
