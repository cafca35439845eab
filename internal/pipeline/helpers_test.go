package pipeline

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/s-sasaki-earthsea-wizard/vecr-garage/internal/database"
	"github.com/s-sasaki-earthsea-wizard/vecr-garage/internal/events"
	"github.com/s-sasaki-earthsea-wizard/vecr-garage/internal/members"
	"github.com/s-sasaki-earthsea-wizard/vecr-garage/internal/storage/storagetest"
)

type harness struct {
	store        *storagetest.MemoryStore
	service      *members.Service
	database     *gorm.DB
	orchestrator *Orchestrator
}

func newService(t *testing.T) (*members.Service, *gorm.DB) {
	t.Helper()
	db, err := database.Open(database.Config{
		Driver: database.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "pipeline.db"),
	}, zap.NewNop())
	require.NoError(t, err)

	start := time.Unix(1700000000, 0).UTC()
	tick := 0
	service, err := members.NewService(members.ServiceConfig{
		Database: db,
		Clock: func() time.Time {
			tick++
			return start.Add(time.Duration(tick) * time.Second)
		},
		IDProvider: members.NewUUIDProvider(),
	})
	require.NoError(t, err)
	return service, db
}

func newHarness(t *testing.T, dedupEnabled bool) *harness {
	t.Helper()
	service, db := newService(t)
	store := storagetest.NewMemoryStore()
	orchestrator, err := NewOrchestrator(OrchestratorConfig{
		Store:        store,
		Reconciler:   service,
		DedupEnabled: dedupEnabled,
	})
	require.NoError(t, err)
	return &harness{store: store, service: service, database: db, orchestrator: orchestrator}
}

func recordsPayload(entries ...events.ChangeEvent) map[string]any {
	records := make([]any, 0, len(entries))
	for _, entry := range entries {
		records = append(records, map[string]any{
			"eventName": entry.EventName,
			"eventTime": "2025-01-01T00:00:00.000Z",
			"s3": map[string]any{
				"bucket": map[string]any{"name": "vecr-storage"},
				"object": map[string]any{
					"key":  entry.ObjectName,
					"eTag": `"` + entry.ETag + `"`,
					"size": float64(entry.Size),
				},
			},
		})
	}
	return map[string]any{"Records": records}
}

func putEvent(key, etag string) events.ChangeEvent {
	return events.ChangeEvent{EventName: events.EventObjectCreatedPut, ObjectName: key, ETag: etag}
}

type panickingReconciler struct {
	Reconciler
	calls int
}

func (p *panickingReconciler) Reconcile(ctx context.Context, kind members.Kind, record members.Record, source members.SourceRef) (members.Reconciliation, error) {
	p.calls++
	if p.calls == 1 {
		panic("reconciler exploded")
	}
	return p.Reconciler.Reconcile(ctx, kind, record, source)
}

type failingBatchReconciler struct {
	BatchReconciler
	err error
}

func (f *failingBatchReconciler) ReconcileAll(context.Context, []members.ReconcileItem) ([]members.Reconciliation, error) {
	return nil, f.err
}
