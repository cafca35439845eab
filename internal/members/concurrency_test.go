package members_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/s-sasaki-earthsea-wizard/vecr-garage/internal/database"
	"github.com/s-sasaki-earthsea-wizard/vecr-garage/internal/members"
)

func TestConcurrentReconcileOfOneFileKeepsSingleRows(t *testing.T) {
	testCases := []struct {
		name    string
		kind    members.Kind
		uri     string
		content string
		member  any
		profile any
	}{
		{
			name:    "human",
			kind:    members.KindHuman,
			uri:     "data/human_members/syota.yml",
			content: "name: Syota\nbio: hello\n",
			member:  &members.HumanMember{},
			profile: &members.HumanMemberProfile{},
		},
		{
			name:    "virtual",
			kind:    members.KindVirtual,
			uri:     "data/virtual_members/rin.yml",
			content: "name: Rin\nllm_model: gpt-4\n",
			member:  &members.VirtualMember{},
			profile: &members.VirtualMemberProfile{},
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			db, err := database.Open(database.Config{
				Driver: database.DriverSQLite,
				Path:   filepath.Join(t.TempDir(), "concurrent.db"),
			}, zap.NewNop())
			if err != nil {
				t.Fatalf("failed to open database: %v", err)
			}
			service, err := members.NewService(members.ServiceConfig{Database: db, IDProvider: members.NewUUIDProvider()})
			if err != nil {
				t.Fatalf("failed to create service: %v", err)
			}
			record, err := members.DecodeRecord([]byte(testCase.content))
			if err != nil {
				t.Fatalf("failed to decode record: %v", err)
			}

			const workers = 8
			var wg sync.WaitGroup
			results := make(chan members.Reconciliation, workers)
			failures := make(chan error, workers)
			for worker := 0; worker < workers; worker++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					result, err := service.Reconcile(context.Background(), testCase.kind, record, members.SourceRef{URI: testCase.uri})
					if err != nil {
						failures <- err
						return
					}
					results <- result
				}()
			}
			wg.Wait()
			close(results)
			close(failures)

			for err := range failures {
				t.Errorf("concurrent reconcile failed: %v", err)
			}
			inserted := 0
			memberUUIDs := make(map[string]struct{})
			for result := range results {
				if result.Action == members.SyncActionInserted {
					inserted++
				}
				memberUUIDs[result.Member.UUID] = struct{}{}
			}
			if inserted != 1 {
				t.Fatalf("expected exactly one inserted result, got %d", inserted)
			}
			if len(memberUUIDs) != 1 {
				t.Fatalf("expected every result to share one member uuid, got %d", len(memberUUIDs))
			}

			var memberRows, profileRows int64
			if err := db.Model(testCase.member).Count(&memberRows).Error; err != nil {
				t.Fatalf("failed to count members: %v", err)
			}
			if err := db.Model(testCase.profile).Count(&profileRows).Error; err != nil {
				t.Fatalf("failed to count profiles: %v", err)
			}
			if memberRows != 1 || profileRows != 1 {
				t.Fatalf("expected one member and one profile row, got %d and %d", memberRows, profileRows)
			}
		})
	}
}
