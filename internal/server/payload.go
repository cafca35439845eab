package server

import (
	"github.com/s-sasaki-earthsea-wizard/vecr-garage/internal/events"
)

const (
	testBucket    = "vecr-storage"
	testObjectKey = "data/human_members/test_human_member.yaml"
	testETag      = "test-etag-123"
)

// testPayload is the canned notification replayed by POST /webhook/test.
func testPayload() map[string]any {
	return map[string]any{
		"Records": []any{
			map[string]any{
				"eventName": events.EventObjectCreatedPut,
				"eventTime": "2024-01-01T00:00:00.000Z",
				"s3": map[string]any{
					"bucket": map[string]any{"name": testBucket},
					"object": map[string]any{
						"key":  testObjectKey,
						"eTag": testETag,
						"size": float64(1024),
					},
				},
			},
		},
	}
}
