package events

import "strings"

// Storage notification event names that announce a new or replaced object.
const (
	EventObjectCreatedPut       = "s3:ObjectCreated:Put"
	EventObjectCreatedPost      = "s3:ObjectCreated:Post"
	EventObjectCreatedMultipart = "s3:ObjectCreated:CompleteMultipartUpload"
	EventObjectCreatedCopy      = "s3:ObjectCreated:Copy"
	EventObjectRemovedDelete    = "s3:ObjectRemoved:Delete"
)

var creationEvents = map[string]struct{}{
	EventObjectCreatedPut:       {},
	EventObjectCreatedPost:      {},
	EventObjectCreatedMultipart: {},
	EventObjectCreatedCopy:      {},
}

// ChangeEvent is one normalized storage notification entry.
type ChangeEvent struct {
	EventName  string `json:"event_name"`
	BucketName string `json:"bucket_name"`
	ObjectName string `json:"object_name"`
	ETag       string `json:"etag"`
	Size       int64  `json:"size"`
	EventTime  string `json:"event_time"`
	// KeyDecoded marks ObjectName as a literal key, as produced by the
	// poller and the filesystem watcher, that must not be decoded again.
	KeyDecoded bool `json:"-"`
}

// IsCreation reports whether the event announces object creation.
func (e ChangeEvent) IsCreation() bool {
	_, ok := creationEvents[e.EventName]
	return ok
}

// NormalizeETag strips the surrounding double quotes storage providers put around ETags.
func NormalizeETag(value string) string {
	return strings.Trim(strings.TrimSpace(value), `"`)
}
