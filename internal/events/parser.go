package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
)

var errNotObject = errors.New("events: payload is not a json object")

const (
	keyRecords    = "Records"
	keyEvents     = "events"
	keyEventName  = "event_name"
	keyObjectName = "object_name"
)

// Parse normalizes a decoded notification body into change events. It accepts
// a provider notification with a Records array, a custom events array of flat
// objects, or a single flat object. Unknown shapes and malformed entries
// contribute no events.
func Parse(payload map[string]any) []ChangeEvent {
	if payload == nil {
		return nil
	}
	if rawRecords, ok := payload[keyRecords]; ok {
		return parseRecords(rawRecords)
	}
	if rawEvents, ok := payload[keyEvents]; ok {
		return parseFlatList(rawEvents)
	}
	if _, ok := payload[keyEventName]; ok {
		if event, ok := parseFlat(payload); ok {
			return []ChangeEvent{event}
		}
	}
	return nil
}

// ParseJSON decodes body as a JSON object and parses it. Bodies that are not a
// JSON object yield no events.
func ParseJSON(body []byte) []ChangeEvent {
	payload, err := DecodePayload(body)
	if err != nil {
		return nil
	}
	return Parse(payload)
}

// DecodePayload decodes a JSON object body, keeping numbers exact.
func DecodePayload(body []byte) (map[string]any, error) {
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	var payload map[string]any
	if err := decoder.Decode(&payload); err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, errNotObject
	}
	return payload, nil
}

func parseRecords(raw any) []ChangeEvent {
	records, ok := raw.([]any)
	if !ok {
		return nil
	}
	var parsed []ChangeEvent
	for _, item := range records {
		record, ok := item.(map[string]any)
		if !ok {
			continue
		}
		s3, ok := record["s3"].(map[string]any)
		if !ok {
			continue
		}
		bucket, _ := s3["bucket"].(map[string]any)
		object, _ := s3["object"].(map[string]any)
		if bucket == nil || object == nil {
			continue
		}
		bucketName, hasBucket := stringField(bucket, "name")
		objectKey, hasKey := stringField(object, "key")
		if !hasBucket || !hasKey || objectKey == "" {
			continue
		}
		eventName, _ := stringField(record, "eventName")
		etag, _ := stringField(object, "eTag")
		eventTime, _ := stringField(record, "eventTime")
		parsed = append(parsed, ChangeEvent{
			EventName:  eventName,
			BucketName: bucketName,
			ObjectName: objectKey,
			ETag:       NormalizeETag(etag),
			Size:       intField(object, "size"),
			EventTime:  eventTime,
		})
	}
	return parsed
}

func parseFlatList(raw any) []ChangeEvent {
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	var parsed []ChangeEvent
	for _, item := range items {
		flat, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if event, ok := parseFlat(flat); ok {
			parsed = append(parsed, event)
		}
	}
	return parsed
}

func parseFlat(flat map[string]any) (ChangeEvent, bool) {
	eventName, hasName := stringField(flat, keyEventName)
	objectName, hasObject := stringField(flat, keyObjectName)
	if !hasName || !hasObject || objectName == "" {
		return ChangeEvent{}, false
	}
	bucketName, _ := stringField(flat, "bucket_name")
	etag, _ := stringField(flat, "etag")
	eventTime, _ := stringField(flat, "event_time")
	return ChangeEvent{
		EventName:  eventName,
		BucketName: bucketName,
		ObjectName: objectName,
		ETag:       NormalizeETag(etag),
		Size:       intField(flat, "size"),
		EventTime:  eventTime,
	}, true
}

func stringField(source map[string]any, key string) (string, bool) {
	value, ok := source[key]
	if !ok || value == nil {
		return "", false
	}
	switch typed := value.(type) {
	case string:
		return typed, true
	case json.Number:
		return typed.String(), true
	default:
		return "", false
	}
}

func intField(source map[string]any, key string) int64 {
	switch typed := source[key].(type) {
	case json.Number:
		if value, err := typed.Int64(); err == nil {
			return value
		}
		if value, err := typed.Float64(); err == nil {
			return int64(math.Trunc(value))
		}
	case float64:
		return int64(math.Trunc(typed))
	case int:
		return int64(typed)
	case int64:
		return typed
	case string:
		if value, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64); err == nil {
			return value
		}
	}
	return 0
}
