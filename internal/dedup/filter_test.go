package dedup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s-sasaki-earthsea-wizard/vecr-garage/internal/events"
	"github.com/s-sasaki-earthsea-wizard/vecr-garage/internal/members"
)

func newTestFilter(t *testing.T, dedupEnabled bool) (*Filter, *MemoryCache) {
	t.Helper()
	cache := NewMemoryCache(10)
	filter, err := NewFilter(FilterConfig{Cache: cache, DedupEnabled: dedupEnabled})
	require.NoError(t, err)
	return filter, cache
}

func putEvent(key, etag string) events.ChangeEvent {
	return events.ChangeEvent{
		EventName:  events.EventObjectCreatedPut,
		BucketName: "vecr-storage",
		ObjectName: key,
		ETag:       etag,
	}
}

func TestEvaluate_AcceptsTargetYAML(t *testing.T) {
	filter, _ := newTestFilter(t, true)

	decision := filter.Evaluate(putEvent("data/samples/human_members/rin.yml", "e1"))
	assert.True(t, decision.Process)
	assert.Equal(t, members.KindHuman, decision.Kind)
	assert.Equal(t, "data/samples/human_members/rin.yml:e1", decision.DedupKey)

	decision = filter.Evaluate(putEvent("data/virtual_members/rin.yaml", "e2"))
	assert.True(t, decision.Process)
	assert.Equal(t, members.KindVirtual, decision.Kind)
}

func TestEvaluate_RejectsRemovalRegardlessOfPath(t *testing.T) {
	filter, _ := newTestFilter(t, true)
	event := putEvent("data/samples/human_members/rin.yml", "e1")
	event.EventName = events.EventObjectRemovedDelete

	decision := filter.Evaluate(event)
	assert.False(t, decision.Process)
	assert.Equal(t, ReasonNonCreation, decision.Reason)
	assert.False(t, filter.ShouldProcess(event))
}

func TestEvaluate_RejectsNonYAML(t *testing.T) {
	filter, _ := newTestFilter(t, true)
	decision := filter.Evaluate(putEvent("data/samples/human_members/rin.json", "e1"))
	assert.False(t, decision.Process)
	assert.Equal(t, ReasonNonYAML, decision.Reason)
}

func TestEvaluate_RejectsOutsideTargets(t *testing.T) {
	filter, _ := newTestFilter(t, true)
	decision := filter.Evaluate(putEvent("data/other/rin.yml", "e1"))
	assert.False(t, decision.Process)
	assert.Equal(t, ReasonOutsideTargets, decision.Reason)
}

func TestEvaluate_DecodesPercentEncodedKeys(t *testing.T) {
	filter, _ := newTestFilter(t, true)
	decision := filter.Evaluate(putEvent("data/samples/human_members/%E3%82%8A%E3%82%93.yml", "e1"))
	require.True(t, decision.Process)
	assert.Equal(t, "data/samples/human_members/りん.yml", decision.DecodedKey)
}

func TestEvaluate_KeepsLiteralKeysAsGiven(t *testing.T) {
	filter, _ := newTestFilter(t, true)
	event := putEvent("data/human_members/100%25 rin.yml", "e1")
	event.KeyDecoded = true

	decision := filter.Evaluate(event)
	assert.True(t, decision.Process)
	assert.Equal(t, "data/human_members/100%25 rin.yml", decision.DecodedKey)
	assert.Equal(t, "data/human_members/100%25 rin.yml:e1", decision.DedupKey)
}

func TestDecodeObjectKey_FallsBackOnInvalidEncoding(t *testing.T) {
	assert.Equal(t, "data/human_members/100%.yml", DecodeObjectKey("data/human_members/100%.yml"))
	assert.Equal(t, "a+b.yml", DecodeObjectKey("a+b.yml"))
}

func TestEvaluate_SkipsDuplicatesOnlyWhenEnabled(t *testing.T) {
	filter, _ := newTestFilter(t, true)
	event := putEvent("data/samples/human_members/rin.yml", "e1")
	decision := filter.Evaluate(event)
	require.True(t, decision.Process)
	filter.MarkProcessed(decision, event.ETag)

	again := filter.Evaluate(event)
	assert.False(t, again.Process)
	assert.Equal(t, ReasonDuplicate, again.Reason)

	changed := filter.Evaluate(putEvent("data/samples/human_members/rin.yml", "e2"))
	assert.True(t, changed.Process)

	disabled, cache := newTestFilter(t, false)
	disabled.MarkProcessed(decision, event.ETag)
	assert.Zero(t, cache.Len())
	assert.True(t, disabled.ShouldProcess(event))
}

func TestNewFilter_RequiresCacheWhenEnabled(t *testing.T) {
	_, err := NewFilter(FilterConfig{DedupEnabled: true})
	assert.Error(t, err)

	filter, err := NewFilter(FilterConfig{DedupEnabled: false})
	require.NoError(t, err)
	assert.Zero(t, filter.CacheLen())
	assert.Len(t, filter.Prefixes(), len(DefaultTargetPrefixes()))
}

func TestParseTargetPrefixes(t *testing.T) {
	prefixes, err := ParseTargetPrefixes([]string{"data/custom/human_members", " data/custom/virtual_members/ ", ""})
	require.NoError(t, err)
	assert.Equal(t, []TargetPrefix{
		{Prefix: "data/custom/human_members/", Kind: members.KindHuman},
		{Prefix: "data/custom/virtual_members/", Kind: members.KindVirtual},
	}, prefixes)

	_, err = ParseTargetPrefixes([]string{"data/robots/"})
	assert.Error(t, err)
}
