package dedup

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/s-sasaki-earthsea-wizard/vecr-garage/internal/events"
	"github.com/s-sasaki-earthsea-wizard/vecr-garage/internal/members"
	"go.uber.org/zap"
)

// Reason explains why an event was skipped.
type Reason string

const (
	ReasonDuplicate      Reason = "duplicate"
	ReasonNonCreation    Reason = "non_creation_event"
	ReasonNonYAML        Reason = "non_yaml"
	ReasonOutsideTargets Reason = "outside_target_dirs"
)

var yamlSuffixes = []string{".yaml", ".yml"}

var (
	errMissingCache     = errors.New("dedup: cache is required when dedup is enabled")
	errUnresolvedPrefix = errors.New("dedup: cannot resolve member kind for prefix")
)

// TargetPrefix is a watched directory and the member kind stored under it.
type TargetPrefix struct {
	Prefix string
	Kind   members.Kind
}

// DefaultTargetPrefixes returns the samples, test_cases and legacy flat layouts for both kinds.
func DefaultTargetPrefixes() []TargetPrefix {
	return []TargetPrefix{
		{Prefix: "data/samples/human_members/", Kind: members.KindHuman},
		{Prefix: "data/samples/virtual_members/", Kind: members.KindVirtual},
		{Prefix: "data/test_cases/human_members/", Kind: members.KindHuman},
		{Prefix: "data/test_cases/virtual_members/", Kind: members.KindVirtual},
		{Prefix: "data/human_members/", Kind: members.KindHuman},
		{Prefix: "data/virtual_members/", Kind: members.KindVirtual},
	}
}

// ParseTargetPrefixes resolves the member kind of each configured prefix from
// its human_members or virtual_members directory component.
func ParseTargetPrefixes(values []string) ([]TargetPrefix, error) {
	prefixes := make([]TargetPrefix, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		if !strings.HasSuffix(trimmed, "/") {
			trimmed += "/"
		}
		var kind members.Kind
		for _, candidate := range members.AllKinds() {
			if strings.Contains(trimmed, candidate.DirectoryName()) {
				kind = candidate
				break
			}
		}
		if kind == "" {
			return nil, fmt.Errorf("%w: %q", errUnresolvedPrefix, value)
		}
		prefixes = append(prefixes, TargetPrefix{Prefix: trimmed, Kind: kind})
	}
	return prefixes, nil
}

// FilterConfig describes the dependencies of a Filter.
type FilterConfig struct {
	Cache          Cache
	DedupEnabled   bool
	TargetPrefixes []TargetPrefix
	Logger         *zap.Logger
}

// Filter gates change events before any storage or database work happens.
type Filter struct {
	cache        Cache
	dedupEnabled bool
	prefixes     []TargetPrefix
	logger       *zap.Logger
}

// NewFilter validates cfg and constructs a Filter. Empty prefixes fall back to DefaultTargetPrefixes.
func NewFilter(cfg FilterConfig) (*Filter, error) {
	if cfg.DedupEnabled && cfg.Cache == nil {
		return nil, errMissingCache
	}
	prefixes := cfg.TargetPrefixes
	if len(prefixes) == 0 {
		prefixes = DefaultTargetPrefixes()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Filter{
		cache:        cfg.Cache,
		dedupEnabled: cfg.DedupEnabled,
		prefixes:     prefixes,
		logger:       logger,
	}, nil
}

// Decision is the outcome of evaluating one event.
type Decision struct {
	Process    bool
	Reason     Reason
	DecodedKey string
	DedupKey   string
	Kind       members.Kind
}

// Evaluate runs the dedup, event kind, extension and directory gates in order.
func (f *Filter) Evaluate(event events.ChangeEvent) Decision {
	decoded := event.ObjectName
	if !event.KeyDecoded {
		decoded = DecodeObjectKey(event.ObjectName)
	}
	decision := Decision{
		DecodedKey: decoded,
		DedupKey:   Key(decoded, event.ETag),
	}

	if f.dedupEnabled && f.cache.Contains(decision.DedupKey) {
		decision.Reason = ReasonDuplicate
		f.logger.Debug("skipping already processed event", zap.String("dedup_key", decision.DedupKey))
		return decision
	}
	if !event.IsCreation() {
		decision.Reason = ReasonNonCreation
		f.logger.Debug("skipping non-creation event", zap.String("event_name", event.EventName))
		return decision
	}
	if !hasYAMLSuffix(decoded) {
		decision.Reason = ReasonNonYAML
		f.logger.Debug("skipping non-yaml object", zap.String("object", decoded))
		return decision
	}
	kind, ok := f.resolveKind(decoded)
	if !ok {
		decision.Reason = ReasonOutsideTargets
		f.logger.Debug("skipping object outside target directories", zap.String("object", decoded))
		return decision
	}

	decision.Process = true
	decision.Kind = kind
	return decision
}

// ShouldProcess reports whether the event is new work.
func (f *Filter) ShouldProcess(event events.ChangeEvent) bool {
	return f.Evaluate(event).Process
}

// MarkProcessed records a successfully applied event when dedup is enabled.
func (f *Filter) MarkProcessed(decision Decision, fingerprint string) {
	if !f.dedupEnabled {
		return
	}
	f.cache.Add(decision.DedupKey, fingerprint)
}

// DedupEnabled reports whether the cache gate is active.
func (f *Filter) DedupEnabled() bool {
	return f.dedupEnabled
}

// CacheLen returns the number of remembered events, zero without a cache.
func (f *Filter) CacheLen() int {
	if f.cache == nil {
		return 0
	}
	return f.cache.Len()
}

// Prefixes returns the configured target prefixes.
func (f *Filter) Prefixes() []TargetPrefix {
	return append([]TargetPrefix(nil), f.prefixes...)
}

func (f *Filter) resolveKind(decoded string) (members.Kind, bool) {
	for _, prefix := range f.prefixes {
		if strings.HasPrefix(decoded, prefix.Prefix) {
			return prefix.Kind, true
		}
	}
	return "", false
}

// DecodeObjectKey percent-decodes a notification object key, returning raw
// unchanged when it is not validly encoded.
func DecodeObjectKey(raw string) string {
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// Key builds the dedup key of a decoded object key and its fingerprint.
func Key(decodedKey, fingerprint string) string {
	return decodedKey + ":" + fingerprint
}

func hasYAMLSuffix(key string) bool {
	for _, suffix := range yamlSuffixes {
		if strings.HasSuffix(key, suffix) {
			return true
		}
	}
	return false
}
