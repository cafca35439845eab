package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/s-sasaki-earthsea-wizard/vecr-garage/internal/dedup"
	"github.com/s-sasaki-earthsea-wizard/vecr-garage/internal/events"
	"github.com/s-sasaki-earthsea-wizard/vecr-garage/internal/storage"
)

const defaultPollInterval = 30 * time.Second

var errMissingHandler = errors.New("pipeline: event handler is required")

// EventHandler processes a batch of change events.
type EventHandler interface {
	HandleEvents(ctx context.Context, changeEvents []events.ChangeEvent) Result
}

// PollerConfig describes the dependencies of a Poller.
type PollerConfig struct {
	Store          storage.ObjectStore
	Handler        EventHandler
	TargetPrefixes []dedup.TargetPrefix
	Interval       time.Duration
	// Prime records the ETags seen on the first pass without processing them.
	Prime  bool
	Bucket string
	Logger *zap.Logger
}

// Poller detects new and changed member files by diffing listed ETags.
type Poller struct {
	store    storage.ObjectStore
	handler  EventHandler
	prefixes []dedup.TargetPrefix
	interval time.Duration
	bucket   string
	logger   *zap.Logger

	mu     sync.Mutex
	seen   map[string]string
	primed bool
}

// PollReport describes one polling pass.
type PollReport struct {
	Changed []string
	Result  *Result
}

// NewPoller validates cfg and constructs a Poller.
func NewPoller(cfg PollerConfig) (*Poller, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	if cfg.Handler == nil {
		return nil, errMissingHandler
	}
	prefixes := cfg.TargetPrefixes
	if len(prefixes) == 0 {
		prefixes = dedup.DefaultTargetPrefixes()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		store:    cfg.Store,
		handler:  cfg.Handler,
		prefixes: prefixes,
		interval: interval,
		bucket:   cfg.Bucket,
		logger:   logger,
		seen:     make(map[string]string),
		primed:   !cfg.Prime,
	}, nil
}

// Poll lists the target prefixes once and hands new or changed objects to the
// handler as synthetic creation events. Every listed ETag is remembered
// whatever the processing outcome, so a failing file is retried only after it
// changes again.
func (p *Poller) Poll(ctx context.Context) (PollReport, error) {
	current := make(map[string]string)
	var order []string
	for _, prefix := range p.prefixes {
		listed, err := storage.ListYAML(ctx, p.store, prefix.Prefix)
		if err != nil {
			return PollReport{}, err
		}
		for _, object := range listed {
			if _, ok := current[object.Key]; !ok {
				order = append(order, object.Key)
			}
			current[object.Key] = object.ETag
		}
	}

	p.mu.Lock()
	var changed []events.ChangeEvent
	report := PollReport{}
	for _, key := range order {
		etag := current[key]
		if previous, ok := p.seen[key]; ok && previous == etag {
			continue
		}
		report.Changed = append(report.Changed, key)
		changed = append(changed, events.ChangeEvent{
			EventName:  events.EventObjectCreatedPut,
			BucketName: p.bucket,
			ObjectName: key,
			KeyDecoded: true,
			ETag:       etag,
			EventTime:  time.Now().UTC().Format(time.RFC3339Nano),
		})
		p.seen[key] = etag
	}
	priming := !p.primed
	p.primed = true
	p.mu.Unlock()

	if priming {
		p.logger.Info("poller primed", zap.Int("objects", len(report.Changed)))
		report.Changed = nil
		return report, nil
	}
	if len(changed) == 0 {
		return report, nil
	}

	p.logger.Info("detected changed files", zap.Int("count", len(changed)))
	result := p.handler.HandleEvents(ctx, changed)
	report.Result = &result
	return report, nil
}

// Run polls immediately and then on every interval until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		if _, err := p.Poll(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.logger.Error("poll failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
