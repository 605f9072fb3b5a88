// Package knowledge supplies the assistant's knowledge document: a
// periodically refreshed text blob grounding every completion.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vanilka-ai/bento-assistant/pkg/logger"
	"github.com/vanilka-ai/bento-assistant/pkg/metrics"
)

var (
	// ErrKnowledgeUnavailable indicates no snapshot has ever loaded.
	ErrKnowledgeUnavailable = errors.New("knowledge document not loaded")
	// ErrReloadFailed indicates a reload attempt failed; the previous
	// snapshot stays in place.
	ErrReloadFailed = errors.New("knowledge reload failed")
)

// Snapshot is an immutable copy of the knowledge document at a point
// in time.
type Snapshot struct {
	Content  string    `json:"content"`
	Version  string    `json:"version"`
	LoadedAt time.Time `json:"loaded_at"`
}

// Fetcher retrieves the current knowledge document text from its
// external source.
type Fetcher interface {
	Fetch(ctx context.Context) (string, error)
}

// Provider owns the last-good knowledge snapshot. Snapshot replacement
// is atomic with respect to concurrent readers: Current never observes
// a partially updated snapshot, and a failed Reload leaves the prior
// snapshot intact.
type Provider struct {
	fetcher Fetcher
	logger  *logger.Logger

	mu   sync.RWMutex
	snap *Snapshot
}

// NewProvider creates a provider around the given fetcher. No snapshot
// is loaded until the first Reload.
func NewProvider(fetcher Fetcher, log *logger.Logger) *Provider {
	return &Provider{
		fetcher: fetcher,
		logger:  log,
	}
}

// Current returns the last successfully loaded snapshot.
func (p *Provider) Current() (Snapshot, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.snap == nil {
		return Snapshot{}, ErrKnowledgeUnavailable
	}
	return *p.snap, nil
}

// Reload fetches fresh content and atomically replaces the visible
// snapshot. On failure the previous snapshot is kept and ErrReloadFailed
// is returned; in-flight turns keep using the last-good snapshot either
// way.
func (p *Provider) Reload(ctx context.Context) (Snapshot, error) {
	content, err := p.fetcher.Fetch(ctx)
	if err != nil {
		metrics.KnowledgeReloads.WithLabelValues("error").Inc()
		p.logger.Warn("knowledge reload failed", zap.Error(err))
		return Snapshot{}, fmt.Errorf("%w: %v", ErrReloadFailed, err)
	}

	snap := &Snapshot{
		Content:  content,
		Version:  uuid.New().String(),
		LoadedAt: time.Now().UTC(),
	}

	p.mu.Lock()
	p.snap = snap
	p.mu.Unlock()

	metrics.KnowledgeReloads.WithLabelValues("success").Inc()
	metrics.KnowledgeSnapshotBytes.Set(float64(len(content)))
	p.logger.Info("knowledge snapshot replaced",
		zap.String("version", snap.Version),
		zap.Int("bytes", len(content)),
	)

	return *snap, nil
}

// StartRefresh reloads the snapshot on the given interval until ctx is
// cancelled. Reload failures keep the stale snapshot and are retried on
// the next tick.
func (p *Provider) StartRefresh(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := p.Reload(ctx); err != nil {
					p.logger.Warn("scheduled knowledge reload failed", zap.Error(err))
				}
			}
		}
	}()
}
