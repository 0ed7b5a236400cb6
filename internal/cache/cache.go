// Package cache keeps built fragment indexes keyed by file identity so an
// unchanged file is scanned once.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/singleflight"

	"github.com/autobrr/go-fragindex/internal/fragindex"
	"github.com/autobrr/go-fragindex/internal/observability"
)

// Analyzer builds the index for a file.
type Analyzer interface {
	Analyze(ctx context.Context, path string) (fragindex.Report, error)
}

// Persister is an optional second tier behind the in-memory cache.
type Persister interface {
	Load(ctx context.Context, key fragindex.FileKey) (fragindex.Index, bool, error)
	Save(ctx context.Context, key fragindex.FileKey, idx fragindex.Index) error
	Delete(ctx context.Context, path string) error
}

type Source string

const (
	SourceMemory Source = "memory"
	SourceStore  Source = "store"
	SourceScan   Source = "scan"
)

// Entry is a cached index together with the file version it describes.
type Entry struct {
	Key    fragindex.FileKey
	Index  fragindex.Index
	Source Source
}

type Stats struct {
	Hits      uint64 `json:"hits"`
	StoreHits uint64 `json:"store_hits"`
	Builds    uint64 `json:"builds"`
	Entries   int    `json:"entries"`
}

type Cache struct {
	analyzer  Analyzer
	persister Persister
	entries   *lru.Cache
	group     singleflight.Group
	logger    *slog.Logger

	hits      atomic.Uint64
	storeHits atomic.Uint64
	builds    atomic.Uint64
}

// New creates a cache holding at most size indexes. persister may be nil.
func New(analyzer Analyzer, size int, persister Persister, logger *slog.Logger) (*Cache, error) {
	entries, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("creating index cache: %w", err)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Cache{
		analyzer:  analyzer,
		persister: persister,
		entries:   entries,
		logger:    observability.WithComponent(logger, "cache"),
	}, nil
}

// Index returns the index for path. Files that cannot be read yield an empty
// index, which is not cached.
func (c *Cache) Index(ctx context.Context, path string) fragindex.Index {
	entry, err := c.Lookup(ctx, path)
	if err != nil {
		observability.WithError(c.logger, err).Warn("could not index file", slog.String("path", path))
		return fragindex.EmptyIndex()
	}
	return entry.Index
}

// Lookup returns the cached entry for the current version of path, building
// it when needed. Concurrent lookups of the same version share one build.
func (c *Cache) Lookup(ctx context.Context, path string) (Entry, error) {
	key, err := fragindex.StatKey(path)
	if err != nil {
		return Entry{}, err
	}

	if value, ok := c.entries.Get(key.Path); ok {
		if entry := value.(Entry); entry.Key.Equal(key) {
			c.hits.Add(1)
			entry.Source = SourceMemory
			return entry, nil
		}
		c.entries.Remove(key.Path)
	}

	// A build cut short by another caller's cancellation is retried for
	// callers that are still waiting.
	for {
		value, err, _ := c.group.Do(key.String(), func() (any, error) {
			return c.fill(ctx, key)
		})
		if err != nil {
			return Entry{}, err
		}
		result := value.(fillResult)
		if !result.callerCanceled || ctx.Err() != nil {
			return result.entry, nil
		}
		c.logger.Debug("shared build was canceled, retrying", slog.String("path", key.Path))
	}
}

type fillResult struct {
	entry Entry
	// callerCanceled is set when the context of the caller that ran the
	// build ended before the scan did.
	callerCanceled bool
}

func (c *Cache) fill(ctx context.Context, key fragindex.FileKey) (fillResult, error) {
	if c.persister != nil {
		idx, found, err := c.persister.Load(ctx, key)
		switch {
		case errors.Is(err, fragindex.ErrInvalidIndex):
			observability.WithError(c.logger, err).Warn("discarding broken stored index", slog.String("path", key.Path))
			if err := c.persister.Delete(ctx, key.Path); err != nil {
				observability.WithError(c.logger, err).Warn("could not delete stored index", slog.String("path", key.Path))
			}
		case err != nil:
			observability.WithError(c.logger, err).Warn("index store lookup failed", slog.String("path", key.Path))
		case found:
			c.storeHits.Add(1)
			entry := Entry{Key: key, Index: idx, Source: SourceStore}
			c.entries.Add(key.Path, entry)
			return fillResult{entry: entry}, nil
		}
	}

	report, err := c.analyzer.Analyze(ctx, key.Path)
	if err != nil {
		return fillResult{}, err
	}
	c.builds.Add(1)
	entry := Entry{Key: key, Index: report.Index, Source: SourceScan}

	if report.Stats.Stop == fragindex.StopCanceled && ctx.Err() != nil {
		// later callers must start a fresh build instead of joining this one
		c.group.Forget(key.String())
		c.logger.Debug("not caching canceled index", slog.String("path", key.Path))
		return fillResult{entry: entry, callerCanceled: true}, nil
	}

	// scans that hit the time limit and files rewritten mid-scan are rebuilt
	// on the next lookup
	if report.Stats.Stop == fragindex.StopCanceled || report.Size != key.Size || !report.ModTime.Equal(key.ModTime) {
		c.logger.Debug("not caching partial index", slog.String("path", key.Path), slog.String("stop", string(report.Stats.Stop)))
		return fillResult{entry: entry}, nil
	}

	c.entries.Add(key.Path, entry)
	if c.persister != nil {
		if err := c.persister.Save(ctx, key, report.Index); err != nil {
			observability.WithError(c.logger, err).Warn("could not persist index", slog.String("path", key.Path))
		}
	}
	return fillResult{entry: entry}, nil
}

// Invalidate drops every cached index for path, in memory and in the
// persister, so the next lookup scans the file again.
func (c *Cache) Invalidate(ctx context.Context, path string) error {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	c.entries.Remove(path)
	if c.persister == nil {
		return nil
	}
	if err := c.persister.Delete(ctx, path); err != nil {
		return fmt.Errorf("invalidating %s: %w", path, err)
	}
	return nil
}

func (c *Cache) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		StoreHits: c.storeHits.Load(),
		Builds:    c.builds.Load(),
		Entries:   c.entries.Len(),
	}
}
