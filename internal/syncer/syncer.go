// Package syncer reconciles the chunk index with the document corpus on
// disk: new documents are indexed, deleted documents are purged, and moved
// documents are repointed without re-embedding.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"

	"github.com/corpusd/corpusd/internal/chunk"
	"github.com/corpusd/corpusd/internal/document"
	"github.com/corpusd/corpusd/internal/index"
)

// Scanner lists the eligible documents under the corpus directory.
type Scanner interface {
	Scan(dir string) ([]string, error)
}

// Catalog is the index surface the syncer diffs against and mutates.
// *index.Index satisfies it.
type Catalog interface {
	Entries(ctx context.Context) ([]index.Entry, error)
	DeleteBySource(ctx context.Context, sources []string) error
	RewriteSource(ctx context.Context, oldSource, newSource string) error
}

// ChunkWriter adds chunks idempotently. *index.Writer satisfies it.
type ChunkWriter interface {
	AddChunks(ctx context.Context, chunks []chunk.Chunk) (int, error)
}

// Report summarizes one reconciliation pass.
type Report struct {
	// Scanned is how many eligible documents the corpus contains.
	Scanned int
	// Added lists documents indexed this pass.
	Added []string
	// Removed lists documents purged this pass.
	Removed []string
	// Renamed maps old paths to new paths repointed this pass.
	Renamed map[string]string
	// ChunksAdded is how many new chunks were written.
	ChunksAdded int
}

// Changed reports whether the pass mutated the index.
func (r Report) Changed() bool {
	return len(r.Added) > 0 || len(r.Removed) > 0 || len(r.Renamed) > 0
}

// Syncer drives reconciliation passes over one corpus directory.
type Syncer struct {
	dataDir  string
	scanner  Scanner
	catalog  Catalog
	writer   ChunkWriter
	loader   document.Loader
	splitter *chunk.Splitter
	log      *slog.Logger
}

// Options configures New. Zero-value fields get defaults.
type Options struct {
	// Loader defaults to document.NewMultiLoader().
	Loader document.Loader
	// Splitter defaults to chunk.NewSplitter(0, 0).
	Splitter *chunk.Splitter
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// New creates a Syncer for the given corpus directory.
func New(dataDir string, scanner Scanner, catalog Catalog, writer ChunkWriter, opts Options) *Syncer {
	if opts.Loader == nil {
		opts.Loader = document.NewMultiLoader()
	}
	if opts.Splitter == nil {
		opts.Splitter = chunk.NewSplitter(0, 0)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Syncer{
		dataDir:  dataDir,
		scanner:  scanner,
		catalog:  catalog,
		writer:   writer,
		loader:   opts.Loader,
		splitter: opts.Splitter,
		log:      opts.Logger,
	}
}

// Sync performs one reconciliation pass and returns what changed. Renames
// are applied before deletions so a moved file keeps its embeddings; a load
// or write failure aborts the pass with the index left in a consistent
// partial state that the next pass completes.
func (s *Syncer) Sync(ctx context.Context) (Report, error) {
	report := Report{Renamed: make(map[string]string)}

	current, err := s.scanner.Scan(s.dataDir)
	if err != nil {
		return report, fmt.Errorf("scan corpus: %w", err)
	}
	report.Scanned = len(current)

	entries, err := s.catalog.Entries(ctx)
	if err != nil {
		return report, fmt.Errorf("list index entries: %w", err)
	}

	existing := make(map[string]struct{})
	for _, e := range entries {
		existing[e.Source] = struct{}{}
	}
	currentSet := make(map[string]struct{}, len(current))
	for _, path := range current {
		currentSet[path] = struct{}{}
	}

	var removed, added []string
	for source := range existing {
		if _, ok := currentSet[source]; !ok {
			removed = append(removed, source)
		}
	}
	for _, path := range current {
		if _, ok := existing[path]; !ok {
			added = append(added, path)
		}
	}
	sort.Strings(removed)
	sort.Strings(added)

	removed, added = s.applyRenames(ctx, removed, added, &report)

	if len(removed) > 0 {
		if err := s.catalog.DeleteBySource(ctx, removed); err != nil {
			return report, fmt.Errorf("delete removed sources: %w", err)
		}
		report.Removed = removed
	}

	if err := s.indexDocuments(ctx, added, &report); err != nil {
		return report, err
	}

	s.log.Info("sync complete",
		"scanned", report.Scanned,
		"added", len(report.Added),
		"removed", len(report.Removed),
		"renamed", len(report.Renamed),
		"chunks_added", report.ChunksAdded)
	return report, nil
}

// applyRenames pairs removed sources with added paths sharing a basename and
// repoints them in the catalog. Both slices are sorted, so pairing is
// deterministic: each removed source takes the first unclaimed added path
// with a matching basename. Paired entries are excluded from the returned
// remainder slices.
func (s *Syncer) applyRenames(ctx context.Context, removed, added []string, report *Report) ([]string, []string) {
	claimed := make(map[string]struct{})
	var stillRemoved []string

	for _, oldPath := range removed {
		base := filepath.Base(oldPath)
		newPath := ""
		for _, candidate := range added {
			if _, taken := claimed[candidate]; taken {
				continue
			}
			if filepath.Base(candidate) == base {
				newPath = candidate
				break
			}
		}
		if newPath == "" {
			stillRemoved = append(stillRemoved, oldPath)
			continue
		}

		if err := s.catalog.RewriteSource(ctx, oldPath, newPath); err != nil {
			// Leave the pair in the diff; the next pass retries it as a
			// plain delete and re-add.
			s.log.Warn("rename repoint failed", "old", oldPath, "new", newPath, "error", err)
			stillRemoved = append(stillRemoved, oldPath)
			continue
		}
		claimed[newPath] = struct{}{}
		report.Renamed[oldPath] = newPath
		s.log.Info("repointed moved document", "old", oldPath, "new", newPath)
	}

	var stillAdded []string
	for _, path := range added {
		if _, taken := claimed[path]; !taken {
			stillAdded = append(stillAdded, path)
		}
	}
	return stillRemoved, stillAdded
}

// indexDocuments loads, splits, and writes each new document. A document
// that fails to load is skipped with a warning; a write failure aborts.
func (s *Syncer) indexDocuments(ctx context.Context, paths []string, report *Report) error {
	for _, path := range paths {
		pages, err := s.loader.Load(path)
		if err != nil {
			s.log.Warn("skipping unreadable document", "path", path, "error", err)
			continue
		}

		chunks := chunk.AssignIDs(s.splitter.Split(pages))
		added, err := s.writer.AddChunks(ctx, chunks)
		if err != nil {
			return fmt.Errorf("index %s: %w", path, err)
		}
		report.Added = append(report.Added, path)
		report.ChunksAdded += added
	}
	return nil
}
