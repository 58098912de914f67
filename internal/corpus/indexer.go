package corpus

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"sift/internal/embed"
	"sift/internal/logging"
	"sift/internal/vectorindex"
)

// IndexerConfig holds indexing configuration
type IndexerConfig struct {
	CorpusPath  string
	ExcludeDirs []string // e.g., .git, node_modules, vendor
	Extensions  []string // e.g., .go, .py, .md
	Concurrency int      // Parallel files in flight (default: 8)
	ChunkConfig ChunkerConfig
}

// Indexer turns a corpus snapshot into searchable units
type Indexer struct {
	config   IndexerConfig
	chunker  Chunker
	embedder embed.Embedder
	index    vectorindex.Index
	catalog  *Catalog
	logger   logging.Logger
}

// IndexStats holds indexing statistics
type IndexStats struct {
	TotalFiles     int
	IndexedFiles   int
	TotalUnits     int
	TruncatedUnits int
	ErrorFiles     int
}

// NewIndexer creates a new indexer
func NewIndexer(config IndexerConfig, chunker Chunker, embedder embed.Embedder, index vectorindex.Index, catalog *Catalog, logger logging.Logger) *Indexer {
	if len(config.ExcludeDirs) == 0 {
		config.ExcludeDirs = []string{".git", "node_modules", "vendor", "__pycache__", ".env", "dist", "build"}
	}
	if len(config.Extensions) == 0 {
		config.Extensions = []string{
			".go", ".py", ".js", ".ts", ".tsx", ".jsx",
			".java", ".rs", ".c", ".cpp", ".h", ".hpp",
			".rb", ".php", ".cs", ".swift", ".kt", ".scala",
			".md", ".txt", ".yaml", ".yml", ".json", ".toml",
		}
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 8
	}

	return &Indexer{
		config:   config,
		chunker:  chunker,
		embedder: embedder,
		index:    index,
		catalog:  catalog,
		logger:   logging.OrNop(logger),
	}
}

// Index indexes the corpus snapshot. Per-file failures are counted and
// logged, not fatal; only cancellation aborts the walk. Re-running over an
// unchanged snapshot upserts the same unit ids, so indexing is idempotent.
func (idx *Indexer) Index(ctx context.Context) (*IndexStats, error) {
	stats := &IndexStats{}

	files, err := idx.collectFiles()
	if err != nil {
		return nil, fmt.Errorf("collect files: %w", err)
	}
	stats.TotalFiles = len(files)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.config.Concurrency)

	for _, file := range files {
		if err := gctx.Err(); err != nil {
			break
		}

		file := file
		g.Go(func() error {
			truncated, units, err := idx.indexFile(gctx, file)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				idx.logger.Warn("index file %s: %v", file, err)
				stats.ErrorFiles++
				return nil
			}
			stats.IndexedFiles++
			stats.TotalUnits += units
			stats.TruncatedUnits += truncated
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return stats, err
	}

	idx.logger.Info("indexed %d/%d files, %d units (%d truncated, %d errors)",
		stats.IndexedFiles, stats.TotalFiles, stats.TotalUnits, stats.TruncatedUnits, stats.ErrorFiles)
	return stats, nil
}

// indexFile chunks, embeds and upserts a single file. Truncated units are
// cataloged but skipped for embedding so retrieval never surfaces a vector
// computed from clipped text.
func (idx *Indexer) indexFile(ctx context.Context, filePath string) (truncated, indexed int, err error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return 0, 0, fmt.Errorf("read file: %w", err)
	}

	source, err := filepath.Rel(idx.config.CorpusPath, filePath)
	if err != nil {
		source = filePath
	}

	units, err := idx.chunker.Chunk(source, string(content))
	if err != nil {
		return 0, 0, fmt.Errorf("chunk text: %w", err)
	}

	// Units whose content changed get fresh ids; drop the stale ones so a
	// re-index replaces rather than accumulates.
	previous := idx.catalog.IDsBySource(source)
	fresh := make(map[string]struct{}, len(units))
	for _, unit := range units {
		fresh[unit.ID] = struct{}{}
	}
	for _, id := range previous {
		if _, ok := fresh[id]; ok {
			continue
		}
		idx.catalog.Remove(id)
		if err := idx.index.Remove(ctx, id); err != nil {
			return 0, 0, fmt.Errorf("remove stale unit %s: %w", id, err)
		}
	}

	embeddable := make([]Unit, 0, len(units))
	for _, unit := range units {
		unit.Metadata["language"] = language(filePath)
		idx.catalog.Put(unit)
		if unit.Metadata["truncated"] == "true" {
			truncated++
			continue
		}
		embeddable = append(embeddable, unit)
	}

	const batchSize = 50
	for i := 0; i < len(embeddable); i += batchSize {
		end := i + batchSize
		if end > len(embeddable) {
			end = len(embeddable)
		}

		batch := embeddable[i:end]
		texts := make([]string, len(batch))
		for j, unit := range batch {
			texts[j] = unit.Text
		}

		embeddings, err := idx.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return truncated, indexed, fmt.Errorf("embed batch: %w", err)
		}

		for j, unit := range batch {
			unit.Vector = embeddings[j]
			idx.catalog.Put(unit)
			if err := idx.index.Upsert(ctx, unit.ID, unit.Vector, unit.Metadata); err != nil {
				return truncated, indexed, fmt.Errorf("upsert unit %s: %w", unit.ID, err)
			}
			indexed++
		}
	}

	return truncated, indexed, nil
}

// collectFiles walks the corpus and collects indexable files in walk order,
// which filepath.WalkDir keeps lexical and therefore reproducible.
func (idx *Indexer) collectFiles() ([]string, error) {
	var files []string

	err := filepath.WalkDir(idx.config.CorpusPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			for _, excluded := range idx.config.ExcludeDirs {
				if d.Name() == excluded {
					return fs.SkipDir
				}
			}
			return nil
		}

		ext := filepath.Ext(path)
		for _, allowed := range idx.config.Extensions {
			if ext == allowed {
				files = append(files, path)
				break
			}
		}

		return nil
	})

	return files, err
}

// Reindex re-indexes specific files after edits. Units from unchanged files
// keep their ids and vectors untouched.
func (idx *Indexer) Reindex(ctx context.Context, changedFiles []string) (*IndexStats, error) {
	stats := &IndexStats{
		TotalFiles: len(changedFiles),
	}

	for _, file := range changedFiles {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		truncated, units, err := idx.indexFile(ctx, file)
		if err != nil {
			idx.logger.Warn("reindex file %s: %v", file, err)
			stats.ErrorFiles++
			continue
		}
		stats.IndexedFiles++
		stats.TotalUnits += units
		stats.TruncatedUnits += truncated
	}

	return stats, nil
}

func language(filePath string) string {
	ext := filepath.Ext(filePath)
	if len(ext) > 1 {
		return ext[1:]
	}
	return ""
}
