// Package service runs document ingestion: discovery, filtering, concurrent
// loading and chunking, then one embed-and-persist step.
package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"ragchat/config"
	"ragchat/loader"
	"ragchat/model"
	"ragchat/store"
	"ragchat/types"
)

const (
	noFilesDetail    = "No valid files found to process"
	maxListedFiles   = 20
	bytesPerMegabyte = 1024 * 1024
)

// chunkNamespace seeds the deterministic chunk ids.
var chunkNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("ragchat/chunks"))

var ErrServiceClosed = errors.New("ingestion service is closed")

type Service struct {
	logger   *slog.Logger
	cfg      config.IngestConfig
	registry *loader.Registry
	chunker  *loader.Chunker
	embedder model.Embedder
	store    store.VectorStore

	// sem bounds concurrent file and embedding work process-wide; inflight
	// lets Close wait for tasks that already hold or wait on it.
	sem      *semaphore.Weighted
	inflight sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func New(cfg config.IngestConfig, registry *loader.Registry, embedder model.Embedder, vs store.VectorStore) (*Service, error) {
	chunker, err := loader.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	return &Service{
		logger:   slog.Default(),
		cfg:      cfg,
		registry: registry,
		chunker:  chunker,
		embedder: embedder,
		store:    vs,
		sem:      semaphore.NewWeighted(int64(workers)),
	}, nil
}

// fileOutcome is the result of one per-file task.
type fileOutcome struct {
	path   string
	chunks []types.Chunk
	err    error
}

// ProcessDocuments ingests files under rootPath whose base name matches one
// of patterns (all supported extensions when empty).
//
// Per-file failures are reported in Details and do not fail the call. Chunks
// are embedded and persisted in one batch only after every file settled; if
// that final step fails the whole call fails and the loaded work is dropped.
func (s *Service) ProcessDocuments(ctx context.Context, rootPath string, patterns []string) (*types.IngestSummary, error) {
	const op = "process documents"

	if !s.begin() {
		return nil, types.E(types.KindUnexpected, op, ErrServiceClosed)
	}
	defer s.inflight.Done()

	info, err := os.Stat(rootPath)
	if err != nil {
		return nil, types.E(types.KindNotFound, op, fmt.Errorf("folder %s: %w", rootPath, err))
	}
	if !info.IsDir() {
		return nil, types.Errorf(types.KindNotFound, op, "%s is not a directory", rootPath)
	}

	if len(patterns) == 0 {
		patterns = s.cfg.FilePatterns()
	}
	for _, p := range patterns {
		if _, err := filepath.Match(p, ""); err != nil {
			return nil, types.E(types.KindValidation, op, fmt.Errorf("pattern %q: %w", p, err))
		}
	}

	files, err := s.discover(rootPath, patterns)
	if err != nil {
		return nil, types.E(types.KindLoad, op, err)
	}

	summary := &types.IngestSummary{Details: []string{}}
	if len(files) == 0 {
		summary.Details = append(summary.Details, noFilesDetail)
		return summary, nil
	}

	s.logger.Info("ingesting documents", "folder", rootPath, "files", len(files))

	outcomes := make([]fileOutcome, len(files))
	var g errgroup.Group
	for i, path := range files {
		g.Go(func() error {
			outcomes[i] = s.runFile(ctx, path)
			return nil
		})
	}
	_ = g.Wait()

	var chunks []types.Chunk
	for _, o := range outcomes {
		if o.err != nil {
			s.logger.Warn("failed to process file", "path", o.path, "error", o.err)
			summary.Details = append(summary.Details, fmt.Sprintf("Error processing %s: %v", filepath.Base(o.path), o.err))
			continue
		}
		summary.ProcessedFiles++
		chunks = append(chunks, o.chunks...)
	}
	if err := ctx.Err(); err != nil {
		return nil, types.Wrap(types.KindUnexpected, op, err)
	}

	if len(chunks) > 0 {
		if err := s.persist(ctx, chunks); err != nil {
			return nil, err
		}
	}
	summary.TotalChunks = len(chunks)

	s.logger.Info("ingestion finished",
		"processed_files", summary.ProcessedFiles,
		"failed_files", len(files)-summary.ProcessedFiles,
		"total_chunks", summary.TotalChunks)
	return summary, nil
}

func (s *Service) runFile(ctx context.Context, path string) fileOutcome {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return fileOutcome{path: path, err: err}
	}
	defer s.sem.Release(1)

	chunks, err := s.processFile(ctx, path)
	return fileOutcome{path: path, chunks: chunks, err: err}
}

func (s *Service) processFile(ctx context.Context, path string) ([]types.Chunk, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	segs, err := s.registry.Load(ctx, path)
	if err != nil {
		return nil, err
	}

	pieces := s.chunker.SplitSegments(segs)
	chunks := make([]types.Chunk, 0, len(pieces))
	for seq, piece := range pieces {
		chunks = append(chunks, types.Chunk{
			ID:            chunkID(path, seq, piece.Text),
			Text:          piece.Text,
			SourcePath:    path,
			FileName:      filepath.Base(path),
			FileExtension: strings.ToLower(filepath.Ext(path)),
			FileSize:      info.Size(),
			Index:         seq,
			Extra:         piece.Metadata,
		})
	}
	s.logger.Debug("file chunked", "path", path, "chunks", len(chunks))
	return chunks, nil
}

func (s *Service) persist(ctx context.Context, chunks []types.Chunk) error {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	vectors, err := s.embedder.EmbedMany(ctx, texts)
	s.sem.Release(1)
	if err != nil {
		return types.Wrap(types.KindProvider, "embed chunks", err)
	}

	return s.store.Add(ctx, chunks, vectors)
}

// chunkID hashes source, sequence and the full chunk text.
func chunkID(source string, seq int, text string) string {
	key := source + "\x00" + strconv.Itoa(seq) + "\x00" + text
	return uuid.NewSHA1(chunkNamespace, []byte(key)).String()
}

// discover walks root and returns matching, supported, small enough and not
// ignored files, sorted and without duplicates.
func (s *Service) discover(root string, patterns []string) ([]string, error) {
	ignore, err := NewIgnoreFilter(root)
	if err != nil {
		return nil, err
	}
	maxSize := s.cfg.MaxFileSizeBytes()

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			s.logger.Warn("skipping unreadable path", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil || rel == "." {
			return nil
		}
		if ignore.ShouldIgnore(rel) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || !matchesAny(d.Name(), patterns) || !s.isSupported(path) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.Size() > maxSize {
			s.logger.Warn("file exceeds size limit", "path", path, "size_mb", float64(info.Size())/bytesPerMegabyte)
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.Sort(files)
	return slices.Compact(files), nil
}

func matchesAny(name string, patterns []string) bool {
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, name); ok {
			return true
		}
	}
	return false
}

func (s *Service) isSupported(path string) bool {
	return slices.Contains(s.cfg.SupportedExtensions, strings.ToLower(filepath.Ext(path)))
}

// AutoLoad ingests the configured documents folder. A missing folder is not
// an error; it is reported in the summary.
func (s *Service) AutoLoad(ctx context.Context) (*types.IngestSummary, error) {
	folder := s.cfg.DocumentsFolder
	if info, err := os.Stat(folder); err != nil || !info.IsDir() {
		s.logger.Warn("documents folder not found", "folder", folder)
		return &types.IngestSummary{
			Details: []string{fmt.Sprintf("Documents folder %s does not exist", folder)},
		}, nil
	}
	return s.ProcessDocuments(ctx, folder, s.cfg.FilePatterns())
}

// Refresh clears the collection and re-ingests the documents folder.
func (s *Service) Refresh(ctx context.Context) (*types.IngestSummary, error) {
	if err := s.store.Clear(ctx); err != nil {
		return nil, err
	}
	return s.AutoLoad(ctx)
}

// FolderInfo describes the documents folder without touching the index.
func (s *Service) FolderInfo(ctx context.Context) (*types.FolderInfo, error) {
	folder := s.cfg.DocumentsFolder
	abs, err := filepath.Abs(folder)
	if err != nil {
		abs = folder
	}

	fi := &types.FolderInfo{
		FolderPath:       abs,
		FilesByExtension: map[string]int{},
		SupportedFiles:   []types.SupportedFile{},
		AutoLoadEnabled:  s.cfg.AutoLoadOnStartup,
	}
	if info, err := os.Stat(folder); err != nil || !info.IsDir() {
		return fi, nil
	}
	fi.Exists = true

	err = filepath.WalkDir(folder, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			return nil
		}
		fi.TotalFiles++
		ext := strings.ToLower(filepath.Ext(path))
		if ext == "" {
			ext = "no_extension"
		}
		fi.FilesByExtension[ext]++

		if !s.isSupported(path) {
			return nil
		}
		fi.SupportedFilesCount++
		if len(fi.SupportedFiles) >= maxListedFiles {
			return nil
		}
		var size int64
		if info, err := d.Info(); err == nil {
			size = info.Size()
		}
		rel, _ := filepath.Rel(folder, path)
		fi.SupportedFiles = append(fi.SupportedFiles, types.SupportedFile{
			Name:      d.Name(),
			Path:      rel,
			SizeMB:    roundTo(float64(size)/bytesPerMegabyte, 2),
			Extension: ext,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return fi, nil
}

// Status reports the collection size; store failures become StatusError
// rather than an error.
func (s *Service) Status(ctx context.Context) types.StoreStatus {
	st := types.StoreStatus{CollectionName: s.store.Name()}
	n, err := s.store.Count(ctx)
	switch {
	case err != nil:
		st.Status = types.StatusError
		st.Error = err.Error()
	case n == 0:
		st.Status = types.StatusEmpty
	default:
		st.Status = types.StatusHealthy
		st.DocumentCount = n
	}
	return st
}

// Clear empties the collection.
func (s *Service) Clear(ctx context.Context) error {
	return s.store.Clear(ctx)
}

func (s *Service) begin() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	s.inflight.Add(1)
	return true
}

// Close rejects new work and waits for running ingestions. Safe to call
// more than once.
func (s *Service) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.inflight.Wait()
	s.logger.Info("Loader Service stopped")
}

func roundTo(v float64, places int) float64 {
	f, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'f', places, 64), 64)
	return f
}
