// Package loader turns files on disk into text segments and splits them
// into bounded chunks.
package loader

import (
	"context"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"unicode/utf8"

	"ragchat/types"
)

// Loader reads one file and returns its text in file order.
type Loader interface {
	Load(ctx context.Context, path string) ([]types.Segment, error)
}

// LoaderFunc adapts a plain function to Loader.
type LoaderFunc func(ctx context.Context, path string) ([]types.Segment, error)

func (f LoaderFunc) Load(ctx context.Context, path string) ([]types.Segment, error) {
	return f(ctx, path)
}

type Options struct {
	// PDF header/footer crop in points; zero disables cropping.
	PDFCropTop    float64
	PDFCropBottom float64
}

// Registry maps lower-case extensions to loaders. Files with an unknown
// extension are read as plain text.
type Registry struct {
	mu       sync.RWMutex
	loaders  map[string]Loader
	fallback Loader
}

func NewRegistry() *Registry {
	return &Registry{
		loaders:  make(map[string]Loader),
		fallback: NewTextLoader("text"),
	}
}

// DefaultRegistry registers a loader for every format the service ingests.
func DefaultRegistry(opts Options) *Registry {
	r := NewRegistry()
	r.Register(".txt", NewTextLoader("text"))
	r.Register(".md", NewTextLoader("markdown"))
	r.Register(".markdown", NewTextLoader("markdown"))
	r.Register(".json", NewJSONLoader())
	r.Register(".yml", NewYAMLLoader())
	r.Register(".yaml", NewYAMLLoader())
	r.Register(".docx", NewDOCXLoader())
	r.Register(".pdf", NewPDFLoader(opts.PDFCropTop, opts.PDFCropBottom))

	code := NewCodeLoader()
	for _, ext := range []string{".py", ".go", ".js", ".ts", ".java", ".rs", ".rb", ".c", ".h", ".cpp", ".cs", ".sh", ".sql"} {
		r.Register(ext, code)
	}
	return r
}

func (r *Registry) Register(ext string, l Loader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaders[normalizeExt(ext)] = l
}

// For returns the loader for path's extension, or the plain-text fallback.
func (r *Registry) For(path string) Loader {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if l, ok := r.loaders[normalizeExt(filepath.Ext(path))]; ok {
		return l
	}
	return r.fallback
}

// Load reads path with the matching loader. Failures are classified as load
// failures unless the loader already classified them.
func (r *Registry) Load(ctx context.Context, path string) ([]types.Segment, error) {
	segs, err := r.For(path).Load(ctx, path)
	if err != nil {
		return nil, types.Wrap(types.KindLoad, "load "+filepath.Base(path), err)
	}
	for i := range segs {
		segs[i].Text = cleanText(segs[i].Text)
	}
	return segs, nil
}

// cleanText keeps segment text storable as Postgres TEXT, which rejects NUL
// and invalid UTF-8.
func cleanText(s string) string {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "\uFFFD")
	}
	return strings.ReplaceAll(s, "\x00", "")
}

// Extensions lists the explicitly registered extensions, sorted.
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.loaders))
	for ext := range r.loaders {
		out = append(out, ext)
	}
	slices.Sort(out)
	return out
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
