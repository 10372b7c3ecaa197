package loader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-enry/go-enry/v2"

	"ragchat/types"
)

var ErrBinaryContent = errors.New("binary content")

// CodeLoader reads source files and tags them with the detected language.
type CodeLoader struct{}

func NewCodeLoader() *CodeLoader { return &CodeLoader{} }

func (l *CodeLoader) Load(ctx context.Context, path string) ([]types.Segment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if enry.IsBinary(data) {
		return nil, ErrBinaryContent
	}

	md := map[string]any{types.MetaFormat: "code"}
	if lang := enry.GetLanguage(filepath.Base(path), data); lang != "" {
		md[types.MetaLanguage] = lang
	}
	return []types.Segment{{Text: decodeText(data), Metadata: md}}, nil
}
