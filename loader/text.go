package loader

import (
	"context"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"ragchat/types"
)

// TextLoader reads a file as UTF-8 text. Invalid byte sequences are replaced
// rather than rejected, so odd encodings still index.
type TextLoader struct {
	format string
}

func NewTextLoader(format string) *TextLoader {
	return &TextLoader{format: format}
}

func (l *TextLoader) Load(ctx context.Context, path string) ([]types.Segment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return []types.Segment{{
		Text:     decodeText(data),
		Metadata: map[string]any{types.MetaFormat: l.format},
	}}, nil
}

func decodeText(data []byte) string {
	s := string(data)
	s = strings.TrimPrefix(s, "\ufeff")
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "\uFFFD")
	}
	return s
}
