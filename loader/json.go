package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"ragchat/types"
)

// JSONLoader validates a JSON file and re-indents it so chunk boundaries
// land on line breaks.
type JSONLoader struct{}

func NewJSONLoader() *JSONLoader { return &JSONLoader{} }

func (l *JSONLoader) Load(ctx context.Context, path string) ([]types.Segment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	pretty, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to format JSON: %w", err)
	}
	return []types.Segment{{
		Text:     string(pretty),
		Metadata: map[string]any{types.MetaFormat: "json"},
	}}, nil
}
