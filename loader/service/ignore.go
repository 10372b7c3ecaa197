package service

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

// ignoreFiles are read from the documents root, in this order.
var ignoreFiles = []string{".gitignore", ".ragignore"}

var defaultIgnorePatterns = []string{
	".git",
	"node_modules",
	"__pycache__",
	".venv",
	".DS_Store",
	"*.swp",
	"*~",
}

// IgnoreFilter matches paths relative to the documents root.
type IgnoreFilter struct {
	patterns *gitignore.GitIgnore
}

func NewIgnoreFilter(root string) (*IgnoreFilter, error) {
	patterns := append([]string(nil), defaultIgnorePatterns...)
	for _, name := range ignoreFiles {
		path := filepath.Join(root, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		lines, err := readIgnoreFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		patterns = append(patterns, lines...)
	}
	return &IgnoreFilter{patterns: gitignore.CompileIgnoreLines(patterns...)}, nil
}

// ShouldIgnore reports whether rel (slash or OS separated) is excluded.
func (f *IgnoreFilter) ShouldIgnore(rel string) bool {
	if f == nil || f.patterns == nil {
		return false
	}
	return f.patterns.MatchesPath(filepath.ToSlash(rel))
}

func readIgnoreFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var patterns []string
	sc := bufio.NewScanner(file)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	return patterns, sc.Err()
}
