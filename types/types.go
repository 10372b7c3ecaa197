package types

import (
	"maps"
	"time"
)

// Metadata keys attached to every stored chunk.
const (
	MetaSource   = "source"
	MetaFileName = "file_name"
	MetaFileType = "file_type"
	MetaFileSize = "file_size"
	MetaChunk    = "chunk_index"
	MetaPage     = "page"
	MetaLanguage = "language"
	MetaFormat   = "format"
)

// Segment is one piece of raw text produced by a loader, in file order.
type Segment struct {
	Text     string
	Metadata map[string]any
}

// Chunk is a unit of indexed text.
type Chunk struct {
	ID            string
	Text          string
	SourcePath    string
	FileName      string
	FileExtension string
	FileSize      int64
	Index         int            // sequence number within the source file
	Extra         map[string]any // loader metadata (page, language, ...)
}

// Metadata flattens the chunk provenance into the map stored next to the
// embedding. Provenance keys win over loader keys with the same name.
func (c Chunk) Metadata() map[string]any {
	md := make(map[string]any, len(c.Extra)+5)
	maps.Copy(md, c.Extra)
	md[MetaSource] = c.SourcePath
	md[MetaFileName] = c.FileName
	md[MetaFileType] = c.FileExtension
	md[MetaFileSize] = c.FileSize
	md[MetaChunk] = c.Index
	return md
}

// RetrievalResult is a single nearest-neighbour hit.
// Score is 1 - distance and is not clamped to [0,1].
type RetrievalResult struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
	Distance float64        `json:"distance"`
	Score    float64        `json:"score"`
	Rank     int            `json:"rank"`
}

// MetaString returns a string metadata value or fallback when missing.
func (r RetrievalResult) MetaString(key, fallback string) string {
	if v, ok := r.Metadata[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConversationTurn is one stored message of a dialogue.
type ConversationTurn struct {
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// Message is what the generation gateway consumes.
type Message struct {
	Role    Role
	Content string
}

// IngestSummary is returned by every ingestion call, including partial failures.
type IngestSummary struct {
	ProcessedFiles int      `json:"processed_files"`
	TotalChunks    int      `json:"total_chunks"`
	Details        []string `json:"details"`
}

type SupportedFile struct {
	Name      string  `json:"name"`
	Path      string  `json:"path"`
	SizeMB    float64 `json:"size_mb"`
	Extension string  `json:"extension"`
}

// FolderInfo describes the configured documents folder.
type FolderInfo struct {
	FolderPath          string          `json:"folder_path"`
	Exists              bool            `json:"exists"`
	TotalFiles          int             `json:"total_files"`
	FilesByExtension    map[string]int  `json:"files_by_extension"`
	SupportedFilesCount int             `json:"supported_files_count"`
	SupportedFiles      []SupportedFile `json:"supported_files"`
	AutoLoadEnabled     bool            `json:"auto_load_enabled"`
}

const (
	StatusHealthy = "healthy"
	StatusEmpty   = "empty"
	StatusError   = "error"
)

type StoreStatus struct {
	CollectionName string `json:"collection_name"`
	DocumentCount  int    `json:"document_count"`
	Status         string `json:"status"`
	Error          string `json:"error,omitempty"`
}

// Source is the client-facing description of a retrieved passage.
type Source struct {
	FilePath       string  `json:"file_path"`
	FileName       string  `json:"file_name"`
	FileType       string  `json:"file_type"`
	RelevanceScore float64 `json:"relevance_score"`
	ContentPreview string  `json:"content_preview"`
}

type ChatMetadata struct {
	RetrievedDocuments int       `json:"retrieved_documents"`
	Timestamp          time.Time `json:"timestamp"`
	Model              string    `json:"model"`
	Temperature        float64   `json:"temperature"`
	MaxTokens          int       `json:"max_tokens"`
	PromptTokens       int       `json:"prompt_tokens"`
}

type ChatResult struct {
	Answer         string       `json:"answer"`
	ConversationID string       `json:"conversation_id"`
	Sources        []Source     `json:"sources"`
	Metadata       ChatMetadata `json:"metadata"`
}
