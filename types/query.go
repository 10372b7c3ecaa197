package types

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type Validater interface {
	Validate() map[string]string
}

// ChatParams is the body of POST /chat.
type ChatParams struct {
	Message        string   `json:"message" validate:"required"`
	ConversationID string   `json:"conversation_id,omitempty" validate:"omitempty,max=128"`
	MaxTokens      *int     `json:"max_tokens,omitempty" validate:"omitempty,gt=0,lte=32768"`
	Temperature    *float64 `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
}

// UploadParams is the body of POST /documents/upload.
type UploadParams struct {
	FolderPath   string   `json:"folder_path" validate:"required"`
	FilePatterns []string `json:"file_patterns,omitempty" validate:"omitempty,dive,required"`
}

func Validate(v Validater) map[string]string {
	return v.Validate()
}

func (params *ChatParams) Validate() map[string]string {
	return validateStruct(params)
}

func (params *UploadParams) Validate() map[string]string {
	return validateStruct(params)
}

func validateStruct(v any) map[string]string {
	if err := validate.Struct(v); err != nil {
		errs, ok := err.(validator.ValidationErrors)
		if !ok {
			return map[string]string{"request": err.Error()}
		}
		errors := make(map[string]string)
		for _, e := range errs {
			errors[e.Field()] = fmt.Sprintf("failed on '%s' tag", e.Tag())
		}
		return errors
	}
	return nil
}

// ToRequest converts validated params into the orchestrator request.
func (params *ChatParams) ToRequest() ChatRequest {
	return ChatRequest{
		Message:        params.Message,
		ConversationID: params.ConversationID,
		MaxTokens:      params.MaxTokens,
		Temperature:    params.Temperature,
	}
}

// ChatRequest carries one user message. Nil MaxTokens/Temperature fall back
// to the configured defaults; an empty ConversationID starts a new dialogue.
type ChatRequest struct {
	Message        string
	ConversationID string
	MaxTokens      *int
	Temperature    *float64
}

type ChatResponse struct {
	Response       string       `json:"response"`
	ConversationID string       `json:"conversation_id"`
	Sources        []Source     `json:"sources"`
	Metadata       ChatMetadata `json:"metadata"`
}

type DocumentUploadResponse struct {
	Success        bool     `json:"success"`
	Message        string   `json:"message"`
	ProcessedFiles int      `json:"processed_files"`
	TotalChunks    int      `json:"total_chunks"`
	Details        []string `json:"details"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Version string `json:"version"`
}

type ConversationResponse struct {
	ConversationID string             `json:"conversation_id"`
	Messages       []ConversationTurn `json:"messages"`
}
