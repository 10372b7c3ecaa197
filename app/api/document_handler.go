package api

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"ragchat/types"
)

// DocumentService is the ingestion side the document routes need.
type DocumentService interface {
	ProcessDocuments(ctx context.Context, rootPath string, patterns []string) (*types.IngestSummary, error)
	Refresh(ctx context.Context) (*types.IngestSummary, error)
	FolderInfo(ctx context.Context) (*types.FolderInfo, error)
	Status(ctx context.Context) types.StoreStatus
	Clear(ctx context.Context) error
}

type DocumentHandler struct {
	service DocumentService
}

func NewDocumentHandler(s DocumentService) *DocumentHandler {
	return &DocumentHandler{
		service: s,
	}
}

// HandleRefresh clears the index and reloads the documents folder.
func (h *DocumentHandler) HandleRefresh(c *fiber.Ctx) error {
	summary, err := h.service.Refresh(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(uploadResponse(fmt.Sprintf("Successfully refreshed %d documents", summary.ProcessedFiles), summary))
}

func (h *DocumentHandler) HandleUpload(c *fiber.Ctx) error {
	var params types.UploadParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}

	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	summary, err := h.service.ProcessDocuments(c.UserContext(), params.FolderPath, params.FilePatterns)
	if err != nil {
		return err
	}
	return c.JSON(uploadResponse(fmt.Sprintf("Processed %d files successfully.", summary.ProcessedFiles), summary))
}

func (h *DocumentHandler) HandleFolderInfo(c *fiber.Ctx) error {
	info, err := h.service.FolderInfo(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(info)
}

func (h *DocumentHandler) HandleStatus(c *fiber.Ctx) error {
	return c.JSON(h.service.Status(c.UserContext()))
}

func (h *DocumentHandler) HandleClear(c *fiber.Ctx) error {
	if err := h.service.Clear(c.UserContext()); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Document database cleared successfully"})
}

func uploadResponse(msg string, s *types.IngestSummary) types.DocumentUploadResponse {
	details := s.Details
	if details == nil {
		details = []string{}
	}
	return types.DocumentUploadResponse{
		Success:        true,
		Message:        msg,
		ProcessedFiles: s.ProcessedFiles,
		TotalChunks:    s.TotalChunks,
		Details:        details,
	}
}
