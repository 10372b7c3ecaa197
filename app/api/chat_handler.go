package api

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"ragchat/types"
)

// ChatService answers messages and exposes the stored conversations.
type ChatService interface {
	Chat(ctx context.Context, req types.ChatRequest) (*types.ChatResult, error)
	History(id string) ([]types.ConversationTurn, error)
	ClearConversation(id string)
	ListConversations() []string
}

type ChatHandler struct {
	service ChatService
}

func NewChatHandler(s ChatService) *ChatHandler {
	return &ChatHandler{
		service: s,
	}
}

func (h *ChatHandler) HandleChat(c *fiber.Ctx) error {
	var params types.ChatParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}

	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	res, err := h.service.Chat(c.UserContext(), params.ToRequest())
	if err != nil {
		return err
	}

	sources := res.Sources
	if sources == nil {
		sources = []types.Source{}
	}
	return c.JSON(types.ChatResponse{
		Response:       res.Answer,
		ConversationID: res.ConversationID,
		Sources:        sources,
		Metadata:       res.Metadata,
	})
}

func (h *ChatHandler) HandleListConversations(c *fiber.Ctx) error {
	ids := h.service.ListConversations()
	return c.JSON(fiber.Map{
		"conversations": ids,
		"count":         len(ids),
	})
}

func (h *ChatHandler) HandleGetConversation(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return ErrInvalidID()
	}
	turns, err := h.service.History(id)
	if err != nil {
		if types.IsKind(err, types.KindNotFound) {
			return ErrNotFound(id, "conversation")
		}
		return err
	}
	return c.JSON(types.ConversationResponse{
		ConversationID: id,
		Messages:       turns,
	})
}

func (h *ChatHandler) HandleDeleteConversation(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return ErrInvalidID()
	}
	h.service.ClearConversation(id)
	return c.JSON(fiber.Map{"message": "Conversation " + id + " cleared"})
}
