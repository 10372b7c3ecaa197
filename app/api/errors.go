package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"ragchat/types"
)

// ErrorHandler renders every handler error as JSON. Classified errors get the
// status of their kind; unclassified ones are 500 and logged in full.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var apiErr Error
	if errors.As(err, &apiErr) {
		return c.Status(apiErr.Code).JSON(apiErr)
	}
	var valErr ValidationError
	if errors.As(err, &valErr) {
		return c.Status(valErr.Status).JSON(valErr)
	}
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(NewError(fiberErr.Code, fiberErr.Message))
	}

	code := StatusFor(err)
	log := slog.Warn
	if code >= fiber.StatusInternalServerError {
		log = slog.Error
	}
	log("request failed", "method", c.Method(), "path", c.Path(), "status", code, "error", err)
	return c.Status(code).JSON(NewError(code, err.Error()))
}

// StatusFor maps an error's kind to its HTTP status.
func StatusFor(err error) int {
	if errors.Is(err, context.DeadlineExceeded) && !types.IsKind(err, types.KindConnectivity) {
		return fiber.StatusGatewayTimeout
	}
	switch types.KindOf(err) {
	case types.KindNotFound:
		return fiber.StatusNotFound
	case types.KindValidation:
		return fiber.StatusBadRequest
	case types.KindLoad:
		return fiber.StatusUnprocessableEntity
	case types.KindConnectivity:
		return fiber.StatusServiceUnavailable
	case types.KindAuth, types.KindProvider:
		return fiber.StatusBadGateway
	case types.KindRateLimited:
		return fiber.StatusTooManyRequests
	default:
		return fiber.StatusInternalServerError
	}
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"error"`
}

type ValidationError struct {
	Status int               `json:"status"`
	Errors map[string]string `json:"errors"`
}

func (e ValidationError) Error() string {
	return "validation failed"
}

func NewValidationError(errors map[string]string) ValidationError {
	return ValidationError{
		Status: fiber.StatusUnprocessableEntity,
		Errors: errors,
	}
}

// Error implements the Error interface
func (e Error) Error() string {
	return e.Message
}

func NewError(code int, err string) Error {
	return Error{
		Code:    code,
		Message: err,
	}
}

func ErrBadRequest() Error {
	return Error{
		Code:    fiber.StatusBadRequest,
		Message: "invalid JSON request",
	}
}

func ErrInvalidID() Error {
	return Error{
		Code:    fiber.StatusBadRequest,
		Message: "invalid id given",
	}
}

func ErrNotFound[T any](arg T, resource string) Error {
	return Error{
		Code:    fiber.StatusNotFound,
		Message: fmt.Sprintf("%s with %v not found", resource, arg),
	}
}
