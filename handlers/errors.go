package handlers

import (
	"errors"

	"referral-ledger/services"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// statusFor maps ledger error kinds to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, services.ErrInsufficientFunds):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, services.ErrConflict), errors.Is(err, services.ErrRunInProgress):
		return fiber.StatusConflict
	case errors.Is(err, services.ErrSettingsUnavailable), errors.Is(err, services.ErrTransaction):
		return fiber.StatusServiceUnavailable
	}
	return fiber.StatusInternalServerError
}

func (h *LedgerHandler) fail(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	msg := services.Message(err)
	if status >= fiber.StatusInternalServerError {
		h.log.Error("request failed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
		msg = "temporarily unavailable, please retry"
		if errors.Is(err, services.ErrSettingsUnavailable) {
			msg = services.Message(err)
		}
	}
	return c.Status(status).JSON(fiber.Map{"error": msg})
}

// uuidParam returns the path parameter name when it is a valid UUID.
func uuidParam(c *fiber.Ctx, name string) (string, bool) {
	id := c.Params(name)
	return id, uuid.Validate(id) == nil
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}
