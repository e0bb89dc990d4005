package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/edubill-dev/edubill/internal/model"
	"github.com/edubill-dev/edubill/internal/store"
)

func jsonOK(c *fiber.Ctx, message string, data any) error {
	if message == "" {
		message = "ok"
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"message": message,
		"data":    data,
	})
}

func jsonCreated(c *fiber.Ctx, message string, data any) error {
	if message == "" {
		message = "created"
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"message": message,
		"data":    data,
	})
}

func jsonError(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   message,
	})
}

// statusFor maps a service error to an HTTP status.
func statusFor(err error) int {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, store.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, model.ErrValidation),
		errors.Is(err, model.ErrBillingCycleTooShort),
		errors.Is(err, model.ErrMissingPaymentInstrument):
		return fiber.StatusBadRequest
	case errors.Is(err, model.ErrChargeNotPayable),
		errors.Is(err, model.ErrInvalidTransition),
		errors.Is(err, store.ErrDuplicate):
		return fiber.StatusConflict
	case errors.Is(err, model.ErrInsufficientBalance),
		errors.Is(err, model.ErrNoEligibleAccounts):
		return fiber.StatusUnprocessableEntity
	}
	return fiber.StatusInternalServerError
}

// errorHandler is the fiber ErrorHandler: every error returned by a handler
// is rendered as a JSON error body.
func errorHandler(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	message := err.Error()
	if status == fiber.StatusInternalServerError {
		message = "internal error"
	}
	return jsonError(c, status, message)
}
