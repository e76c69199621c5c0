package utils

import (
	"errors"

	apperrors "promos/internal/errors"

	"github.com/gofiber/fiber/v2"
)

// Respond sends a JSON response with the specified status code.
func Respond(c *fiber.Ctx, status int, data interface{}) error {
	return c.Status(status).JSON(data)
}

// Success sends a successful JSON response.
func Success(c *fiber.Ctx, data interface{}) error {
	return Respond(c, fiber.StatusOK, data)
}

// Created sends a JSON response with status 201.
func Created(c *fiber.Ctx, data interface{}) error {
	return Respond(c, fiber.StatusCreated, data)
}

// BadRequest sends a JSON error response with status 400.
func BadRequest(c *fiber.Ctx, message string) error {
	return Respond(c, fiber.StatusBadRequest, fiber.Map{"error": message})
}

// Unauthorized sends a JSON error response with status 401.
func Unauthorized(c *fiber.Ctx, message string) error {
	return Respond(c, fiber.StatusUnauthorized, fiber.Map{"error": message})
}

// Forbidden sends a JSON error response with status 403.
func Forbidden(c *fiber.Ctx, message string) error {
	return Respond(c, fiber.StatusForbidden, fiber.Map{"error": message})
}

// InternalError sends a JSON error response with status 500.
func InternalError(c *fiber.Ctx, message string) error {
	return Respond(c, fiber.StatusInternalServerError, fiber.Map{"error": message})
}

// DomainError maps a ledger error onto a status code:
// validation 400, insufficient funds 422, other business rejections 409,
// transient 503. Anything else is a 500 with a generic message.
func DomainError(c *fiber.Ctx, err error) error {
	var de *apperrors.DomainError
	if !errors.As(err, &de) {
		return InternalError(c, "internal error")
	}

	status := fiber.StatusInternalServerError
	switch de.Kind {
	case apperrors.KindValidation:
		status = fiber.StatusBadRequest
	case apperrors.KindBusiness:
		status = fiber.StatusConflict
		if errors.Is(err, apperrors.ErrInsufficientFunds) {
			status = fiber.StatusUnprocessableEntity
		}
	case apperrors.KindTransient:
		status = fiber.StatusServiceUnavailable
		c.Set(fiber.HeaderRetryAfter, "1")
	}
	return Respond(c, status, fiber.Map{
		"error":     de.Message,
		"code":      de.Code,
		"retryable": apperrors.IsRetryable(err),
	})
}
