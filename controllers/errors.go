package controller

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgconn"

	"hackreg/apperr"
)

// respondError maps domain errors to HTTP statuses. Anything outside
// the known taxonomy is a 500 with a generic body; the detail stays in
// the logs.
func respondError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, apperr.ErrInvalidToken):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, apperr.ErrPermission):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, apperr.ErrStateConflict):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, apperr.ErrValidation):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Internal server error",
	})
}

// retryTransient runs op, repeating it once if the first attempt fails
// on a transient store error (serialization failure or deadlock). A
// second transient failure surfaces as a state conflict so the client
// sees a retryable 409 rather than a bare 500. Semantic rejections such
// as a full team are deterministic and are never retried.
func retryTransient(op func() error) error {
	err := op()
	if !isTransient(err) {
		return err
	}
	if err = op(); isTransient(err) {
		return apperr.StateConflict("store contention, try again")
	}
	return err
}

// isTransient reports whether err is a Postgres serialization failure
// (40001) or deadlock (40P01), the two error classes worth a retry.
func isTransient(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}
