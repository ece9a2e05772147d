package apperr

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrPayment           = errors.New("payment processor error")
)

func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func Conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

func InvalidTransition(entity string, from, to any) error {
	return fmt.Errorf("%w: %s cannot move from %v to %v", ErrInvalidTransition, entity, from, to)
}

// Detailer is implemented by errors that carry a structured body for the client.
type Detailer interface {
	Details() any
}

// IsUniqueViolation reports a unique-constraint failure from either the translated gorm
// error or the raw postgres error.
func IsUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func Status(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, ErrInsufficientStock),
		errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrConflict):
		return fiber.StatusConflict
	case errors.Is(err, ErrPayment):
		return fiber.StatusPaymentRequired
	}
	return fiber.StatusInternalServerError
}

// ErrorHandler renders handler errors as {"error": ..., "details": ...}.
// Unclassified errors are logged and hidden behind a generic message.
func ErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
		}

		status := Status(err)
		if status == fiber.StatusInternalServerError {
			log.Error("unhandled error",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.Error(err))
			return c.Status(status).JSON(fiber.Map{"error": "unexpected server error"})
		}

		body := fiber.Map{"error": err.Error()}
		var d Detailer
		if errors.As(err, &d) {
			body["details"] = d.Details()
		}
		return c.Status(status).JSON(body)
	}
}
