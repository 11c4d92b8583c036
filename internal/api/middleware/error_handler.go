package middleware

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/faceguard/internal/domain"
)

// StatusFail is the envelope status of every error response.
const StatusFail = "fail"

func failure(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"status": StatusFail,
		"error": fiber.Map{
			"code":    code,
			"message": message,
		},
	})
}

// ErrorHandler renders errors with the fail envelope. Wrapped causes are
// logged and never sent to the client.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			code := "HTTP_ERROR"
			if fiberErr.Code == fiber.StatusRequestEntityTooLarge {
				code = domain.ErrImageTooLarge.Code
			}
			return failure(c, fiberErr.Code, code, fiberErr.Message)
		}

		var appErr *domain.AppError
		if errors.As(err, &appErr) {
			if appErr.StatusCode >= 500 {
				logger.Error("internal error",
					slog.String("code", appErr.Code),
					slog.String("message", appErr.Message),
					slog.Any("error", appErr.Err),
					slog.String("path", c.Path()),
				)
			} else if appErr.Err != nil {
				logger.Debug("request rejected",
					slog.String("code", appErr.Code),
					slog.Any("error", appErr.Err),
				)
			}

			return failure(c, appErr.StatusCode, appErr.Code, appErr.Message)
		}

		logger.Error("unhandled error",
			slog.Any("error", err),
			slog.String("path", c.Path()),
		)

		return failure(c, fiber.StatusInternalServerError, domain.ErrInternal.Code, domain.ErrInternal.Message)
	}
}
