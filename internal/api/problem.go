package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	perrors "github.com/p-blackswan/pulse/internal/errors"
)

// ProblemDetail follows RFC 7807 for error responses.
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

// problemResponse returns an RFC 7807 Problem Detail error response.
func problemResponse(c *fiber.Ctx, status int, errType, title, detail string) error {
	return c.Status(status).JSON(ProblemDetail{
		Type:     errType,
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: c.Path(),
	})
}

func badRequest(c *fiber.Ctx, errType, detail string) error {
	return problemResponse(c, fiber.StatusBadRequest, errType, "Bad Request", detail)
}

// classify maps a domain error to its HTTP status and problem type.
func classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, perrors.ErrNotFound):
		return fiber.StatusNotFound, "not_found", "Not Found"
	case errors.Is(err, perrors.ErrMalformedMonth):
		return fiber.StatusBadRequest, "malformed_month", "Bad Request"
	case errors.Is(err, perrors.ErrInvalidInput):
		return fiber.StatusBadRequest, "invalid_input", "Bad Request"
	case errors.Is(err, perrors.ErrInvalidTransition):
		return fiber.StatusConflict, "invalid_transition", "Conflict"
	case errors.Is(err, perrors.ErrConflict):
		return fiber.StatusConflict, "conflict", "Conflict"
	case errors.Is(err, perrors.ErrUnavailable):
		return fiber.StatusServiceUnavailable, "upstream_unavailable", "Service Unavailable"
	case errors.Is(err, perrors.ErrTimeout):
		return fiber.StatusGatewayTimeout, "timeout", "Gateway Timeout"
	default:
		return fiber.StatusInternalServerError, "internal_error", "Internal Server Error"
	}
}

// errorResponse writes the problem for err. Internal errors are logged and
// their detail is not exposed.
func (s *Server) errorResponse(c *fiber.Ctx, err error) error {
	status, errType, title := classify(err)
	detail := err.Error()
	if status == fiber.StatusInternalServerError {
		s.logger.Error().Err(err).
			Str("path", c.Path()).
			Str("method", c.Method()).
			Interface("request_id", c.Locals("request_id")).
			Msg("request failed")
		if s.metrics != nil {
			s.metrics.RecordError("api", errType)
		}
		detail = "An internal error occurred"
	}
	return problemResponse(c, status, errType, title, detail)
}

func customErrorHandler(s *Server) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return problemResponse(c, fe.Code, "http_error", fe.Message, fe.Error())
		}
		return s.errorResponse(c, err)
	}
}
