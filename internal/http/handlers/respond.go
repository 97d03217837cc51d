package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"ecocycle/internal/domain"
	applog "ecocycle/internal/log"
	"ecocycle/internal/validate"
)

var statusByKind = map[domain.Kind]int{
	domain.KindValidation:         fiber.StatusUnprocessableEntity,
	domain.KindNotFound:           fiber.StatusNotFound,
	domain.KindForbidden:          fiber.StatusForbidden,
	domain.KindInvalidTransition:  fiber.StatusConflict,
	domain.KindOutOfStock:         fiber.StatusConflict,
	domain.KindInsufficientPoints: fiber.StatusConflict,
	domain.KindLocationRequired:   fiber.StatusUnprocessableEntity,
	domain.KindAlreadyReviewed:    fiber.StatusConflict,
	domain.KindInvalidCoordinate:  fiber.StatusUnprocessableEntity,
	domain.KindAlreadyTaken:       fiber.StatusConflict,
	domain.KindItemNotFound:       fiber.StatusNotFound,
}

// fail writes err as {"error":{kind,message,fields}}. Internal errors are
// logged with their cause and answered with a fixed message.
func fail(c *fiber.Ctx, err error) error {
	var de *domain.Error
	if errors.As(err, &de) {
		status, ok := statusByKind[de.Kind]
		if ok {
			if status == fiber.StatusForbidden {
				applog.Security(c, "access.denied", map[string]any{"message": de.Message})
			}
			body := fiber.Map{"kind": de.Kind, "message": de.Message}
			if len(de.Fields) > 0 {
				body["fields"] = de.Fields
			}
			return c.Status(status).JSON(fiber.Map{"error": body})
		}
	}
	applog.Error(c, "server.error", err, nil)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": fiber.Map{"kind": domain.KindInternal, "message": "Something went wrong. Please try again."},
	})
}

// ErrorHandler catches errors that escape a handler (unknown routes, body
// limits, panics recovered upstream).
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) && fe.Code < fiber.StatusInternalServerError {
		return c.Status(fe.Code).JSON(fiber.Map{
			"error": fiber.Map{"kind": kindForStatus(fe.Code), "message": fe.Message},
		})
	}
	return fail(c, err)
}

func kindForStatus(code int) string {
	switch code {
	case fiber.StatusNotFound:
		return string(domain.KindNotFound)
	case fiber.StatusTooManyRequests:
		return "rate_limited"
	case fiber.StatusRequestEntityTooLarge:
		return "too_large"
	default:
		return string(domain.KindValidation)
	}
}

func page(c *fiber.Ctx, data any, p domain.Page) error {
	return c.JSON(fiber.Map{"data": data, "pagination": p})
}

// bind decodes the JSON body into v.
func bind(c *fiber.Ctx, v any) error {
	if err := c.BodyParser(v); err != nil {
		applog.Security(c, "validation.fail", map[string]any{"field": "body"})
		return domain.Errf(domain.KindValidation, "malformed request body")
	}
	return nil
}

// pathID reads and validates the :id route parameter.
func pathID(c *fiber.Ctx) (string, error) {
	id, ok := validate.ID(c.Params("id"))
	if !ok {
		applog.Security(c, "validation.fail", map[string]any{"field": "id"})
		return "", domain.Errf(domain.KindNotFound, "not found")
	}
	return id, nil
}

func paging(c *fiber.Ctx) (int, int) {
	return validate.Page(c.Query("page"), c.Query("limit"))
}
