package http

import (
	"strconv"

	ozzo "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cast"

	"idgen_server/pkg/apperr"
	"idgen_server/pkg/validation"
)

// nodeQuery reads the optional ?node= parameter. A missing parameter
// selects fallback.
func nodeQuery(c *fiber.Ctx, fallback int64, bits uint8) (int64, error) {
	raw := c.Query("node")
	if raw == "" {
		return fallback, nil
	}
	return parseNode(raw, bits)
}

func parseNode(raw string, bits uint8) (int64, error) {
	node, err := cast.ToInt64E(raw)
	if err != nil {
		return 0, apperr.InvalidInput("node", "must be an integer")
	}
	if err := ozzo.Validate(node, validation.NodeIDRule(bits)); err != nil {
		return 0, apperr.InvalidInput("node", err.Error())
	}
	return node, nil
}

// idParam reads a non-negative decimal id from the route.
func idParam(c *fiber.Ctx, name string) (int64, error) {
	raw := c.Params(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 0 {
		return 0, apperr.InvalidInput(name, "must be a non-negative 64-bit integer")
	}
	return id, nil
}

// validationError turns ozzo field errors into a single apperr with the
// per-field messages as details.
func validationError(err error) error {
	appErr := apperr.ValidationFailed("request validation failed")
	if errs, ok := err.(ozzo.Errors); ok {
		for field, fieldErr := range errs {
			appErr.WithDetail(field, fieldErr.Error())
		}
		return appErr
	}
	return appErr.WithError(err)
}
