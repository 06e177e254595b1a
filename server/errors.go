package server

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/meikuraledutech/flow"
)

// bind decodes the JSON body into v and checks its struct tags.
func (h *handlers) bind(c fiber.Ctx, v any) error {
	if err := c.Bind().JSON(v); err != nil {
		return &flow.ValidationError{Field: "body", Reason: "invalid json"}
	}
	if err := h.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &flow.ValidationError{Field: strings.ToLower(fe.Field()), Reason: "failed " + fe.Tag()}
		}
		return &flow.ValidationError{Field: "body", Reason: err.Error()}
	}
	return nil
}

func user(c fiber.Ctx) (string, error) {
	u := strings.TrimSpace(c.Get(UserHeader))
	if u == "" {
		return "", &flow.ValidationError{Field: "user", Reason: "missing " + UserHeader + " header"}
	}
	return u, nil
}

// fail maps the error taxonomy onto HTTP. Authoring errors are returned
// verbatim; runtime failures only say that the conversation stopped.
func (h *handlers) fail(c fiber.Ctx, err error) error {
	var (
		ie *flow.IntegrityError
		ve *flow.ValidationError
	)
	switch {
	case errors.As(err, &ie):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"success": false, "error": ie.Error(), "kind": ie.Kind, "node_id": ie.NodeID,
		})
	case errors.As(err, &ve):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": ve.Error()})
	case errors.Is(err, flow.ErrLockConflict):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"success": false, "error": "flow is locked"})
	case errors.Is(err, flow.ErrFlowNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"success": false, "error": "flow not found"})
	case errors.Is(err, flow.ErrNodeNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"success": false, "error": "node not found"})
	case errors.Is(err, flow.ErrSessionNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "conversation not found"})
	case errors.Is(err, flow.ErrSessionCompleted):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "conversation already completed"})
	case errors.Is(err, flow.ErrFlowNotPublished):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "flow is not published"})
	case errors.Is(err, flow.ErrStateCorruption):
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "conversation could not continue"})
	}
	h.Log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "error": "internal error"})
}
