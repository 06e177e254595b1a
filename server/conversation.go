package server

import (
	"github.com/gofiber/fiber/v3"

	"github.com/meikuraledutech/flow"
)

type nextRequest struct {
	Input any `json:"input"`
}

type previewRequest struct {
	Nodes       []flow.Node `json:"nodes" validate:"required,min=1"`
	StartNodeID string      `json:"start_node_id" validate:"required"`
}

func (h *handlers) startConversation(c fiber.Ctx) error {
	p, err := h.Runtime.Start(c.Context(), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(p)
}

func (h *handlers) nextTurn(c fiber.Ctx) error {
	var req nextRequest
	if len(c.Body()) > 0 {
		if err := h.bind(c, &req); err != nil {
			return h.fail(c, err)
		}
	}
	p, err := h.Runtime.Next(c.Context(), c.Params("sid"), req.Input)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(p)
}

func (h *handlers) startPreview(c fiber.Ctx) error {
	var req previewRequest
	if err := h.bind(c, &req); err != nil {
		return h.fail(c, err)
	}
	p, err := h.Runtime.StartPreview(c.Context(), req.Nodes, req.StartNodeID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(p)
}

func (h *handlers) nextPreviewTurn(c fiber.Ctx) error {
	var req nextRequest
	if len(c.Body()) > 0 {
		if err := h.bind(c, &req); err != nil {
			return h.fail(c, err)
		}
	}
	p, err := h.Runtime.NextPreview(c.Context(), c.Params("sid"), req.Input)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(p)
}
