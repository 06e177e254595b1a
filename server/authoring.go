package server

import (
	"github.com/gofiber/fiber/v3"

	"github.com/meikuraledutech/flow"
)

type createFlowRequest struct {
	ChatbotID string `json:"chatbot_id" validate:"required"`
}

type saveGraphRequest struct {
	Nodes       []flow.Node `json:"nodes" validate:"required,min=1"`
	StartNodeID string      `json:"start_node_id" validate:"required"`
	Publish     bool        `json:"publish"`
	ChatbotID   string      `json:"chatbot_id" validate:"required"`
}

type validateRequest struct {
	Nodes       []flow.Node `json:"nodes" validate:"required,min=1"`
	StartNodeID string      `json:"start_node_id"`
}

func (h *handlers) createFlow(c fiber.Ctx) error {
	var req createFlowRequest
	if err := h.bind(c, &req); err != nil {
		return h.fail(c, err)
	}
	f, err := h.Store.CreateFlow(c.Context(), &flow.Flow{ChatbotID: req.ChatbotID})
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(f)
}

func (h *handlers) getFlow(c fiber.Ctx) error {
	f, err := h.Store.GetFlow(c.Context(), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}
	if f == nil {
		return h.fail(c, flow.ErrFlowNotFound)
	}
	nodes, err := h.Store.ListNodes(c.Context(), f.ID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"flow": f, "nodes": nodes, "locked": f.Lock != nil})
}

func (h *handlers) saveGraph(c fiber.Ctx) error {
	u, err := user(c)
	if err != nil {
		return h.fail(c, err)
	}
	var req saveGraphRequest
	if err := h.bind(c, &req); err != nil {
		return h.fail(c, err)
	}
	res, err := h.Compiler.Save(c.Context(), flow.SaveRequest{
		FlowID:      c.Params("id"),
		ChatbotID:   req.ChatbotID,
		User:        u,
		Nodes:       req.Nodes,
		StartNodeID: req.StartNodeID,
		Publish:     req.Publish,
	})
	if err != nil {
		return h.fail(c, err)
	}
	msg := "draft saved"
	if req.Publish {
		msg = "flow published"
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": msg,
		"flow":    res.Flow,
		"nodes":   res.Nodes,
		"id_map":  res.IDs,
	})
}

func (h *handlers) validateGraph(c fiber.Ctx) error {
	var req validateRequest
	if err := h.bind(c, &req); err != nil {
		return h.fail(c, err)
	}
	strict := c.Query("strict") == "true"
	if err := flow.Validate(req.Nodes, req.StartNodeID, strict); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "strict": strict})
}

func (h *handlers) acquireLock(c fiber.Ctx) error {
	u, err := user(c)
	if err != nil {
		return h.fail(c, err)
	}
	if err := h.Lock.Acquire(c.Context(), c.Params("id"), u); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "message": "locked"})
}

func (h *handlers) refreshLock(c fiber.Ctx) error {
	u, err := user(c)
	if err != nil {
		return h.fail(c, err)
	}
	if err := h.Lock.Refresh(c.Context(), c.Params("id"), u); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "message": "lock refreshed"})
}

func (h *handlers) releaseLock(c fiber.Ctx) error {
	u, err := user(c)
	if err != nil {
		return h.fail(c, err)
	}
	if err := h.Lock.Release(c.Context(), c.Params("id"), u); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "message": "unlocked"})
}

func (h *handlers) updateNode(c fiber.Ctx) error {
	u, err := user(c)
	if err != nil {
		return h.fail(c, err)
	}
	var node flow.Node
	if err := c.Bind().JSON(&node); err != nil {
		return h.fail(c, &flow.ValidationError{Field: "body", Reason: "invalid json"})
	}
	node.ID = c.Params("nodeID")
	saved, err := h.Compiler.UpdateNode(c.Context(), c.Params("id"), u, node)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(saved)
}

func (h *handlers) deleteNode(c fiber.Ctx) error {
	u, err := user(c)
	if err != nil {
		return h.fail(c, err)
	}
	res, err := h.Compiler.DeleteNode(c.Context(), c.Params("id"), c.Params("nodeID"), u)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "deleted": res.Deleted})
}
