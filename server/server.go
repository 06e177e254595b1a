// Package server exposes the flow engine over HTTP with fiber.
package server

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/meikuraledutech/flow"
)

// UserHeader carries the authenticated editor id, set by the gateway in front of this service.
const UserHeader = "X-User-ID"

// Deps are the collaborators the HTTP layer calls into.
type Deps struct {
	Store    flow.Store
	Compiler *flow.Compiler
	Lock     *flow.EditLock
	Runtime  *flow.Runtime
	Log      zerolog.Logger
}

type handlers struct {
	Deps
	validate *validator.Validate
}

// New builds the fiber app with every route registered.
func New(d Deps) *fiber.App {
	h := &handlers{Deps: d, validate: validator.New()}
	app := fiber.New()
	app.Use(recover.New())
	app.Use(requestLogger(d.Log))

	app.Get("/healthz", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// ── Authoring ─────────────────────────────────────────────────────
	app.Post("/flows", h.createFlow)
	app.Get("/flows/:id", h.getFlow)
	app.Put("/flows/:id/graph", h.saveGraph)
	app.Post("/flows/:id/validate", h.validateGraph)
	app.Post("/flows/:id/lock", h.acquireLock)
	app.Post("/flows/:id/lock/refresh", h.refreshLock)
	app.Delete("/flows/:id/lock", h.releaseLock)
	app.Patch("/flows/:id/nodes/:nodeID", h.updateNode)
	app.Delete("/flows/:id/nodes/:nodeID", h.deleteNode)

	// ── Conversations ─────────────────────────────────────────────────
	app.Post("/flows/:id/conversations", h.startConversation)
	app.Post("/conversations/:sid/next", h.nextTurn)
	app.Post("/preview/conversations", h.startPreview)
	app.Post("/preview/conversations/:sid/next", h.nextPreviewTurn)

	return app
}

func requestLogger(log zerolog.Logger) fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		log.Debug().
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", c.Response().StatusCode()).
			Dur("took", time.Since(start)).
			Msg("request")
		return err
	}
}
