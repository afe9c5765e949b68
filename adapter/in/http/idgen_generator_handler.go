package http

import (
	"github.com/gofiber/fiber/v2"

	"idgen_server/core/port/in"
	"idgen_server/pkg/apperr"
	"idgen_server/pkg/metrics"
	"idgen_server/pkg/response"
)

// GeneratorHandler exposes the generator registry and counters.
type GeneratorHandler struct {
	service    in.IDService
	metrics    *metrics.GeneratorMetrics
	nodeIDBits uint8
}

func NewGeneratorHandler(service in.IDService, m *metrics.GeneratorMetrics, nodeIDBits uint8) *GeneratorHandler {
	return &GeneratorHandler{service: service, metrics: m, nodeIDBits: nodeIDBits}
}

// Register mounts the routes. admin guards the mutating routes.
func (h *GeneratorHandler) Register(router fiber.Router, admin ...fiber.Handler) {
	gens := router.Group("/generators")
	gens.Get("/", h.List)
	gens.Get("/fleet", h.Fleet)
	gens.Delete("/:node", append(admin, h.Remove)...)

	router.Get("/metrics", h.Metrics)
}

func (h *GeneratorHandler) List(c *fiber.Ctx) error {
	infos := h.service.Generators()
	return response.OKWithMeta(c, infos, &response.Meta{Total: len(infos), NodeID: h.service.DefaultNodeID()})
}

func (h *GeneratorHandler) Fleet(c *fiber.Ctx) error {
	infos, err := h.service.Fleet(c.UserContext())
	if err != nil {
		return err
	}
	return response.OKWithMeta(c, infos, &response.Meta{Total: len(infos), NodeID: h.service.DefaultNodeID()})
}

// Remove handles DELETE /generators/:node
func (h *GeneratorHandler) Remove(c *fiber.Ctx) error {
	node, err := parseNode(c.Params("node"), h.nodeIDBits)
	if err != nil {
		return err
	}
	c.Locals("node_id", node)

	removed, err := h.service.RemoveGenerator(c.UserContext(), node)
	if err != nil {
		return err
	}
	if !removed {
		return apperr.NotFound("generator")
	}
	return response.NoContent(c)
}

func (h *GeneratorHandler) Metrics(c *fiber.Ctx) error {
	if h.metrics == nil {
		return apperr.NotFound("metrics")
	}
	return response.OK(c, h.metrics.Snapshot())
}
