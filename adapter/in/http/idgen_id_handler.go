package http

import (
	"time"

	ozzo "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/gofiber/fiber/v2"

	"idgen_server/core/port/in"
	"idgen_server/infra/middleware"
	"idgen_server/pkg/apperr"
	"idgen_server/pkg/response"
	"idgen_server/pkg/validation"
)

// IDHandler serves id issuing and decoding.
type IDHandler struct {
	service    in.IDService
	nodeIDBits uint8
}

func NewIDHandler(service in.IDService, nodeIDBits uint8) *IDHandler {
	return &IDHandler{service: service, nodeIDBits: nodeIDBits}
}

func (h *IDHandler) Register(router fiber.Router) {
	ids := router.Group("/ids")
	ids.Get("/next", middleware.NoCache(), h.Next)
	ids.Post("/batch", middleware.NoCache(), middleware.MaxBodySize(4*1024), h.Batch)
	ids.Get("/:id/decode", middleware.PublicCache(time.Hour), h.Decode)
	ids.Get("/:id/opaque", h.Opaque)

	router.Get("/opaque/:token", h.FromOpaque)
}

// Next handles GET /ids/next?node=
func (h *IDHandler) Next(c *fiber.Ctx) error {
	node, err := nodeQuery(c, h.service.DefaultNodeID(), h.nodeIDBits)
	if err != nil {
		return err
	}
	c.Locals("node_id", node)

	issued, err := h.service.Next(c.UserContext(), node)
	if err != nil {
		return err
	}
	return response.OK(c, issued)
}

type batchRequest struct {
	Node  *int64 `json:"node"`
	Count int    `json:"count"`
}

func (r *batchRequest) validate(nodeIDBits uint8, maxCount int) error {
	return ozzo.ValidateStruct(r,
		ozzo.Field(&r.Node, ozzo.When(r.Node != nil, validation.NodeIDRule(nodeIDBits))),
		ozzo.Field(&r.Count, validation.CountRule(maxCount)),
	)
}

// Batch handles POST /ids/batch {"node": 1, "count": 100}
func (h *IDHandler) Batch(c *fiber.Ctx) error {
	var req batchRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("invalid JSON body")
	}
	if err := req.validate(h.nodeIDBits, h.service.MaxBatchSize()); err != nil {
		return validationError(err)
	}

	node := h.service.DefaultNodeID()
	if req.Node != nil {
		node = *req.Node
	}
	c.Locals("node_id", node)

	batch, err := h.service.Batch(c.UserContext(), node, req.Count)
	if err != nil {
		return err
	}
	return response.OKWithMeta(c, batch, &response.Meta{Total: len(batch.IDs), NodeID: node})
}

// Decode handles GET /ids/:id/decode?node=
func (h *IDHandler) Decode(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	node, err := nodeQuery(c, -1, h.nodeIDBits)
	if err != nil {
		return err
	}

	decoded, err := h.service.Decode(id, node)
	if err != nil {
		return err
	}
	return response.OK(c, decoded)
}

// Opaque handles GET /ids/:id/opaque
func (h *IDHandler) Opaque(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}
	token, err := h.service.EncodeOpaque(id)
	if err != nil {
		return err
	}
	return response.OK(c, fiber.Map{"id": id, "token": token})
}

// FromOpaque handles GET /opaque/:token
func (h *IDHandler) FromOpaque(c *fiber.Ctx) error {
	id, err := h.service.DecodeOpaque(c.Params("token"))
	if err != nil {
		return err
	}
	decoded, err := h.service.Decode(id, -1)
	if err != nil {
		return err
	}
	return response.OK(c, decoded)
}
