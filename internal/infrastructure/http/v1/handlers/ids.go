// Package handlers provides HTTP request handlers.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"salonid/internal/core/apperror"
	"salonid/internal/domain/allocator"
	"salonid/internal/infrastructure/http/v1/dto"
)

// IDHandler exposes the allocator over HTTP.
type IDHandler struct {
	*BaseHandler
	service *allocator.Service
}

// NewIDHandler creates a new identifier handler.
func NewIDHandler(base *BaseHandler, service *allocator.Service) *IDHandler {
	return &IDHandler{BaseHandler: base, service: service}
}

// Generate issues one identifier.
// POST /api/v1/ids
func (h *IDHandler) Generate(c *gin.Context) {
	var req dto.GenerateRequest
	if !h.BindJSON(c, &req) {
		return
	}

	id, err := h.service.Generate(c.Request.Context(), req.EntityType, req.Scope, req.Metadata)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, id)
}

// GenerateBatch issues up to count identifiers.
// POST /api/v1/ids/batch
func (h *IDHandler) GenerateBatch(c *gin.Context) {
	var req dto.GenerateBatchRequest
	if !h.BindJSON(c, &req) {
		return
	}

	ids, err := h.service.GenerateBatch(c.Request.Context(), req.EntityType, req.Scope, req.Count, req.Metadata)
	if err != nil {
		h.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.BatchResponse{IDs: ids, Count: len(ids), Requested: req.Count})
}

// Get returns the registry record of an identifier.
// GET /api/v1/ids/:id
func (h *IDHandler) Get(c *gin.Context) {
	rec, err := h.service.Lookup(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromGeneratedID(rec))
}

// Validate reports whether an identifier was issued.
// GET /api/v1/ids/:id/validate?entityType=cliente
func (h *IDHandler) Validate(c *gin.Context) {
	var q dto.ValidateQuery
	if !h.BindQuery(c, &q) {
		return
	}
	id := c.Param("id")

	valid, err := h.service.Validate(c.Request.Context(), id, q.EntityType)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.ValidateResponse{ID: id, EntityType: q.EntityType, Valid: valid})
}

// Stats returns issuance and capacity statistics.
// GET /api/v1/ids/stats?entityType=cliente&scope=sede-1
func (h *IDHandler) Stats(c *gin.Context) {
	var q dto.StatsQuery
	if !h.BindQuery(c, &q) {
		return
	}

	report, err := h.service.Stats(c.Request.Context(), q.EntityType, q.Scope)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, report)
}

// Entities lists the prefix table.
// GET /api/v1/entities
func (h *IDHandler) Entities(c *gin.Context) {
	table := h.service.PrefixTable()
	out := make([]dto.EntityResponse, 0, len(table))
	for _, entity := range h.service.Entities() {
		out = append(out, dto.EntityResponse{EntityType: entity, Prefix: table[entity]})
	}
	h.OK(c, out)
}

// ResetSequence clears one sequence key and its claims.
// DELETE /api/v1/admin/sequences/:prefix/:digits?scope=sede-1
func (h *IDHandler) ResetSequence(c *gin.Context) {
	var q dto.ResetQuery
	if !h.BindQuery(c, &q) {
		return
	}
	digits, err := strconv.Atoi(c.Param("digits"))
	if err != nil {
		h.Error(c, apperror.NewValidation("digits must be an integer").WithDetail("digits", c.Param("digits")))
		return
	}

	if err := h.service.ResetSequence(c.Request.Context(), c.Param("prefix"), digits, q.Scope); err != nil {
		h.Error(c, err)
		return
	}
	h.Success(c, "sequence reset")
}

// SelfCheck issues probe identifiers and reports the result.
// POST /api/v1/admin/selfcheck
func (h *IDHandler) SelfCheck(c *gin.Context) {
	report, err := h.service.SelfCheck(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	status := http.StatusOK
	if !report.OK() {
		status = http.StatusInternalServerError
	}
	c.JSON(status, gin.H{"ok": report.OK(), "report": report})
}
