package domains

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"go_sitegen/internal/domaincheck"
	"go_sitegen/internal/httpx"
)

// Handler attaches and verifies custom domains
type Handler struct {
	checker *domaincheck.Checker
}

// NewHandler creates a new domains handler
func NewHandler(checker *domaincheck.Checker) *Handler {
	return &Handler{checker: checker}
}

// AttachRequest represents the request body for attaching a domain
type AttachRequest struct {
	ProjectID int    `json:"projectId" binding:"required"`
	Domain    string `json:"domain" binding:"required"`
}

// Attach handles POST /api/v1/domains
func (h *Handler) Attach(c *gin.Context) {
	var req AttachRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid("invalid request: "+err.Error()))
		return
	}

	d, err := h.checker.Attach(c.Request.Context(), c.GetInt("uid"), req.ProjectID, req.Domain)
	if err != nil {
		httpx.FailAny(c, err)
		return
	}
	httpx.OK(c, d)
}

// Verify handles POST /api/v1/domains/:id/verify
func (h *Handler) Verify(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		httpx.FailErr(c, httpx.ErrParamInvalid("invalid domain id"))
		return
	}

	result, err := h.checker.Check(c.Request.Context(), c.GetInt("uid"), id)
	if err != nil {
		httpx.FailAny(c, err)
		return
	}
	httpx.OK(c, result)
}
