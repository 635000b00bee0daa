package admin

import (
	"github.com/gin-gonic/gin"

	"go_sitegen/internal/httpx"
	"go_sitegen/internal/publish"
)

// Handler serves operator-only batch operations
type Handler struct {
	coordinator *publish.Coordinator
}

// NewHandler creates a new admin handler
func NewHandler(coordinator *publish.Coordinator) *Handler {
	return &Handler{coordinator: coordinator}
}

// RepublishAll handles POST /api/v1/admin/republish-all
func (h *Handler) RepublishAll(c *gin.Context) {
	report, err := h.coordinator.RepublishAll(c.Request.Context())
	if err != nil {
		httpx.FailAny(c, err)
		return
	}
	httpx.OKMsg(c, report.Message(), report)
}
