package projects

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"go_sitegen/internal/archive"
	"go_sitegen/internal/generation"
	"go_sitegen/internal/httpx"
	"go_sitegen/internal/ledger"
	"go_sitegen/internal/model"
	"go_sitegen/internal/publish"
	"go_sitegen/internal/scaffold"
)

// Handler serves the generate / version / publish surfaces of a project
type Handler struct {
	db          *gorm.DB
	ledger      *ledger.Service
	generation  *generation.Service
	coordinator *publish.Coordinator
}

// NewHandler creates a new projects handler
func NewHandler(db *gorm.DB, ledger *ledger.Service, gen *generation.Service, coordinator *publish.Coordinator) *Handler {
	return &Handler{db: db, ledger: ledger, generation: gen, coordinator: coordinator}
}

// GenerateRequest represents generate project request
type GenerateRequest struct {
	Trigger        string                    `json:"trigger"`
	TriggerDetails json.RawMessage           `json:"triggerDetails"`
	Config         scaffold.GenerationConfig `json:"config"`
	Design         scaffold.DesignSystem     `json:"design"`
}

// ListVersionsRequest represents list versions request
type ListVersionsRequest struct {
	Page     int `form:"page"`
	PageSize int `form:"pageSize"`
}

// Generate handles POST /api/v1/projects/:id/generate
func (h *Handler) Generate(c *gin.Context) {
	projectID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid("invalid request body: "+err.Error()))
		return
	}

	var trigger model.TriggerType
	if req.Trigger != "" {
		t, err := model.ParseTriggerType(req.Trigger)
		if err != nil {
			httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
			return
		}
		trigger = t
	}

	var details datatypes.JSON
	if len(req.TriggerDetails) > 0 && string(req.TriggerDetails) != "null" {
		details = datatypes.JSON(req.TriggerDetails)
	}

	version, err := h.generation.Start(c.Request.Context(), c.GetInt("uid"), generation.Request{
		ProjectID: projectID,
		Trigger:   trigger,
		Details:   details,
		Config:    req.Config,
		Design:    req.Design,
	})
	if err != nil {
		httpx.FailAny(c, err)
		return
	}
	httpx.Accepted(c, version)
}

// ListVersions handles GET /api/v1/projects/:id/versions
func (h *Handler) ListVersions(c *gin.Context) {
	project, ok := h.ownedProject(c)
	if !ok {
		return
	}

	var req ListVersionsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}
	if req.Page < 1 {
		req.Page = 1
	}
	if req.PageSize < 1 || req.PageSize > 100 {
		req.PageSize = 20
	}

	items, total, err := h.ledger.List(c.Request.Context(), project.ID, req.Page, req.PageSize)
	if err != nil {
		httpx.FailAny(c, err)
		return
	}
	httpx.OKItems(c, items, total, req.Page, req.PageSize)
}

// GetVersion handles GET /api/v1/projects/:id/versions/:vid
func (h *Handler) GetVersion(c *gin.Context) {
	version, ok := h.ownedVersion(c)
	if !ok {
		return
	}
	files, err := h.ledger.Files(c.Request.Context(), version.ID)
	if err != nil {
		httpx.FailAny(c, err)
		return
	}
	version.Files = files
	httpx.OK(c, version)
}

// Archive handles GET /api/v1/projects/:id/versions/:vid/archive
func (h *Handler) Archive(c *gin.Context) {
	version, ok := h.ownedVersion(c)
	if !ok {
		return
	}
	if version.Status != model.VersionStatusComplete {
		httpx.FailErr(c, httpx.ErrValidation(fmt.Sprintf("version %d is %s, not complete", version.VersionNumber, version.Status)))
		return
	}

	tree, err := h.ledger.Tree(c.Request.Context(), version.ID)
	if err != nil {
		httpx.FailAny(c, err)
		return
	}
	body, err := archive.ZipBytes(tree)
	if err != nil {
		httpx.FailAny(c, err)
		return
	}

	filename := fmt.Sprintf("project-%d-v%d.zip", version.ProjectID, version.VersionNumber)
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(200, "application/zip", body)
}

// Publish handles POST /api/v1/projects/:id/publish
func (h *Handler) Publish(c *gin.Context) {
	projectID, ok := pathID(c, "id")
	if !ok {
		return
	}

	result, err := h.coordinator.PublishForUser(c.Request.Context(), c.GetInt("uid"), projectID)
	if err != nil {
		httpx.FailAny(c, err)
		return
	}
	httpx.OK(c, result)
}

func (h *Handler) ownedProject(c *gin.Context) (*model.Project, bool) {
	projectID, ok := pathID(c, "id")
	if !ok {
		return nil, false
	}

	var project model.Project
	err := h.db.WithContext(c.Request.Context()).
		Where("id = ? AND user_id = ?", projectID, c.GetInt("uid")).
		First(&project).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		httpx.FailErr(c, httpx.ErrNotFound("project not found"))
		return nil, false
	}
	if err != nil {
		httpx.FailAny(c, err)
		return nil, false
	}
	return &project, true
}

func (h *Handler) ownedVersion(c *gin.Context) (*model.GenerationVersion, bool) {
	project, ok := h.ownedProject(c)
	if !ok {
		return nil, false
	}
	vid, ok := pathID(c, "vid")
	if !ok {
		return nil, false
	}
	version, err := h.ledger.GetForProject(c.Request.Context(), project.ID, int64(vid))
	if err != nil {
		httpx.FailAny(c, err)
		return nil, false
	}
	return version, true
}

func pathID(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		httpx.FailErr(c, httpx.ErrParamInvalid(fmt.Sprintf("invalid %s", name)))
		return 0, false
	}
	return id, true
}
