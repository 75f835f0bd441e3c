package controller

import (
	"strconv"
	"strings"

	"itsm/internal/common/http/middleware"
	"itsm/internal/problem/repository"
	"itsm/internal/problem/service"
	"itsm/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// ProblemController handles problem HTTP endpoints.
type ProblemController struct {
	problemService *service.ProblemService
}

// NewProblemController creates a new ProblemController.
func NewProblemController(problemService *service.ProblemService) *ProblemController {
	return &ProblemController{problemService: problemService}
}

// RegisterRoutes mounts the problem endpoints on api, normally /api/v1/problems.
func (h *ProblemController) RegisterRoutes(api gin.IRouter) {
	api.GET("", h.List)
	api.POST("", h.Create)
	api.GET("/statistics", h.Statistics)
	api.GET("/catalogs", h.Catalogs)
	api.GET("/responsibles", h.Responsibles)
	api.GET("/:id", h.Get)
	api.PUT("/:id", h.Update)
	api.DELETE("/:id", h.Delete)
	api.PUT("/:id/status", h.ChangeStatus)
	api.GET("/:id/incidents", h.ListIncidents)
	api.POST("/:id/incidents", h.LinkIncident)
	api.DELETE("/:id/incidents/:incident_id", h.UnlinkIncident)
	api.GET("/:id/comments", h.ListComments)
	api.POST("/:id/comments", h.AddComment)
	api.GET("/:id/solutions", h.ListSolutions)
	api.POST("/:id/solutions", h.AddSolution)
	api.GET("/:id/history", h.History)
}

// List handles the filtered problem listing.
func (h *ProblemController) List(c *gin.Context) {
	var (
		filter repository.ProblemFilter
		ok     bool
	)
	if filter.StatusID, ok = optionalID(c, "status"); !ok {
		return
	}
	if filter.PriorityID, ok = optionalID(c, "priority"); !ok {
		return
	}
	if filter.CategoryID, ok = optionalID(c, "category"); !ok {
		return
	}
	if filter.ResponsibleID, ok = optionalID(c, "responsible"); !ok {
		return
	}
	filter.Search = strings.TrimSpace(c.Query("search"))

	problems, err := h.problemService.List(c.Request.Context(), middleware.Principal(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, problems)
}

// Create handles problem creation.
func (h *ProblemController) Create(c *gin.Context) {
	var req service.ProblemInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}

	id, err := h.problemService.Create(c.Request.Context(), middleware.Principal(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, IDResponse{ID: id})
}

// Get handles the problem detail view.
func (h *ProblemController) Get(c *gin.Context) {
	problemID, ok := pathID(c, "id", "Invalid problem id")
	if !ok {
		return
	}

	view, err := h.problemService.Get(c.Request.Context(), middleware.Principal(c), problemID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, view)
}

// Update handles a full problem edit.
func (h *ProblemController) Update(c *gin.Context) {
	problemID, ok := pathID(c, "id", "Invalid problem id")
	if !ok {
		return
	}
	var req service.ProblemInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}

	if err := h.problemService.Update(c.Request.Context(), middleware.Principal(c), problemID, req); err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMessage(c, "Update success", nil)
}

// Delete handles problem deletion.
func (h *ProblemController) Delete(c *gin.Context) {
	problemID, ok := pathID(c, "id", "Invalid problem id")
	if !ok {
		return
	}

	if err := h.problemService.Delete(c.Request.Context(), middleware.Principal(c), problemID); err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMessage(c, "Delete success", nil)
}

// ChangeStatus handles a status transition.
func (h *ProblemController) ChangeStatus(c *gin.Context) {
	problemID, ok := pathID(c, "id", "Invalid problem id")
	if !ok {
		return
	}
	var req ChangeStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}

	if err := h.problemService.ChangeStatus(c.Request.Context(), middleware.Principal(c), problemID, req.StatusID); err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMessage(c, "Status updated", nil)
}

func (h *ProblemController) ListIncidents(c *gin.Context) {
	problemID, ok := pathID(c, "id", "Invalid problem id")
	if !ok {
		return
	}
	incidents, err := h.problemService.ListLinkedIncidents(c.Request.Context(), middleware.Principal(c), problemID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, incidents)
}

func (h *ProblemController) LinkIncident(c *gin.Context) {
	problemID, ok := pathID(c, "id", "Invalid problem id")
	if !ok {
		return
	}
	var req LinkIncidentRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.IncidentID <= 0 {
		response.BadRequest(c, "Invalid request parameters")
		return
	}

	if err := h.problemService.LinkIncident(c.Request.Context(), middleware.Principal(c), problemID, req.IncidentID); err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMessage(c, "Incident linked", nil)
}

func (h *ProblemController) UnlinkIncident(c *gin.Context) {
	problemID, ok := pathID(c, "id", "Invalid problem id")
	if !ok {
		return
	}
	incidentID, ok := pathID(c, "incident_id", "Invalid incident id")
	if !ok {
		return
	}

	if err := h.problemService.UnlinkIncident(c.Request.Context(), middleware.Principal(c), problemID, incidentID); err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMessage(c, "Incident unlinked", nil)
}

func (h *ProblemController) ListComments(c *gin.Context) {
	problemID, ok := pathID(c, "id", "Invalid problem id")
	if !ok {
		return
	}
	comments, err := h.problemService.ListComments(c.Request.Context(), middleware.Principal(c), problemID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, comments)
}

func (h *ProblemController) AddComment(c *gin.Context) {
	problemID, ok := pathID(c, "id", "Invalid problem id")
	if !ok {
		return
	}
	var req service.CommentInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}

	id, err := h.problemService.AddComment(c.Request.Context(), middleware.Principal(c), problemID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, IDResponse{ID: id})
}

func (h *ProblemController) ListSolutions(c *gin.Context) {
	problemID, ok := pathID(c, "id", "Invalid problem id")
	if !ok {
		return
	}
	solutions, err := h.problemService.ListSolutions(c.Request.Context(), middleware.Principal(c), problemID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, solutions)
}

func (h *ProblemController) AddSolution(c *gin.Context) {
	problemID, ok := pathID(c, "id", "Invalid problem id")
	if !ok {
		return
	}
	var req service.SolutionInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}

	id, err := h.problemService.AddSolution(c.Request.Context(), middleware.Principal(c), problemID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, IDResponse{ID: id})
}

func (h *ProblemController) History(c *gin.Context) {
	problemID, ok := pathID(c, "id", "Invalid problem id")
	if !ok {
		return
	}
	history, err := h.problemService.ListStatusHistory(c.Request.Context(), middleware.Principal(c), problemID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, history)
}

// Statistics handles the dashboard aggregates, optionally scoped to one responsible.
func (h *ProblemController) Statistics(c *gin.Context) {
	responsibleID, ok := optionalID(c, "responsible")
	if !ok {
		return
	}
	stats, err := h.problemService.Statistics(c.Request.Context(), middleware.Principal(c), responsibleID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, stats)
}

func (h *ProblemController) Catalogs(c *gin.Context) {
	catalogs, err := h.problemService.Catalogs(c.Request.Context(), middleware.Principal(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, catalogs)
}

func (h *ProblemController) Responsibles(c *gin.Context) {
	employees, err := h.problemService.ResponsibleCandidates(c.Request.Context(), middleware.Principal(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, employees)
}

// ChangeStatusRequest defines the status transition payload.
type ChangeStatusRequest struct {
	StatusID int64 `json:"status_id" binding:"required"`
}

// LinkIncidentRequest defines the incident link payload.
type LinkIncidentRequest struct {
	IncidentID int64 `json:"incident_id" binding:"required"`
}

// IDResponse carries the id of a created record.
type IDResponse struct {
	ID int64 `json:"id"`
}

func pathID(c *gin.Context, name, message string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, message)
		return 0, false
	}
	return id, true
}

// optionalID parses an id query parameter. An absent or empty parameter means no filter.
func optionalID(c *gin.Context, name string) (*int64, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, true
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, "Invalid "+name+" filter")
		return nil, false
	}
	return &id, true
}
