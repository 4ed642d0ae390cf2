package handler

import (
	"net/http"

	"porevise/internal/middleware"
	"porevise/internal/service"
	"porevise/pkg/pagination"
	"porevise/pkg/response"

	"github.com/gin-gonic/gin"
)

type RevisionHandler struct {
	revisionService service.RevisionService
}

func NewRevisionHandler(revisionService service.RevisionService) *RevisionHandler {
	return &RevisionHandler{revisionService: revisionService}
}

func (h *RevisionHandler) RegisterRoutes(router *gin.RouterGroup) {
	revisions := router.Group("/api/revisions")
	{
		revisions.GET("", middleware.RequirePermission("revisions.read"), h.ListRevisions)
		revisions.GET("/:id", middleware.RequirePermission("revisions.read"), h.GetRevision)
	}
}

// ListRevisions returns the submitted revision history, newest first
// @Summary      List revisions
// @Tags         revisions
// @Security     BearerAuth
// @Produce      json
// @Param        page   query  int  false  "Page number (default: 1)"
// @Param        limit  query  int  false  "Items per page (default: 20)"
// @Success      200  {object}  response.Response
// @Router       /api/revisions [get]
func (h *RevisionHandler) ListRevisions(c *gin.Context) {
	params := pagination.Parse(c)

	revisions, total, err := h.revisionService.ListRevisions(c.Request.Context(), params.Page, params.Limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.SuccessWithPagination(http.StatusOK, revisions, params.Page, params.Limit, total))
}

// GetRevision returns one submitted revision with its rows and plan
// @Summary      Get revision
// @Tags         revisions
// @Security     BearerAuth
// @Produce      json
// @Param        id  path  string  true  "Revision ID"
// @Success      200  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/revisions/{id} [get]
func (h *RevisionHandler) GetRevision(c *gin.Context) {
	rev, err := h.revisionService.GetRevision(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, response.Error(http.StatusNotFound, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, rev))
}
