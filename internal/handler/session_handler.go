package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"porevise/internal/middleware"
	"porevise/internal/service"
	"porevise/pkg/response"

	"github.com/gin-gonic/gin"
)

// maxProofSize caps refund proof uploads at 10 MB.
const maxProofSize = 10 << 20

type SessionHandler struct {
	sessionService  service.SessionService
	revisionService service.RevisionService
}

func NewSessionHandler(sessionService service.SessionService, revisionService service.RevisionService) *SessionHandler {
	return &SessionHandler{sessionService: sessionService, revisionService: revisionService}
}

func (h *SessionHandler) RegisterRoutes(router *gin.RouterGroup) {
	sessions := router.Group("/api/revision-sessions", middleware.RequirePermission("revisions.write"))
	{
		sessions.POST("", h.StartSession)
		sessions.GET("/:id", h.GetSession)
		sessions.DELETE("/:id", h.DiscardSession)
		sessions.PUT("/:id/justification", h.SetJustification)

		sessions.POST("/:id/items", h.AddItem)
		sessions.PUT("/:id/items/:index", h.UpdateItem)
		sessions.DELETE("/:id/items/:index", h.RemoveItem)

		sessions.POST("/:id/terms", h.AddTerm)
		sessions.PUT("/:id/terms/:termId", h.UpdateTerm)
		sessions.DELETE("/:id/terms/:termId", h.RemoveTerm)

		sessions.GET("/:id/candidates", h.ListCandidates)
		sessions.POST("/:id/plan/primary", h.ChoosePrimary)
		sessions.POST("/:id/plan/secondary", h.AddSecondary)
		sessions.POST("/:id/plan/candidates", h.SelectCandidate)
		sessions.DELETE("/:id/plan/candidates/:orderId", h.DeselectCandidate)
		sessions.PUT("/:id/adjustments/:adjId", h.UpdateAdjustment)
		sessions.DELETE("/:id/adjustments/:adjId", h.RemoveAdjustment)
		sessions.POST("/:id/adjustments/:adjId/proof", h.AttachProof)

		sessions.POST("/:id/submit", h.SubmitSession)
	}
}

// respond writes the refreshed session state or the failure.
func respond(c *gin.Context, sess service.SessionResponse, err error) {
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, service.ErrSessionNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, response.Error(status, err.Error()))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, sess))
}

type startSessionRequest struct {
	OrderID string `json:"order_id" binding:"required"`
}

type justificationRequest struct {
	Justification string `json:"justification" binding:"required"`
}

type planKindRequest struct {
	Kind string `json:"kind" binding:"required"`
}

// StartSession opens a revision session against an approved order
// @Summary      Start revision session
// @Tags         revisions
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  startSessionRequest  true  "Order to revise"
// @Success      201  {object}  response.Response
// @Failure      400  {object}  response.Response
// @Router       /api/revision-sessions [post]
func (h *SessionHandler) StartSession(c *gin.Context) {
	var req startSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	sess, err := h.sessionService.StartSession(c.Request.Context(), req.OrderID)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, sess))
}

// GetSession returns the live state of a revision session
// @Summary      Get revision session
// @Tags         revisions
// @Security     BearerAuth
// @Produce      json
// @Param        id  path  string  true  "Session ID"
// @Success      200  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/revision-sessions/{id} [get]
func (h *SessionHandler) GetSession(c *gin.Context) {
	sess, err := h.sessionService.GetSession(c.Param("id"))
	respond(c, sess, err)
}

// DiscardSession drops a session without submitting it
// @Summary      Discard revision session
// @Tags         revisions
// @Security     BearerAuth
// @Produce      json
// @Param        id  path  string  true  "Session ID"
// @Success      200  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/revision-sessions/{id} [delete]
func (h *SessionHandler) DiscardSession(c *gin.Context) {
	if err := h.sessionService.DiscardSession(c.Param("id")); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, service.ErrSessionNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, response.Error(status, err.Error()))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"discarded": c.Param("id")}))
}

// SetJustification sets the narrative reason for the revision
// @Summary      Set justification
// @Tags         revisions
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string                true  "Session ID"
// @Param        payload  body  justificationRequest  true  "Justification"
// @Success      200  {object}  response.Response
// @Router       /api/revision-sessions/{id}/justification [put]
func (h *SessionHandler) SetJustification(c *gin.Context) {
	var req justificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}
	sess, err := h.sessionService.SetJustification(c.Param("id"), req.Justification)
	respond(c, sess, err)
}

// AddItem appends a blank NEW item row
// @Summary      Add revision item
// @Tags         revisions
// @Security     BearerAuth
// @Produce      json
// @Param        id  path  string  true  "Session ID"
// @Success      200  {object}  response.Response
// @Router       /api/revision-sessions/{id}/items [post]
func (h *SessionHandler) AddItem(c *gin.Context) {
	sess, err := h.sessionService.AddItem(c.Param("id"))
	respond(c, sess, err)
}

// UpdateItem edits an item row by index
// @Summary      Update revision item
// @Tags         revisions
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string               true  "Session ID"
// @Param        index    path  int                  true  "Item index"
// @Param        payload  body  service.ItemRequest  true  "Fields to change"
// @Success      200  {object}  response.Response
// @Router       /api/revision-sessions/{id}/items/{index} [put]
func (h *SessionHandler) UpdateItem(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid item index"))
		return
	}

	var req service.ItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	sess, err := h.sessionService.UpdateItem(c.Param("id"), index, req)
	respond(c, sess, err)
}

// RemoveItem deletes or restores an item row by index
// @Summary      Remove revision item
// @Tags         revisions
// @Security     BearerAuth
// @Produce      json
// @Param        id     path  string  true  "Session ID"
// @Param        index  path  int     true  "Item index"
// @Success      200  {object}  response.Response
// @Router       /api/revision-sessions/{id}/items/{index} [delete]
func (h *SessionHandler) RemoveItem(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid item index"))
		return
	}
	sess, err := h.sessionService.RemoveItem(c.Param("id"), index)
	respond(c, sess, err)
}

// AddTerm appends a payment term to a positive-difference plan
// @Summary      Add payment term
// @Tags         revisions
// @Security     BearerAuth
// @Produce      json
// @Param        id  path  string  true  "Session ID"
// @Success      200  {object}  response.Response
// @Router       /api/revision-sessions/{id}/terms [post]
func (h *SessionHandler) AddTerm(c *gin.Context) {
	sess, err := h.sessionService.AddTerm(c.Param("id"))
	respond(c, sess, err)
}

// UpdateTerm edits a payment term
// @Summary      Update payment term
// @Tags         revisions
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string               true  "Session ID"
// @Param        termId   path  string               true  "Term ID"
// @Param        payload  body  service.TermRequest  true  "Fields to change"
// @Success      200  {object}  response.Response
// @Router       /api/revision-sessions/{id}/terms/{termId} [put]
func (h *SessionHandler) UpdateTerm(c *gin.Context) {
	var req service.TermRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}
	sess, err := h.sessionService.UpdateTerm(c.Param("id"), c.Param("termId"), req)
	respond(c, sess, err)
}

// RemoveTerm deletes a payment term; the last term cannot be removed
// @Summary      Remove payment term
// @Tags         revisions
// @Security     BearerAuth
// @Produce      json
// @Param        id      path  string  true  "Session ID"
// @Param        termId  path  string  true  "Term ID"
// @Success      200  {object}  response.Response
// @Router       /api/revision-sessions/{id}/terms/{termId} [delete]
func (h *SessionHandler) RemoveTerm(c *gin.Context) {
	sess, err := h.sessionService.RemoveTerm(c.Param("id"), c.Param("termId"))
	respond(c, sess, err)
}

// ListCandidates lists same-vendor orders a refund can be credited to
// @Summary      List credit candidates
// @Tags         revisions
// @Security     BearerAuth
// @Produce      json
// @Param        id  path  string  true  "Session ID"
// @Success      200  {object}  response.Response
// @Router       /api/revision-sessions/{id}/candidates [get]
func (h *SessionHandler) ListCandidates(c *gin.Context) {
	candidates, err := h.sessionService.ListCandidates(c.Request.Context(), c.Param("id"))
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, service.ErrSessionNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, response.Error(status, err.Error()))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, candidates))
}

// ChoosePrimary picks the main refund handling kind
// @Summary      Choose primary refund kind
// @Tags         revisions
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string           true  "Session ID"
// @Param        payload  body  planKindRequest  true  "Kind: AGAINST_PO, ADHOC or REFUNDED"
// @Success      200  {object}  response.Response
// @Router       /api/revision-sessions/{id}/plan/primary [post]
func (h *SessionHandler) ChoosePrimary(c *gin.Context) {
	var req planKindRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}
	sess, err := h.sessionService.ChoosePrimary(c.Param("id"), req.Kind)
	respond(c, sess, err)
}

// AddSecondary adds a leftover adjustment next to AGAINST_PO credits
// @Summary      Add secondary adjustment
// @Tags         revisions
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string           true  "Session ID"
// @Param        payload  body  planKindRequest  true  "Kind: ADHOC or REFUNDED"
// @Success      200  {object}  response.Response
// @Router       /api/revision-sessions/{id}/plan/secondary [post]
func (h *SessionHandler) AddSecondary(c *gin.Context) {
	var req planKindRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}
	sess, err := h.sessionService.AddSecondary(c.Param("id"), req.Kind)
	respond(c, sess, err)
}

// SelectCandidate credits part of the refund to another order
// @Summary      Select credit candidate
// @Tags         revisions
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string                          true  "Session ID"
// @Param        payload  body  service.SelectCandidateRequest  true  "Target and amount"
// @Success      200  {object}  response.Response
// @Router       /api/revision-sessions/{id}/plan/candidates [post]
func (h *SessionHandler) SelectCandidate(c *gin.Context) {
	var req service.SelectCandidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}
	sess, err := h.sessionService.SelectCandidate(c.Request.Context(), c.Param("id"), req)
	respond(c, sess, err)
}

// DeselectCandidate removes a credit allocation against another order
// @Summary      Deselect credit candidate
// @Tags         revisions
// @Security     BearerAuth
// @Produce      json
// @Param        id       path  string  true  "Session ID"
// @Param        orderId  path  string  true  "Target order ID"
// @Success      200  {object}  response.Response
// @Router       /api/revision-sessions/{id}/plan/candidates/{orderId} [delete]
func (h *SessionHandler) DeselectCandidate(c *gin.Context) {
	sess, err := h.sessionService.DeselectCandidate(c.Param("id"), c.Param("orderId"))
	respond(c, sess, err)
}

// UpdateAdjustment edits a refund adjustment record
// @Summary      Update adjustment
// @Tags         revisions
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string                     true  "Session ID"
// @Param        adjId    path  string                     true  "Adjustment ID"
// @Param        payload  body  service.AdjustmentRequest  true  "Fields to change"
// @Success      200  {object}  response.Response
// @Router       /api/revision-sessions/{id}/adjustments/{adjId} [put]
func (h *SessionHandler) UpdateAdjustment(c *gin.Context) {
	var req service.AdjustmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}
	sess, err := h.sessionService.UpdateAdjustment(c.Param("id"), c.Param("adjId"), req)
	respond(c, sess, err)
}

// RemoveAdjustment deletes a refund adjustment record
// @Summary      Remove adjustment
// @Tags         revisions
// @Security     BearerAuth
// @Produce      json
// @Param        id     path  string  true  "Session ID"
// @Param        adjId  path  string  true  "Adjustment ID"
// @Success      200  {object}  response.Response
// @Router       /api/revision-sessions/{id}/adjustments/{adjId} [delete]
func (h *SessionHandler) RemoveAdjustment(c *gin.Context) {
	sess, err := h.sessionService.RemoveAdjustment(c.Param("id"), c.Param("adjId"))
	respond(c, sess, err)
}

// AttachProof uploads a refund proof file for a REFUNDED adjustment
// @Summary      Attach refund proof
// @Tags         revisions
// @Security     BearerAuth
// @Accept       multipart/form-data
// @Produce      json
// @Param        id     path      string  true  "Session ID"
// @Param        adjId  path      string  true  "Adjustment ID"
// @Param        proof  formData  file    true  "Proof file"
// @Success      200  {object}  response.Response
// @Router       /api/revision-sessions/{id}/adjustments/{adjId}/proof [post]
func (h *SessionHandler) AttachProof(c *gin.Context) {
	file, err := c.FormFile("proof")
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "proof file is required"))
		return
	}
	if file.Size > maxProofSize {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "proof file exceeds 10 MB"))
		return
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "failed to read proof file"))
		return
	}
	defer src.Close()

	content, err := io.ReadAll(src)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "failed to read proof file"))
		return
	}

	sess, err := h.sessionService.AttachProof(c.Param("id"), c.Param("adjId"), file.Filename, content)
	respond(c, sess, err)
}

// SubmitSession finalizes the session into a persisted revision
// @Summary      Submit revision session
// @Tags         revisions
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string                         true   "Session ID"
// @Param        payload  body  service.SubmitRevisionRequest  false  "Final justification override"
// @Success      201  {object}  response.Response
// @Failure      400  {object}  response.Response
// @Router       /api/revision-sessions/{id}/submit [post]
func (h *SessionHandler) SubmitSession(c *gin.Context) {
	var req service.SubmitRevisionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
			return
		}
	}

	rev, err := h.revisionService.Submit(c.Request.Context(), c.Param("id"), c.GetString("userID"), req)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, service.ErrSessionNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, response.Error(status, err.Error()))
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, rev))
}
