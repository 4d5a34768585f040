package handler

import (
	"context"
	"net/http"

	"procurement/internal/middleware"
	"procurement/internal/service"
	"procurement/pkg/response"

	"github.com/gin-gonic/gin"
)

type SlipHandler struct {
	slipService service.SlipService
}

// NewSlipHandler sets up the routing dependencies for slip decision endpoints
func NewSlipHandler(slipService service.SlipService) *SlipHandler {
	return &SlipHandler{slipService: slipService}
}

// RegisterRoutes binds the endpoints to the gin Engine or RouterGroup
func (h *SlipHandler) RegisterRoutes(router *gin.RouterGroup) {
	slips := router.Group("/slips")
	{
		slips.PUT("/:id/approve", middleware.RequirePermission("slips.approve"), h.ApproveSlip)
		slips.PUT("/:id/reject", middleware.RequirePermission("slips.approve"), h.RejectSlip)
	}
}

// ApproveSlip handles PUT /slips/:id/approve
// @Summary      Approve slip
// @Description  Approves a pending slip. When the last pending requisition slip is approved the parent request moves to APPROVED
// @Tags         slips
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                 true   "Slip ID"
// @Param        payload  body      service.SlipActionDTO  false  "Optional remarks"
// @Success      200      {object}  response.Response{data=service.SlipResponse}
// @Failure      403      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /slips/{id}/approve [put]
func (h *SlipHandler) ApproveSlip(c *gin.Context) {
	h.act(c, h.slipService.ApproveSlip)
}

// RejectSlip handles PUT /slips/:id/reject
// @Summary      Reject slip
// @Description  Rejects a pending slip
// @Tags         slips
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                 true   "Slip ID"
// @Param        payload  body      service.SlipActionDTO  false  "Optional remarks"
// @Success      200      {object}  response.Response{data=service.SlipResponse}
// @Failure      403      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /slips/{id}/reject [put]
func (h *SlipHandler) RejectSlip(c *gin.Context) {
	h.act(c, h.slipService.RejectSlip)
}

func (h *SlipHandler) act(c *gin.Context, op func(ctx context.Context, id, actorID string, dto service.SlipActionDTO) (service.SlipResponse, error)) {
	actor, ok := actorID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "User ID not found in context"))
		return
	}

	var dto service.SlipActionDTO
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&dto); err != nil {
			c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload"))
			return
		}
	}

	res, err := op(c.Request.Context(), c.Param("id"), actor, dto)
	if err != nil {
		c.JSON(statusForError(err), response.Error(statusForError(err), err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}
