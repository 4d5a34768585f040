package handler

import (
	"context"
	"errors"
	"net/http"

	"procurement/internal/lifecycle"
	"procurement/internal/middleware"
	"procurement/internal/service"
	"procurement/pkg/pagination"
	"procurement/pkg/response"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type RequestHandler struct {
	requestService service.RequestService
	slipService    service.SlipService
}

// NewRequestHandler sets up the routing dependencies for procurement request endpoints
func NewRequestHandler(requestService service.RequestService, slipService service.SlipService) *RequestHandler {
	return &RequestHandler{requestService: requestService, slipService: slipService}
}

// RegisterRoutes binds the endpoints to the gin Engine or RouterGroup
func (h *RequestHandler) RegisterRoutes(router *gin.RouterGroup) {
	requests := router.Group("/requests")
	{
		requests.GET("", middleware.RequirePermission("requests.read"), h.ListRequests)
		requests.GET("/:id", middleware.RequirePermission("requests.read"), h.GetRequest)
		requests.POST("", middleware.RequirePermission("requests.write"), h.CreateRequest)
		requests.PUT("/:id", middleware.RequirePermission("requests.write"), h.UpdateRequest)
		requests.PUT("/:id/decision", middleware.RequirePermission("requests.decide"), h.Decide)

		requests.PUT("/:id/closure", middleware.RequirePermission("requests.close"), h.InitiateClosure)
		requests.PUT("/:id/closure/confirm", middleware.RequirePermission("requests.read"), h.ConfirmClosure)
		requests.PUT("/:id/closure/cancel", middleware.RequirePermission("requests.read"), h.CancelClosure)

		requests.GET("/:id/attachments", middleware.RequirePermission("requests.read"), h.ListAttachments)
		requests.POST("/:id/attachments", middleware.RequirePermission("requests.write"), h.AddAttachment)

		requests.GET("/:id/slips", middleware.RequirePermission("slips.read"), h.ListSlips)
		requests.POST("/:id/slips", middleware.RequirePermission("slips.write"), h.CreateSlip)
	}
}

// statusForError maps domain errors to HTTP status codes
func statusForError(err error) int {
	switch {
	case errors.Is(err, lifecycle.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound
	default:
		return http.StatusBadRequest
	}
}

func actorID(c *gin.Context) (string, bool) {
	userId, exists := c.Get("userID")
	if !exists {
		return "", false
	}
	idStr, ok := userId.(string)
	return idStr, ok
}

// CreateRequest handles POST /requests
// @Summary      Create a request
// @Description  Creates a purchase request or job order owned by the authenticated user
// @Tags         requests
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CreateRequestDTO  true  "Create Request Payload"
// @Success      201      {object}  response.Response{data=service.RequestResponse}
// @Failure      400      {object}  response.Response
// @Router       /requests [post]
func (h *RequestHandler) CreateRequest(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "User ID not found in context"))
		return
	}

	var dto service.CreateRequestDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	res, err := h.requestService.Create(c.Request.Context(), actor, dto)
	if err != nil {
		c.JSON(statusForError(err), response.Error(statusForError(err), err.Error()))
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, res))
}

// ListRequests handles GET /requests with filter and pagination controls
// @Summary      List requests
// @Description  Retrieves a paginated list of requests, optionally filtered by status, kind and department
// @Tags         requests
// @Produce      json
// @Security     BearerAuth
// @Param        status      query     string  false  "Filter by status"
// @Param        kind        query     string  false  "Filter by kind (PURCHASE_REQUEST or JOB_ORDER)"
// @Param        department  query     string  false  "Filter by department"
// @Param        page        query     int     false  "Page number (default 1)"
// @Param        limit       query     int     false  "Number of items per page (default 20)"
// @Success      200         {object}  response.Response{data=object}
// @Failure      500         {object}  response.Response
// @Router       /requests [get]
func (h *RequestHandler) ListRequests(c *gin.Context) {
	params := pagination.Parse(c)

	filter := service.RequestListFilter{
		Status:     c.Query("status"),
		Kind:       c.Query("kind"),
		Department: c.Query("department"),
		Page:       params.Page,
		Limit:      params.Limit,
	}

	requests, total, err := h.requestService.List(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, "Failed to fetch requests"))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, map[string]interface{}{
		"requests": requests,
		"total":    total,
		"page":     params.Page,
		"limit":    params.Limit,
	}))
}

// GetRequest handles GET /requests/:id
// @Summary      Get request by ID
// @Description  Fetch a single request with its approval history
// @Tags         requests
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Request ID"
// @Success      200  {object}  response.Response{data=service.RequestResponse}
// @Failure      404  {object}  response.Response
// @Router       /requests/{id} [get]
func (h *RequestHandler) GetRequest(c *gin.Context) {
	actor, _ := actorID(c)

	res, err := h.requestService.Get(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		c.JSON(http.StatusNotFound, response.Error(http.StatusNotFound, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

// UpdateRequest handles PUT /requests/:id
// @Summary      Update request
// @Description  Updates an editable request. Only the requester may edit, and only while the request is a draft or rejected
// @Tags         requests
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                    true  "Request ID"
// @Param        payload  body      service.UpdateRequestDTO  true  "Update Request Payload"
// @Success      200      {object}  response.Response{data=service.RequestResponse}
// @Failure      403      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /requests/{id} [put]
func (h *RequestHandler) UpdateRequest(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "User ID not found in context"))
		return
	}

	var dto service.UpdateRequestDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload"))
		return
	}

	res, err := h.requestService.Update(c.Request.Context(), c.Param("id"), actor, dto)
	if err != nil {
		c.JSON(statusForError(err), response.Error(statusForError(err), err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

// Decide handles PUT /requests/:id/decision
// @Summary      Record an approval decision
// @Description  Applies an APPROVE, REJECT or CANCEL action at the given workflow stage
// @Tags         requests
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string              true  "Request ID"
// @Param        payload  body      service.DecisionDTO  true  "Decision Payload"
// @Success      200      {object}  response.Response{data=service.RequestResponse}
// @Failure      403      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /requests/{id}/decision [put]
func (h *RequestHandler) Decide(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "User ID not found in context"))
		return
	}

	var dto service.DecisionDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	res, err := h.requestService.Decide(c.Request.Context(), c.Param("id"), actor, dto)
	if err != nil {
		c.JSON(statusForError(err), response.Error(statusForError(err), err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

// InitiateClosure handles PUT /requests/:id/closure
// @Summary      Flag a request for closure
// @Description  Puts an fulfilled request into PENDING_REQUESTER_CLOSURE so the requester can confirm receipt. Auto closes after 3 days
// @Tags         requests
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Request ID"
// @Success      200  {object}  response.Response{data=service.RequestResponse}
// @Failure      403  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /requests/{id}/closure [put]
func (h *RequestHandler) InitiateClosure(c *gin.Context) {
	h.closure(c, h.requestService.InitiateClosure)
}

// ConfirmClosure handles PUT /requests/:id/closure/confirm
// @Summary      Confirm closure
// @Description  Confirms a pending closure and moves the request to CLOSED
// @Tags         requests
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Request ID"
// @Success      200  {object}  response.Response{data=service.RequestResponse}
// @Failure      409  {object}  response.Response
// @Router       /requests/{id}/closure/confirm [put]
func (h *RequestHandler) ConfirmClosure(c *gin.Context) {
	h.closure(c, h.requestService.ConfirmClosure)
}

// CancelClosure handles PUT /requests/:id/closure/cancel
// @Summary      Cancel pending closure
// @Description  Cancels a pending closure and restores the request to its previous status
// @Tags         requests
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Request ID"
// @Success      200  {object}  response.Response{data=service.RequestResponse}
// @Failure      409  {object}  response.Response
// @Router       /requests/{id}/closure/cancel [put]
func (h *RequestHandler) CancelClosure(c *gin.Context) {
	h.closure(c, h.requestService.CancelPendingClosure)
}

func (h *RequestHandler) closure(c *gin.Context, op func(ctx context.Context, id, actorID string) (service.RequestResponse, error)) {
	actor, ok := actorID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "User ID not found in context"))
		return
	}

	res, err := op(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		c.JSON(statusForError(err), response.Error(statusForError(err), err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

// AddAttachment handles POST /requests/:id/attachments
// @Summary      Attach a file reference
// @Description  Records attachment metadata (name, type, size, storage URL) against a request
// @Tags         requests
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                 true  "Request ID"
// @Param        payload  body      service.AttachmentDTO  true  "Attachment Payload"
// @Success      201      {object}  response.Response
// @Failure      400      {object}  response.Response
// @Router       /requests/{id}/attachments [post]
func (h *RequestHandler) AddAttachment(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "User ID not found in context"))
		return
	}

	var dto service.AttachmentDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	if err := h.requestService.AddAttachment(c.Request.Context(), c.Param("id"), actor, dto); err != nil {
		c.JSON(statusForError(err), response.Error(statusForError(err), err.Error()))
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, "Attachment added"))
}

// ListAttachments handles GET /requests/:id/attachments
// @Summary      List attachments
// @Description  Lists attachment metadata for a request
// @Tags         requests
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Request ID"
// @Success      200  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /requests/{id}/attachments [get]
func (h *RequestHandler) ListAttachments(c *gin.Context) {
	attachments, err := h.requestService.ListAttachments(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, response.Error(http.StatusNotFound, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, attachments))
}

// CreateSlip handles POST /requests/:id/slips
// @Summary      Create a slip
// @Description  Creates a requisition slip or purchase order under a request in the requisition phase
// @Tags         slips
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                 true  "Request ID"
// @Param        payload  body      service.CreateSlipDTO  true  "Create Slip Payload"
// @Success      201      {object}  response.Response{data=service.SlipResponse}
// @Failure      409      {object}  response.Response
// @Router       /requests/{id}/slips [post]
func (h *RequestHandler) CreateSlip(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "User ID not found in context"))
		return
	}

	var dto service.CreateSlipDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	res, err := h.slipService.CreateSlip(c.Request.Context(), c.Param("id"), actor, dto)
	if err != nil {
		c.JSON(statusForError(err), response.Error(statusForError(err), err.Error()))
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, res))
}

// ListSlips handles GET /requests/:id/slips
// @Summary      List slips
// @Description  Lists requisition slips and purchase orders under a request
// @Tags         slips
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Request ID"
// @Success      200  {object}  response.Response{data=[]service.SlipResponse}
// @Failure      404  {object}  response.Response
// @Router       /requests/{id}/slips [get]
func (h *RequestHandler) ListSlips(c *gin.Context) {
	slips, err := h.slipService.ListSlips(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, response.Error(http.StatusNotFound, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, slips))
}
