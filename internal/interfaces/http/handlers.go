package http

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/dmarkova/procureflow/internal/application/port"
	"github.com/dmarkova/procureflow/internal/application/service"
	"github.com/dmarkova/procureflow/internal/domain/authz"
	"github.com/dmarkova/procureflow/internal/domain/entity"
	"github.com/dmarkova/procureflow/internal/domain/workflow"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	requestService service.RequestService
	queryService   service.QueryService
	logger         Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(requestService service.RequestService, queryService service.QueryService, logger Logger) *Handlers {
	return &Handlers{
		requestService: requestService,
		queryService:   queryService,
		logger:         logger,
	}
}

// Response represents a standard JSON response. Warning is set when a write
// committed but a best-effort enrichment (extraction/validation) failed.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Warning string      `json:"warning,omitempty"`
}

// RequestDetail pairs a request with the actor's affordances
type RequestDetail struct {
	Request     *entity.PurchaseRequest `json:"request"`
	Permissions authz.Permissions       `json:"permissions"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: gin.H{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// ListRequests handles GET /api/requests
func (h *Handlers) ListRequests(c *gin.Context) {
	actor := actorFrom(c)

	status := workflow.State(c.Query("status"))
	requests, err := h.queryService.List(c.Request.Context(), actor, status)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: requests})
}

// GetRequest handles GET /api/requests/:id
func (h *Handlers) GetRequest(c *gin.Context) {
	actor := actorFrom(c)

	request, permissions, err := h.queryService.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    RequestDetail{Request: request, Permissions: permissions},
	})
}

// createRequestForm represents the create payload; the proforma file rides
// alongside in the multipart body
type createRequestForm struct {
	Title       string `form:"title" json:"title"`
	Description string `form:"description" json:"description"`
	Amount      string `form:"amount" json:"amount"`
}

// CreateRequest handles POST /api/requests
func (h *Handlers) CreateRequest(c *gin.Context) {
	actor := actorFrom(c)

	var form createRequestForm
	if err := c.ShouldBind(&form); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request payload"})
		return
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(form.Amount))
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "amount must be a decimal number"})
		return
	}

	in := service.CreateRequestInput{
		Title:       form.Title,
		Description: form.Description,
		Amount:      amount,
	}

	if file, err := h.formFile(c, "proforma"); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
		return
	} else if file != nil {
		in.Proforma = file
	}

	request, err := h.requestService.Create(c.Request.Context(), actor, in)
	h.respond(c, http.StatusCreated, request, err)
}

type decisionBody struct {
	Approved *bool  `json:"approved"`
	Comments string `json:"comments"`
}

// Decide handles POST /api/requests/:id/decision
func (h *Handlers) Decide(c *gin.Context) {
	actor := actorFrom(c)

	var body decisionBody
	if err := c.ShouldBindJSON(&body); err != nil || body.Approved == nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "approved flag is required"})
		return
	}

	request, err := h.requestService.Decide(c.Request.Context(), c.Param("id"), actor, *body.Approved, body.Comments)
	h.respond(c, http.StatusOK, request, err)
}

// SubmitReceipt handles POST /api/requests/:id/receipt
func (h *Handlers) SubmitReceipt(c *gin.Context) {
	actor := actorFrom(c)

	file, err := h.formFile(c, "receipt")
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
		return
	}
	if file == nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "receipt file is required"})
		return
	}

	request, err := h.requestService.SubmitReceipt(c.Request.Context(), c.Param("id"), actor, *file)
	h.respond(c, http.StatusOK, request, err)
}

// RevalidateReceipt handles POST /api/requests/:id/receipt/validate
func (h *Handlers) RevalidateReceipt(c *gin.Context) {
	actor := actorFrom(c)

	request, err := h.requestService.RevalidateReceipt(c.Request.Context(), c.Param("id"), actor)
	h.respond(c, http.StatusOK, request, err)
}

// ReextractProforma handles POST /api/requests/:id/proforma/extract
func (h *Handlers) ReextractProforma(c *gin.Context) {
	actor := actorFrom(c)

	request, err := h.requestService.ReextractProforma(c.Request.Context(), c.Param("id"), actor)
	h.respond(c, http.StatusOK, request, err)
}

// respond writes the outcome of a lifecycle call. An adapter failure next to
// a non-nil request means the write committed; that is a warning, not an
// error status.
func (h *Handlers) respond(c *gin.Context, okStatus int, request *entity.PurchaseRequest, err error) {
	if err != nil && errors.Is(err, entity.ErrAdapter) && request != nil {
		c.JSON(okStatus, Response{
			Success: true,
			Data:    request,
			Warning: err.Error(),
		})
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(okStatus, Response{Success: true, Data: request})
}

func (h *Handlers) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	message := "internal error"

	switch {
	case errors.Is(err, entity.ErrValidation):
		status, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, entity.ErrAuthorization):
		status, message = http.StatusForbidden, err.Error()
	case errors.Is(err, entity.ErrNotFound):
		status, message = http.StatusNotFound, err.Error()
	case errors.Is(err, entity.ErrConflict):
		status, message = http.StatusConflict, err.Error()
	default:
		h.logger.Error("Request failed", "error", err)
	}

	c.JSON(status, Response{Success: false, Error: message})
}

// formFile reads an optional multipart file into a DocumentFile
func (h *Handlers) formFile(c *gin.Context, field string) (*port.DocumentFile, error) {
	header, err := c.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, nil
		}
		return nil, errors.New("invalid multipart form")
	}
	return readMultipartFile(header)
}

func readMultipartFile(header *multipart.FileHeader) (*port.DocumentFile, error) {
	f, err := header.Open()
	if err != nil {
		return nil, errors.New("failed to open uploaded file")
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, errors.New("failed to read uploaded file")
	}

	return &port.DocumentFile{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Content:     content,
	}, nil
}
