package handler

import (
	"strconv"
	"time"

	"agentpay/internal/adapter/http/dto"
	"agentpay/internal/adapter/http/middleware"
	"agentpay/internal/core/domain"
	"agentpay/internal/core/ports"
	"agentpay/pkg/apperror"
	"agentpay/pkg/response"
	"agentpay/pkg/units"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// HeaderIdempotencyKey makes a send request safe to retry.
const HeaderIdempotencyKey = "Idempotency-Key"

// PaymentHandler handles payment endpoints.
type PaymentHandler struct {
	dispatcher ports.PaymentDispatcher
	payments   ports.PaymentLedger
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(dispatcher ports.PaymentDispatcher, payments ports.PaymentLedger) *PaymentHandler {
	return &PaymentHandler{dispatcher: dispatcher, payments: payments}
}

// Send handles POST /api/v1/payments. The payment is created synchronously
// and settled in the background, so the response is 202 with a PENDING record.
func (h *PaymentHandler) Send(c *gin.Context) {
	var req dto.SendPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.InvalidRequest(err.Error()))
		return
	}
	dto.TrimStruct(&req)

	if caller, ok := middleware.AuthenticatedAgent(c); ok && caller != req.FromAgentID {
		response.Error(c, apperror.ErrForbidden("cannot send payments from another agent"))
		return
	}

	amount := req.Amount
	if req.AmountUnits != "" {
		parsed, err := units.ParseUnits(req.AmountUnits)
		if err != nil {
			response.Error(c, apperror.InvalidRequest(err.Error()))
			return
		}
		amount = parsed
	}

	payment, err := h.dispatcher.Send(c.Request.Context(), ports.SendPaymentRequest{
		CreatePaymentRequest: ports.CreatePaymentRequest{
			FromAgentID: req.FromAgentID,
			ToAgentID:   req.ToAgentID,
			Amount:      amount,
			Memo:        req.Memo,
		},
		IdempotencyKey: c.GetHeader(HeaderIdempotencyKey),
		ClientIP:       c.ClientIP(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Accepted(c, toPaymentResponse(payment))
}

// Get handles GET /api/v1/payments/:paymentId. The requester is the bearer
// agent when authenticated, otherwise the optional agentId query parameter.
// Payments the requester is not party to are reported as not found.
func (h *PaymentHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("paymentId"))
	if err != nil {
		response.Error(c, apperror.InvalidRequest("payment id must be a UUID"))
		return
	}

	payment, err := h.payments.Get(c.Request.Context(), id, requester(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	if payment == nil {
		response.Error(c, apperror.ErrNotFound("Payment"))
		return
	}
	response.OK(c, toPaymentResponse(payment))
}

// ListForAgent handles GET /api/v1/payments/agent/:agentId with optional
// status, order (asc|desc) and limit query parameters.
func (h *PaymentHandler) ListForAgent(c *gin.Context) {
	agentID := c.Param("agentId")
	if caller, ok := middleware.AuthenticatedAgent(c); ok && caller != agentID {
		response.Error(c, apperror.ErrForbidden("cannot list another agent's payments"))
		return
	}

	params := ports.PaymentListParams{
		AgentID: agentID,
		Order:   domain.SortOrder(c.Query("order")),
	}
	if s := c.Query("status"); s != "" {
		status := domain.PaymentStatus(s)
		params.Status = &status
	}
	if l := c.Query("limit"); l != "" {
		limit, err := strconv.Atoi(l)
		if err != nil {
			response.Error(c, apperror.InvalidRequest("limit must be an integer"))
			return
		}
		params.Limit = limit
	}

	payments, err := h.payments.ListForAgent(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.PaymentResponse, 0, len(payments))
	for i := range payments {
		items = append(items, toPaymentResponse(&payments[i]))
	}
	response.OK(c, dto.PaymentListResponse{Items: items, Count: len(items)})
}

func requester(c *gin.Context) *string {
	if agentID, ok := middleware.AuthenticatedAgent(c); ok {
		return &agentID
	}
	if q, ok := c.GetQuery("agentId"); ok && q != "" {
		return &q
	}
	return nil
}

func toPaymentResponse(p *domain.PaymentRecord) dto.PaymentResponse {
	resp := dto.PaymentResponse{
		ID:            p.ID.String(),
		FromAgentID:   p.FromAgentID,
		ToAgentID:     p.ToAgentID,
		Amount:        p.Amount,
		AmountUnits:   units.Format(p.Amount),
		Memo:          p.Memo,
		Status:        string(p.Status),
		SettlementID:  p.SettlementID,
		PrivacyToken:  p.PrivacyToken,
		FailureReason: p.FailureReason,
		CreatedAt:     p.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:     p.UpdatedAt.Format(time.RFC3339Nano),
	}
	if p.CompletedAt != nil {
		s := p.CompletedAt.Format(time.RFC3339Nano)
		resp.CompletedAt = &s
	}
	return resp
}
