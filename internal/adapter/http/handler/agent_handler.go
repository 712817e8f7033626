package handler

import (
	"time"

	"agentpay/internal/adapter/http/dto"
	"agentpay/internal/adapter/http/middleware"
	"agentpay/internal/core/domain"
	"agentpay/internal/core/ports"
	"agentpay/pkg/apperror"
	"agentpay/pkg/response"
	"agentpay/pkg/units"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// AgentHandler handles agent account endpoints.
type AgentHandler struct {
	directory ports.AccountDirectory
	tokenSvc  ports.TokenService // nil = registration issues no token
	log       zerolog.Logger
}

// NewAgentHandler creates a new AgentHandler.
func NewAgentHandler(directory ports.AccountDirectory, tokenSvc ports.TokenService, log zerolog.Logger) *AgentHandler {
	return &AgentHandler{directory: directory, tokenSvc: tokenSvc, log: log}
}

// Register handles POST /api/v1/agents.
func (h *AgentHandler) Register(c *gin.Context) {
	var req dto.RegisterAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.InvalidRequest(err.Error()))
		return
	}
	dto.TrimStruct(&req)

	agent, err := h.directory.Register(c.Request.Context(), req.AgentID, req.Address)
	if err != nil {
		response.Error(c, err)
		return
	}

	resp := dto.RegisterAgentResponse{Agent: toAgentResponse(agent)}
	if h.tokenSvc != nil {
		token, expiry, err := h.tokenSvc.Generate(agent.ID)
		if err != nil {
			// The account exists; the caller can still operate without a token.
			h.log.Error().Err(err).Str("agent_id", agent.ID).Msg("failed to issue access token")
		} else {
			resp.Token = token
			resp.TokenExpiry = expiry.Unix()
		}
	}

	response.Created(c, resp)
}

// Get handles GET /api/v1/agents/:agentId.
func (h *AgentHandler) Get(c *gin.Context) {
	agent, err := h.directory.Get(c.Request.Context(), c.Param("agentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if agent == nil {
		response.Error(c, apperror.ErrNotFound("Agent"))
		return
	}
	response.OK(c, toAgentResponse(agent))
}

// List handles GET /api/v1/agents.
func (h *AgentHandler) List(c *gin.Context) {
	agents, err := h.directory.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	items := make([]dto.AgentResponse, 0, len(agents))
	for i := range agents {
		items = append(items, toAgentResponse(&agents[i]))
	}
	response.OK(c, items)
}

// Balance handles GET /api/v1/agents/:agentId/balance.
func (h *AgentHandler) Balance(c *gin.Context) {
	agentID := c.Param("agentId")
	ctx := c.Request.Context()

	address, err := h.directory.ResolveAddress(ctx, agentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	balance, err := h.directory.Balance(ctx, agentID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.BalanceResponse{
		AgentID:      agentID,
		Address:      address,
		Balance:      balance,
		BalanceUnits: units.Format(balance),
	})
}

// Deactivate handles POST /api/v1/agents/:agentId/deactivate. An
// authenticated agent may only deactivate itself.
func (h *AgentHandler) Deactivate(c *gin.Context) {
	agentID := c.Param("agentId")
	if caller, ok := middleware.AuthenticatedAgent(c); ok && caller != agentID {
		response.Error(c, apperror.ErrForbidden("cannot deactivate another agent"))
		return
	}

	if err := h.directory.Deactivate(c.Request.Context(), agentID); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"agent_id": agentID, "is_active": false})
}

func toAgentResponse(a *domain.AgentAccount) dto.AgentResponse {
	return dto.AgentResponse{
		ID:        a.ID,
		Address:   a.Address,
		IsActive:  a.IsActive,
		CreatedAt: a.CreatedAt.Format(time.RFC3339),
		UpdatedAt: a.UpdatedAt.Format(time.RFC3339),
	}
}
