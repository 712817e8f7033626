package handler

import (
	"agentpay/internal/adapter/http/dto"
	"agentpay/internal/core/ports"
	"agentpay/pkg/apperror"
	"agentpay/pkg/response"

	"github.com/gin-gonic/gin"
)

// PrivacyHandler exposes privacy token verification.
type PrivacyHandler struct {
	issuer ports.PrivacyTokenIssuer
}

// NewPrivacyHandler creates a new PrivacyHandler.
func NewPrivacyHandler(issuer ports.PrivacyTokenIssuer) *PrivacyHandler {
	return &PrivacyHandler{issuer: issuer}
}

// Verify handles POST /api/v1/privacy/verify.
func (h *PrivacyHandler) Verify(c *gin.Context) {
	var req dto.VerifyTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.InvalidRequest(err.Error()))
		return
	}

	ctx := c.Request.Context()
	valid, err := h.issuer.Verify(ctx, req.Token)
	if err != nil {
		response.Error(c, err)
		return
	}

	resp := dto.VerifyTokenResponse{Valid: valid, Mode: string(h.issuer.Mode())}
	if valid {
		details, err := h.issuer.Details(ctx, req.Token)
		if err != nil {
			response.Error(c, err)
			return
		}
		if details != nil {
			resp.Details = &dto.TokenDetailsResponse{
				From:      details.From,
				To:        details.To,
				Amount:    details.Amount,
				Memo:      details.Memo,
				Timestamp: details.Timestamp,
			}
		}
	}
	response.OK(c, resp)
}
