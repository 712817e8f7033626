package dto

// RegisterAgentRequest is the request body for agent registration.
type RegisterAgentRequest struct {
	AgentID string  `json:"agent_id" binding:"required,agent_id"`
	Address *string `json:"address,omitempty" binding:"omitempty,eth_addr"`
}

// AgentResponse is the public view of an agent account.
type AgentResponse struct {
	ID        string `json:"id"`
	Address   string `json:"address"`
	IsActive  bool   `json:"is_active"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// RegisterAgentResponse is returned on successful registration. Token is
// empty when access tokens are disabled.
type RegisterAgentResponse struct {
	Agent       AgentResponse `json:"agent"`
	Token       string        `json:"token,omitempty"`
	TokenExpiry int64         `json:"token_expiry,omitempty"` // Unix timestamp
}

// BalanceResponse carries the live balance in both units.
type BalanceResponse struct {
	AgentID      string `json:"agent_id"`
	Address      string `json:"address"`
	Balance      int64  `json:"balance"`
	BalanceUnits string `json:"balance_units"`
}

// SendPaymentRequest is the request body for sending a payment. Amount is in
// the smallest unit; AmountUnits is an alternative decimal amount in the
// human unit.
type SendPaymentRequest struct {
	FromAgentID string  `json:"from_agent_id" binding:"required,agent_id"`
	ToAgentID   string  `json:"to_agent_id" binding:"required,agent_id,nefield=FromAgentID"`
	Amount      int64   `json:"amount" binding:"required_without=AmountUnits,omitempty,gt=0"`
	AmountUnits string  `json:"amount_units,omitempty" binding:"required_without=Amount,omitempty,decimal_amount"`
	Memo        *string `json:"memo,omitempty" binding:"omitempty,max=256"`
}

// PaymentResponse is the public view of a payment record.
type PaymentResponse struct {
	ID            string  `json:"id"`
	FromAgentID   string  `json:"from_agent_id"`
	ToAgentID     string  `json:"to_agent_id"`
	Amount        int64   `json:"amount"`
	AmountUnits   string  `json:"amount_units"`
	Memo          *string `json:"memo,omitempty"`
	Status        string  `json:"status"`
	SettlementID  *string `json:"settlement_id,omitempty"`
	PrivacyToken  *string `json:"privacy_token,omitempty"`
	FailureReason *string `json:"failure_reason,omitempty"`
	CreatedAt     string  `json:"created_at"`
	UpdatedAt     string  `json:"updated_at"`
	CompletedAt   *string `json:"completed_at,omitempty"`
}

// PaymentListResponse wraps a payment listing.
type PaymentListResponse struct {
	Items []PaymentResponse `json:"items"`
	Count int               `json:"count"`
}

// VerifyTokenRequest is the request body for privacy token verification.
type VerifyTokenRequest struct {
	Token string `json:"token" binding:"required"`
}

// TokenDetailsResponse is what the issuer discloses about a token.
type TokenDetailsResponse struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Amount    int64  `json:"amount"`
	Memo      string `json:"memo,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// VerifyTokenResponse reports token validity. Details is omitted when the
// issuer does not disclose them.
type VerifyTokenResponse struct {
	Valid   bool                  `json:"valid"`
	Mode    string                `json:"mode"`
	Details *TokenDetailsResponse `json:"details,omitempty"`
}
