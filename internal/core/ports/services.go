package ports

import (
	"context"
	"time"

	"agentpay/internal/core/domain"
	"agentpay/internal/signer"

	"github.com/google/uuid"
)

// EncryptionService seals and opens credential blobs with authenticated encryption.
type EncryptionService interface {
	Encrypt(plaintext []byte) (string, error)
	Decrypt(blob string) ([]byte, error)
}

// TokenService handles agent access tokens.
type TokenService interface {
	Generate(agentID string) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	AgentID string
}

// AuditService records security relevant actions.
type AuditService interface {
	Log(ctx context.Context, entry *domain.AuditLog)
}

// --- Service Ports (Business Logic) ---

// KeyVault owns creation, sealed storage and on-demand opening of agent
// signing credentials.
type KeyVault interface {
	Generate(ctx context.Context, agentID string) (*domain.WalletRecord, error)
	// ImportAddress records a caller-supplied public address. The vault still
	// seals a freshly generated keypair, so the agent does not control address.
	ImportAddress(ctx context.Context, agentID, address string) (*domain.WalletRecord, error)
	// Reveal opens the sealed credential. Audited; only payment execution may call it.
	Reveal(ctx context.Context, agentID string) (*signer.Credential, error)
}

// AccountDirectory owns agent identity and wallet-address records.
type AccountDirectory interface {
	Register(ctx context.Context, agentID string, address *string) (*domain.AgentAccount, error)
	Get(ctx context.Context, agentID string) (*domain.AgentAccount, error)
	List(ctx context.Context) ([]domain.AgentAccount, error)
	ResolveAddress(ctx context.Context, agentID string) (string, error)
	Balance(ctx context.Context, agentID string) (int64, error)
	Deactivate(ctx context.Context, agentID string) error
}

// PrivacyMode names the issuance strategy selected at startup.
type PrivacyMode string

const (
	PrivacyModeRemote PrivacyMode = "remote"
	PrivacyModeLocal  PrivacyMode = "local"
)

// IssuedToken is the result of privacy token issuance.
type IssuedToken struct {
	Token string
	Blob  string
	// Local is true when the token came from local issuance and offers no
	// confidentiality to anyone who can base64-decode it.
	Local bool
}

// TokenDetails is what a remote issuer discloses about a token.
type TokenDetails struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Amount    int64  `json:"amount"`
	Memo      string `json:"memo,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// PrivacyTokenIssuer binds (sender, recipient, amount, time) into an opaque token.
type PrivacyTokenIssuer interface {
	// Issue never fails because of the remote issuer; remote errors fall back
	// to local issuance.
	Issue(ctx context.Context, fromAddress, toAddress string, amount int64, memo *string) (*IssuedToken, error)
	Verify(ctx context.Context, token string) (bool, error)
	// Details returns nil when the issuer cannot or will not disclose details.
	Details(ctx context.Context, token string) (*TokenDetails, error)
	Mode() PrivacyMode
	// Degraded reports whether tokens are currently being issued locally.
	Degraded() bool
	// Fallbacks counts remote failures that were served by local issuance.
	Fallbacks() int64
}

// SettlementStatus describes the network's view of a submitted transfer.
type SettlementStatus struct {
	Confirmed bool   `json:"confirmed"`
	RawStatus string `json:"raw_status"`
	Error     string `json:"error,omitempty"`
}

// Ledger is the external settlement network.
type Ledger interface {
	CurrentBalance(ctx context.Context, address string) (int64, error)
	// SubmitTransfer checks the live sender balance, submits, and waits for
	// confirmation. It returns the settlement identifier.
	SubmitTransfer(ctx context.Context, cred *signer.Credential, toAddress string, amount int64, memo *string) (string, error)
	SettlementStatus(ctx context.Context, settlementID string) (*SettlementStatus, error)
}

// PaymentLedger is the payment lifecycle engine.
type PaymentLedger interface {
	Create(ctx context.Context, req CreatePaymentRequest) (*domain.PaymentRecord, error)
	Process(ctx context.Context, paymentID uuid.UUID) (*domain.PaymentRecord, error)
	// Get returns nil for unknown payments and for requesters that are
	// neither sender nor recipient.
	Get(ctx context.Context, paymentID uuid.UUID, requester *string) (*domain.PaymentRecord, error)
	ListForAgent(ctx context.Context, params PaymentListParams) ([]domain.PaymentRecord, error)
}

// CreatePaymentRequest holds validated input for payment creation.
type CreatePaymentRequest struct {
	FromAgentID string
	ToAgentID   string
	Amount      int64
	Memo        *string
}

// PaymentDispatcher implements "send payment": create, then process asynchronously.
type PaymentDispatcher interface {
	Send(ctx context.Context, req SendPaymentRequest) (*domain.PaymentRecord, error)
}

// SendPaymentRequest is a CreatePaymentRequest with an optional idempotency key.
type SendPaymentRequest struct {
	CreatePaymentRequest
	IdempotencyKey string
	ClientIP       string
}

// PaymentHandler processes a payment ID taken from the queue.
type PaymentHandler func(ctx context.Context, paymentID string) error

// PaymentQueue carries payment IDs from the dispatcher to processing workers.
type PaymentQueue interface {
	Publish(ctx context.Context, paymentID string) error
	// Consume blocks, running workerCount workers, until ctx is done.
	Consume(ctx context.Context, workerCount int, handler PaymentHandler) error
	Close() error
}
