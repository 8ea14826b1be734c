package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kiidfreak/Triomar-Spares-sub000/config"

	"go.uber.org/zap"
)

const (
	liveBaseURL    = "https://payment.intasend.com"
	sandboxBaseURL = "https://sandbox.intasend.com"
)

// Outcome is the normalized settlement state of a charge. All
// provider-specific status strings are folded into this union at the
// gateway boundary so the inconsistent casing between the mobile-money
// and hosted-checkout APIs never leaks into handler logic.
type Outcome string

const (
	OutcomePending   Outcome = "pending"
	OutcomeConfirmed Outcome = "confirmed"
	OutcomeFailed    Outcome = "failed"
	OutcomeUnknown   Outcome = "unknown"
)

type ChargeRequest struct {
	Amount           float64
	Currency         string
	Narrative        string
	AccountReference string
	PhoneNumber      string // mobile money only, normalized international form
	Name             string // card/wallet payer display name
	Email            string // card/wallet payer contact
	RedirectURL      string // card/wallet return link
}

type ChargeResult struct {
	InvoiceID   string
	PaymentURL  string
	RawResponse json.RawMessage
}

type StatusResult struct {
	Outcome       Outcome
	RawTag        string
	TransactionID string
	RawResponse   json.RawMessage
}

// PaymentGateway is what the orchestrator depends on; tests substitute
// a fake without touching process environment.
type PaymentGateway interface {
	InitiateMobileMoneyCharge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
	CreateHostedCardSession(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
	CreateHostedWalletSession(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
	CheckStatus(ctx context.Context, accountReference string) (*StatusResult, error)
}

// Client wraps the hosted provider's REST API. No retries are attempted
// here; retry is the caller's decision.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	publicKey    string
	secretKey    string
	businessName string
	logger       *zap.Logger
}

func NewClient(cfg *config.Config, logger *zap.Logger) *Client {
	baseURL := cfg.PaymentAPIBaseURL
	if baseURL == "" {
		if cfg.PaymentLiveMode {
			baseURL = liveBaseURL
		} else {
			baseURL = sandboxBaseURL
		}
	}
	return &Client{
		httpClient:   &http.Client{},
		baseURL:      strings.TrimRight(baseURL, "/"),
		publicKey:    cfg.PaymentPublicKey,
		secretKey:    cfg.PaymentSecretKey,
		businessName: cfg.BusinessName,
		logger:       logger,
	}
}

// InitiateMobileMoneyCharge triggers a push-style authorization prompt
// on the payer's device. The phone number must already be normalized.
func (c *Client) InitiateMobileMoneyCharge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	payload := map[string]interface{}{
		"amount":       req.Amount,
		"phone_number": req.PhoneNumber,
		"currency":     req.Currency,
		"narrative":    req.Narrative,
		"api_ref":      req.AccountReference,
	}

	raw, err := c.post(ctx, "/api/v1/payment/mpesa-stk-push/", payload)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Invoice struct {
			InvoiceID string `json:"invoice_id"`
		} `json:"invoice"`
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode provider response: %w", err)
	}

	invoiceID := resp.Invoice.InvoiceID
	if invoiceID == "" {
		invoiceID = resp.ID
	}

	return &ChargeResult{InvoiceID: invoiceID, RawResponse: raw}, nil
}

// CreateHostedCardSession returns a redirect URL for the provider's
// off-site payment page.
func (c *Client) CreateHostedCardSession(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	return c.createCheckoutSession(ctx, req, "CARD-PAYMENT")
}

// CreateHostedWalletSession is the card flow with a wallet method hint
// enabled on the hosted page.
func (c *Client) CreateHostedWalletSession(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	return c.createCheckoutSession(ctx, req, "WALLET")
}

func (c *Client) createCheckoutSession(ctx context.Context, req ChargeRequest, method string) (*ChargeResult, error) {
	payload := map[string]interface{}{
		"public_key":   c.publicKey,
		"amount":       req.Amount,
		"currency":     req.Currency,
		"first_name":   req.Name,
		"email":        req.Email,
		"api_ref":      req.AccountReference,
		"comment":      req.Narrative,
		"method":       method,
		"redirect_url": req.RedirectURL,
		"host":         c.businessName,
	}

	raw, err := c.post(ctx, "/api/v1/checkout/", payload)
	if err != nil {
		return nil, err
	}

	var resp struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode provider response: %w", err)
	}
	if resp.URL == "" {
		return nil, fmt.Errorf("provider returned no payment URL")
	}

	return &ChargeResult{InvoiceID: resp.ID, PaymentURL: resp.URL, RawResponse: raw}, nil
}

// CheckStatus queries the provider for the current state of a prior
// charge or session keyed by its account reference.
func (c *Client) CheckStatus(ctx context.Context, accountReference string) (*StatusResult, error) {
	payload := map[string]interface{}{
		"api_ref": accountReference,
	}

	raw, err := c.post(ctx, "/api/v1/payment/status/", payload)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Invoice struct {
			State     string `json:"state"`
			MpesaRef  string `json:"mpesa_reference"`
			InvoiceID string `json:"invoice_id"`
		} `json:"invoice"`
		State string `json:"state"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode provider response: %w", err)
	}

	tag := resp.Invoice.State
	if tag == "" {
		tag = resp.State
	}

	txnID := resp.Invoice.MpesaRef
	if txnID == "" {
		txnID = resp.Invoice.InvoiceID
	}

	return &StatusResult{
		Outcome:       normalizeTag(tag),
		RawTag:        tag,
		TransactionID: txnID,
		RawResponse:   raw,
	}, nil
}

// normalizeTag folds both casing conventions the provider uses: the
// mobile-money API reports upper-case enumerated tokens, the hosted
// checkout API lower-case ones.
func normalizeTag(tag string) Outcome {
	switch strings.ToLower(tag) {
	case "complete", "completed", "paid":
		return OutcomeConfirmed
	case "failed", "cancelled":
		return OutcomeFailed
	case "pending", "processing", "retry":
		return OutcomePending
	case "":
		return OutcomeUnknown
	default:
		return OutcomeUnknown
	}
}

func (c *Client) post(ctx context.Context, path string, payload map[string]interface{}) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.secretKey)
	httpReq.Header.Set("X-IntaSend-Public-API-Key", c.publicKey)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("payment provider request failed: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read provider response: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		msg := extractErrorMessage(respBody)
		c.logger.Warn("Provider request rejected",
			zap.String("path", path),
			zap.Int("status", httpResp.StatusCode),
			zap.String("message", msg))
		return nil, fmt.Errorf("%s", msg)
	}

	return respBody, nil
}

// extractErrorMessage digs the most specific message out of the
// provider's error body, which varies in shape between endpoints.
func extractErrorMessage(body []byte) string {
	var withErrors struct {
		Errors []struct {
			Detail  string `json:"detail"`
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &withErrors); err == nil && len(withErrors.Errors) > 0 {
		if withErrors.Errors[0].Detail != "" {
			return withErrors.Errors[0].Detail
		}
		if withErrors.Errors[0].Message != "" {
			return withErrors.Errors[0].Message
		}
	}

	var flat struct {
		Detail  string `json:"detail"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &flat); err == nil {
		if flat.Detail != "" {
			return flat.Detail
		}
		if flat.Message != "" {
			return flat.Message
		}
		if flat.Error != "" {
			return flat.Error
		}
	}

	return "payment provider request failed"
}
