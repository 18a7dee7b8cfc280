package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
)

// CardClient инкапсулирует HTTP-взаимодействие с карточным процессингом.
type CardClient struct {
	baseURL    string
	httpClient *retryablehttp.Client
}

// NewCardClient создаёт клиент карточного шлюза по указанному адресу.
func NewCardClient(baseURL string) *CardClient {
	return &CardClient{
		baseURL:    normalizeBaseURL(baseURL),
		httpClient: newHTTPClient(),
	}
}

type cardChargeRequest struct {
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
	PayerEmail  string `json:"payer_email"`
}

type cardChargeResponse struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	RedirectURL string `json:"redirect_url"`
	Error       string `json:"error"`
}

type cardPayoutRequest struct {
	AmountCents int64  `json:"amount_cents"`
	BankCode    string `json:"bank_code"`
	Agency      string `json:"agency"`
	Account     string `json:"account"`
	Digit       string `json:"digit"`
	AccountType string `json:"account_type"`
	HolderName  string `json:"holder_name"`
	HolderTaxID string `json:"holder_tax_id"`
	PixKeyType  string `json:"pix_key_type,omitempty"`
	PixKey      string `json:"pix_key,omitempty"`
}

type cardPayoutResponse struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// CreateCharge создаёт платёж на указанную сумму и возвращает его идентификатор
// вместе со ссылкой на платёжную форму.
func (c *CardClient) CreateCharge(ctx context.Context, amountCents int64, payerEmail string) (*ChargeHandle, error) {
	if c == nil || c.baseURL == "" {
		return nil, &Error{Message: "card gateway not configured"}
	}

	body := cardChargeRequest{
		AmountCents: amountCents,
		Currency:    "BRL",
		PayerEmail:  payerEmail,
	}

	var resp cardChargeResponse
	status, err := c.doJSON(ctx, http.MethodPost, "/api/charges", body, &resp)
	if err != nil {
		return nil, err
	}
	if status != http.StatusCreated && status != http.StatusOK {
		return nil, classifyStatus(status, resp.Error)
	}

	return &ChargeHandle{ID: resp.ID, RedirectURL: resp.RedirectURL}, nil
}

// ConfirmCharge запрашивает текущий статус платежа. Повторные вызовы для
// подтверждённого платежа возвращают StateConfirmed без побочных эффектов.
func (c *CardClient) ConfirmCharge(ctx context.Context, chargeID string) (ChargeState, error) {
	if c == nil || c.baseURL == "" {
		return "", &Error{Message: "card gateway not configured"}
	}

	var resp cardChargeResponse
	status, err := c.doJSON(ctx, http.MethodGet, "/api/charges/"+chargeID, nil, &resp)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", classifyStatus(status, resp.Error)
	}

	return mapProviderState(resp.Status)
}

// CreatePayout инициирует выплату на банковские реквизиты получателя.
func (c *CardClient) CreatePayout(ctx context.Context, amountCents int64, dest Destination) (*PayoutHandle, error) {
	if c == nil || c.baseURL == "" {
		return nil, &Error{Message: "card gateway not configured"}
	}

	body := cardPayoutRequest{
		AmountCents: amountCents,
		BankCode:    dest.BankCode,
		Agency:      dest.Agency,
		Account:     dest.Account,
		Digit:       dest.Digit,
		AccountType: dest.AccountType,
		HolderName:  dest.HolderName,
		HolderTaxID: dest.HolderTaxID,
		PixKeyType:  dest.PixKeyType,
		PixKey:      dest.PixKey,
	}

	var resp cardPayoutResponse
	status, err := c.doJSON(ctx, http.MethodPost, "/api/payouts", body, &resp)
	if err != nil {
		return nil, err
	}
	if status != http.StatusCreated && status != http.StatusOK {
		return nil, classifyStatus(status, resp.Error)
	}

	return &PayoutHandle{ID: resp.ID}, nil
}

func (c *CardClient) doJSON(ctx context.Context, method, path string, in, out any) (int, error) {
	var reqBody io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, transportError(err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}

	return resp.StatusCode, nil
}

// mapProviderState приводит статусы процессинга к внутренним.
func mapProviderState(providerStatus string) (ChargeState, error) {
	switch strings.ToLower(providerStatus) {
	case "confirmed", "paid", "settled", "depix_sent":
		return StateConfirmed, nil
	case "created", "pending", "processing", "under_review":
		return StatePending, nil
	case "failed", "declined", "expired", "canceled", "refunded":
		return StateFailed, nil
	default:
		return "", &Error{Message: fmt.Sprintf("unknown provider status %q", providerStatus)}
	}
}

func normalizeBaseURL(baseURL string) string {
	if baseURL == "" {
		return ""
	}
	base := strings.TrimRight(baseURL, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return base
}
