package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/hashicorp/go-retryablehttp"
)

// PixClient инкапсулирует HTTP-взаимодействие с PIX-провайдером.
type PixClient struct {
	baseURL    string
	httpClient *retryablehttp.Client
}

// NewPixClient создаёт клиент PIX-шлюза по указанному адресу.
func NewPixClient(baseURL string) *PixClient {
	return &PixClient{
		baseURL:    normalizeBaseURL(baseURL),
		httpClient: newHTTPClient(),
	}
}

type pixDepositRequest struct {
	AmountCents int64  `json:"amount_cents"`
	PayerEmail  string `json:"payer_email"`
}

type pixDepositResponse struct {
	DepositID   string `json:"deposit_id"`
	Status      string `json:"status"`
	QRCopyPaste string `json:"qrCopyPaste"`
	CheckoutURL string `json:"checkout_url"`
	Error       string `json:"error"`
}

type pixStatusResponse struct {
	DepositID string `json:"deposit_id"`
	Status    string `json:"status"`
	Error     string `json:"error"`
}

type pixPayoutRequest struct {
	AmountCents int64  `json:"amount_cents"`
	PixKeyType  string `json:"pix_key_type"`
	PixKey      string `json:"pix_key"`
	HolderTaxID string `json:"holder_tax_id,omitempty"`
}

type pixPayoutResponse struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// CreateCharge создаёт PIX-депозит и возвращает ссылку на оплату QR-кодом.
func (c *PixClient) CreateCharge(ctx context.Context, amountCents int64, payerEmail string) (*ChargeHandle, error) {
	if c == nil || c.baseURL == "" {
		return nil, &Error{Message: "pix gateway not configured"}
	}

	body := pixDepositRequest{
		AmountCents: amountCents,
		PayerEmail:  payerEmail,
	}

	var resp pixDepositResponse
	status, err := c.doJSON(ctx, http.MethodPost, "/v1/deposits", body, &resp)
	if err != nil {
		return nil, err
	}
	if status != http.StatusCreated && status != http.StatusOK {
		return nil, classifyStatus(status, resp.Error)
	}

	return &ChargeHandle{ID: resp.DepositID, RedirectURL: resp.CheckoutURL}, nil
}

// ConfirmCharge запрашивает статус депозита. Повторные вызовы безопасны.
func (c *PixClient) ConfirmCharge(ctx context.Context, chargeID string) (ChargeState, error) {
	if c == nil || c.baseURL == "" {
		return "", &Error{Message: "pix gateway not configured"}
	}

	var resp pixStatusResponse
	status, err := c.doJSON(ctx, http.MethodGet, "/v1/deposits/"+chargeID, nil, &resp)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", classifyStatus(status, resp.Error)
	}

	return mapProviderState(resp.Status)
}

// CreatePayout инициирует выплату на PIX-ключ получателя.
func (c *PixClient) CreatePayout(ctx context.Context, amountCents int64, dest Destination) (*PayoutHandle, error) {
	if c == nil || c.baseURL == "" {
		return nil, &Error{Message: "pix gateway not configured"}
	}

	body := pixPayoutRequest{
		AmountCents: amountCents,
		PixKeyType:  dest.PixKeyType,
		PixKey:      dest.PixKey,
		HolderTaxID: dest.HolderTaxID,
	}

	var resp pixPayoutResponse
	status, err := c.doJSON(ctx, http.MethodPost, "/v1/payouts", body, &resp)
	if err != nil {
		return nil, err
	}
	if status != http.StatusCreated && status != http.StatusOK {
		return nil, classifyStatus(status, resp.Error)
	}

	return &PayoutHandle{ID: resp.ID}, nil
}

func (c *PixClient) doJSON(ctx context.Context, method, path string, in, out any) (int, error) {
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
