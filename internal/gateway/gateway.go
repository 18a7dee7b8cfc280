// Package gateway предоставляет единый интерфейс к внешним платёжным шлюзам.
// Поддерживаются два взаимозаменяемых бэкенда: карточный и PIX. Выбор шлюза
// выполняется на каждую операцию отдельно, а не глобально для пользователя.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/avdeenkov/qapay-system/internal/model"
)

// ChargeState описывает статус платежа по данным шлюза.
type ChargeState string

const (
	StateConfirmed ChargeState = "confirmed"
	StatePending   ChargeState = "pending"
	StateFailed    ChargeState = "failed"
)

// ChargeHandle содержит идентификатор созданного платежа и ссылку для оплаты.
type ChargeHandle struct {
	ID          string
	RedirectURL string
}

// PayoutHandle содержит идентификатор созданной выплаты.
type PayoutHandle struct {
	ID string
}

// Destination описывает получателя выплаты: PIX-ключ или банковские реквизиты.
// Заполняется только один набор полей в зависимости от способа вывода.
type Destination struct {
	PixKeyType  string
	PixKey      string
	BankCode    string
	Agency      string
	Account     string
	Digit       string
	AccountType string
	HolderName  string
	HolderTaxID string
}

// Error описывает ошибку платёжного шлюза. Retryable означает, что
// повтор операции с тем же идентификатором безопасен и имеет смысл.
type Error struct {
	StatusCode int
	Message    string
	Retryable  bool
}

func (e *Error) Error() string {
	return fmt.Sprintf("gateway error (status %d, retryable %t): %s", e.StatusCode, e.Retryable, e.Message)
}

// Gateway определяет операции платёжного шлюза.
// ConfirmCharge безопасно вызывать многократно: уже подтверждённый платёж
// возвращает StateConfirmed без побочных эффектов.
type Gateway interface {
	CreateCharge(ctx context.Context, amountCents int64, payerEmail string) (*ChargeHandle, error)
	ConfirmCharge(ctx context.Context, chargeID string) (ChargeState, error)
	CreatePayout(ctx context.Context, amountCents int64, dest Destination) (*PayoutHandle, error)
}

// Selector хранит оба настроенных шлюза и выбирает нужный по типу операции.
type Selector struct {
	card Gateway
	pix  Gateway
}

// NewSelector создаёт селектор шлюзов.
func NewSelector(card, pix Gateway) *Selector {
	return &Selector{card: card, pix: pix}
}

// ByKind возвращает шлюз указанного типа; по умолчанию карточный.
func (s *Selector) ByKind(kind model.GatewayKind) Gateway {
	if kind == model.GatewayPix {
		return s.pix
	}
	return s.card
}

func newHTTPClient() *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.Logger = nil
	c.RetryMax = 2
	c.RetryWaitMin = 100 * time.Millisecond
	c.RetryWaitMax = 2 * time.Second
	c.HTTPClient.Timeout = 5 * time.Second
	return c
}

// classifyStatus переводит HTTP-статус шлюза в ошибку с признаком повторяемости.
// Таймауты и 5xx считаются временными, отказы по данным (4xx) — окончательными.
func classifyStatus(statusCode int, message string) *Error {
	retryable := statusCode >= http.StatusInternalServerError ||
		statusCode == http.StatusTooManyRequests ||
		statusCode == http.StatusRequestTimeout
	return &Error{
		StatusCode: statusCode,
		Message:    message,
		Retryable:  retryable,
	}
}

func transportError(err error) *Error {
	return &Error{
		Message:   err.Error(),
		Retryable: true,
	}
}
