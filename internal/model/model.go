// Package model содержит доменные сущности сервиса qapay.
package model

import (
	"time"

	"github.com/google/uuid"
)

// User представляет зарегистрированного пользователя площадки.
type User struct {
	ID           int64
	Login        string
	PasswordHash []byte
	CreatedAt    time.Time
}

// GatewayKind определяет платёжный шлюз, через который проводится операция.
type GatewayKind string

const (
	GatewayCard GatewayKind = "card"
	GatewayPix  GatewayKind = "pix"
)

// QuestionStatus описывает статус вопроса.
type QuestionStatus string

const (
	QuestionStatusOpen     QuestionStatus = "open"
	QuestionStatusAnswered QuestionStatus = "answered"
	QuestionStatusClosed   QuestionStatus = "closed"
)

// Question описывает вопрос с назначенным вознаграждением.
// Сумма вознаграждения фиксируется при создании и не изменяется.
type Question struct {
	ID            uuid.UUID
	Subject       string
	Body          string
	BountyCents   int64
	RequesterID   int64
	RequesterName string
	Attachments   []string
	Difficulty    string
	Status        QuestionStatus
	CreatedAt     time.Time
}

// AnswerStatus описывает статус ответа.
type AnswerStatus string

const (
	AnswerStatusPending  AnswerStatus = "pending"
	AnswerStatusAccepted AnswerStatus = "accepted"
	AnswerStatusRejected AnswerStatus = "rejected"
)

// Answer описывает ответ на вопрос. Поля QuestionSubject и BountyCents —
// денормализованные копии для списков, источником истины остаётся Question.
type Answer struct {
	ID              uuid.UUID
	QuestionID      uuid.UUID
	Body            string
	Explanation     string
	Attachments     []string
	ResponderID     int64
	ResponderName   string
	QuestionSubject string
	BountyCents     int64
	Status          AnswerStatus
	CreatedAt       time.Time
}

// ChargeStatus описывает статус попытки оплаты.
type ChargeStatus string

const (
	ChargeStatusCreated   ChargeStatus = "created"
	ChargeStatusPending   ChargeStatus = "pending"
	ChargeStatusConfirmed ChargeStatus = "confirmed"
	ChargeStatusFailed    ChargeStatus = "failed"
)

// Charge описывает попытку списания вознаграждения через платёжный шлюз.
// Идентификатор присваивается шлюзом при создании.
type Charge struct {
	ID          string
	QuestionID  uuid.UUID
	AnswerID    uuid.UUID
	AmountCents int64
	Currency    string
	Gateway     GatewayKind
	Status      ChargeStatus
	RedirectURL string
	CreatedAt   time.Time
	ConfirmedAt *time.Time
}

// Balance содержит баланс пользователя в основных единицах валюты.
type Balance struct {
	Available      float64 `json:"available"`
	TotalEarned    float64 `json:"totalEarned"`
	TotalWithdrawn float64 `json:"totalWithdrawn"`
}

// TransactionDirection указывает направление движения средств.
type TransactionDirection string

const (
	TransactionCredit TransactionDirection = "credit"
	TransactionDebit  TransactionDirection = "debit"
)

// Transaction описывает неизменяемую запись в истории операций пользователя.
type Transaction struct {
	ID          uuid.UUID
	UserID      int64
	Direction   TransactionDirection
	AmountCents int64
	Description string
	Ref         string
	CreatedAt   time.Time
}

// WithdrawalStatus описывает статус заявки на вывод средств.
type WithdrawalStatus string

const (
	WithdrawalStatusRequested WithdrawalStatus = "requested"
	WithdrawalStatusPaid      WithdrawalStatus = "paid"
	WithdrawalStatusFailed    WithdrawalStatus = "failed"
)

// WithdrawalMethod определяет способ вывода средств.
type WithdrawalMethod string

const (
	WithdrawalMethodPix  WithdrawalMethod = "pix"
	WithdrawalMethodBank WithdrawalMethod = "bank"
)

// Withdrawal описывает заявку на вывод средств с внутреннего баланса.
type Withdrawal struct {
	ID          uuid.UUID
	UserID      int64
	AmountCents int64
	FeeCents    int64
	NetCents    int64
	Method      WithdrawalMethod
	Gateway     GatewayKind
	Status      WithdrawalStatus
	CreatedAt   time.Time
}

// PixKeyType определяет тип PIX-ключа.
type PixKeyType string

const (
	PixKeyCPF    PixKeyType = "cpf"
	PixKeyCNPJ   PixKeyType = "cnpj"
	PixKeyEmail  PixKeyType = "email"
	PixKeyPhone  PixKeyType = "phone"
	PixKeyRandom PixKeyType = "random"
)

// PixKey описывает сохранённый PIX-ключ пользователя.
// У пользователя может быть несколько ключей, primary — не более одного.
type PixKey struct {
	ID        uuid.UUID
	UserID    int64
	Type      PixKeyType
	Key       string
	Nickname  string
	IsPrimary bool
	CreatedAt time.Time
}

// BankAccountType определяет тип банковского счёта.
type BankAccountType string

const (
	BankAccountChecking BankAccountType = "checking"
	BankAccountSavings  BankAccountType = "savings"
)

// BankAccount описывает банковские реквизиты пользователя.
// Хранится не более одной записи, повторное сохранение заменяет её.
type BankAccount struct {
	UserID      int64
	BankCode    string
	Agency      string
	Account     string
	Digit       string
	Type        BankAccountType
	HolderName  string
	HolderTaxID string
}
