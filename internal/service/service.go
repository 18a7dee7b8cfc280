// Package service реализует бизнес-логику сервиса qapay: жизненный цикл
// вопроса и ответа, проведение оплаты и вывод средств.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/avdeenkov/qapay-system/internal/fees"
	"github.com/avdeenkov/qapay-system/internal/gateway"
	"github.com/avdeenkov/qapay-system/internal/model"
	"github.com/avdeenkov/qapay-system/internal/repository"
	"github.com/avdeenkov/qapay-system/internal/validation"
)

// ErrInvalidInput возвращается для некорректных входных данных.
var ErrInvalidInput = errors.New("invalid input")

// ErrInvalidCredentials возвращается при неверной паре логин/пароль.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateUser(ctx context.Context, login string, passwordHash []byte) (int64, error)
	GetUserByLogin(ctx context.Context, login string) (*model.User, error)
	GetUserLogin(ctx context.Context, userID int64) (string, error)
	GetPreferredGateway(ctx context.Context, userID int64) (model.GatewayKind, error)
	SetPreferredGateway(ctx context.Context, userID int64, kind model.GatewayKind) error
	CreateQuestion(ctx context.Context, q *model.Question) error
	GetQuestion(ctx context.Context, id uuid.UUID) (*model.Question, error)
	CreateAnswer(ctx context.Context, a *model.Answer) error
	GetAnswer(ctx context.Context, id uuid.UUID) (*model.Answer, error)
	RejectAnswer(ctx context.Context, answerID uuid.UUID, requesterID int64) error
	CreateCharge(ctx context.Context, c *model.Charge) error
	GetChargeByAnswer(ctx context.Context, answerID uuid.UUID) (*model.Charge, error)
	SettleCharge(ctx context.Context, chargeID string, payoutCents int64, description string) (bool, error)
	MarkChargePending(ctx context.Context, chargeID string) error
	MarkChargeFailed(ctx context.Context, chargeID string) error
	GetPendingCharges(ctx context.Context, limit int) ([]repository.PendingCharge, error)
	GetBalance(ctx context.Context, userID int64) (available, totalEarned, totalWithdrawn int64, err error)
	ListTransactions(ctx context.Context, userID int64) ([]model.Transaction, error)
	CreateWithdrawal(ctx context.Context, w *model.Withdrawal) error
	CompleteWithdrawal(ctx context.Context, withdrawalID uuid.UUID, userID int64, amountCents int64, description string) error
	FailWithdrawal(ctx context.Context, withdrawalID uuid.UUID) error
	GetWithdrawalsByUser(ctx context.Context, userID int64) ([]model.Withdrawal, error)
	SavePixKey(ctx context.Context, k *model.PixKey) error
	GetPixKey(ctx context.Context, id uuid.UUID, userID int64) (*model.PixKey, error)
	SaveBankAccount(ctx context.Context, b *model.BankAccount) error
	GetBankAccount(ctx context.Context, userID int64) (*model.BankAccount, error)
}

// Service содержит бизнес-логику сервиса qapay.
type Service struct {
	repo     Repository
	gateways *gateway.Selector
}

// NewService создаёт новый сервис с указанным репозиторием и селектором шлюзов.
func NewService(repo Repository, gateways *gateway.Selector) *Service {
	return &Service{
		repo:     repo,
		gateways: gateways,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterUser регистрирует нового пользователя.
func (s *Service) RegisterUser(ctx context.Context, login, password string) (int64, error) {
	hashed := hashPassword(login, password)
	id, err := s.repo.CreateUser(ctx, login, hashed)
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return 0, repository.ErrUserExists
		}
		return 0, err
	}
	return id, nil
}

// AuthenticateUser проверяет логин и пароль пользователя и возвращает его идентификатор.
func (s *Service) AuthenticateUser(ctx context.Context, login, password string) (int64, error) {
	u, err := s.repo.GetUserByLogin(ctx, login)
	if err != nil {
		return 0, err
	}

	hashed := hashPassword(login, password)
	if hex.EncodeToString(hashed) != hex.EncodeToString(u.PasswordHash) {
		return 0, ErrInvalidCredentials
	}

	return u.ID, nil
}

func hashPassword(login, password string) []byte {
	sum := sha256.Sum256([]byte(login + ":" + password))
	return sum[:]
}

// QuestionInput содержит данные нового вопроса.
type QuestionInput struct {
	Subject     string
	Body        string
	Bounty      float64
	Attachments []string
	Difficulty  string
}

// CreateQuestion создаёт вопрос с фиксированным вознаграждением.
func (s *Service) CreateQuestion(ctx context.Context, requesterID int64, requesterName string, in QuestionInput) (uuid.UUID, error) {
	bountyCents := toCents(in.Bounty)
	if bountyCents <= 0 {
		return uuid.Nil, fmt.Errorf("%w: bounty must be positive", ErrInvalidInput)
	}
	if in.Subject == "" || in.Body == "" {
		return uuid.Nil, fmt.Errorf("%w: subject and body are required", ErrInvalidInput)
	}

	q := &model.Question{
		ID:            uuid.New(),
		Subject:       in.Subject,
		Body:          in.Body,
		BountyCents:   bountyCents,
		RequesterID:   requesterID,
		RequesterName: requesterName,
		Attachments:   in.Attachments,
		Difficulty:    in.Difficulty,
		Status:        model.QuestionStatusOpen,
	}

	if err := s.repo.CreateQuestion(ctx, q); err != nil {
		return uuid.Nil, err
	}

	return q.ID, nil
}

// GetQuestion возвращает вопрос по идентификатору.
func (s *Service) GetQuestion(ctx context.Context, id uuid.UUID) (*model.Question, error) {
	return s.repo.GetQuestion(ctx, id)
}

// AnswerInput содержит данные нового ответа.
type AnswerInput struct {
	QuestionID  uuid.UUID
	Body        string
	Explanation string
	Attachments []string
}

// SubmitAnswer сохраняет ответ на открытый вопрос и возвращает его
// идентификатор и ориентировочную выплату автору. Выплата показывается
// заранее, фактическое зачисление происходит только при принятии ответа
// и рассчитывается той же формулой.
func (s *Service) SubmitAnswer(ctx context.Context, responderID int64, responderName string, in AnswerInput) (uuid.UUID, float64, error) {
	if in.Body == "" {
		return uuid.Nil, 0, fmt.Errorf("%w: answer body is required", ErrInvalidInput)
	}

	q, err := s.repo.GetQuestion(ctx, in.QuestionID)
	if err != nil {
		return uuid.Nil, 0, err
	}

	a := &model.Answer{
		ID:            uuid.New(),
		QuestionID:    in.QuestionID,
		Body:          in.Body,
		Explanation:   in.Explanation,
		Attachments:   in.Attachments,
		ResponderID:   responderID,
		ResponderName: responderName,
		Status:        model.AnswerStatusPending,
	}

	if err := s.repo.CreateAnswer(ctx, a); err != nil {
		return uuid.Nil, 0, err
	}

	preview := fromCents(fees.AnswerPayout(q.BountyCents))
	return a.ID, preview, nil
}

// RejectAnswer отклоняет ответ от имени автора вопроса; вопрос снова
// становится открытым.
func (s *Service) RejectAnswer(ctx context.Context, requesterID int64, answerID uuid.UUID) error {
	return s.repo.RejectAnswer(ctx, answerID, requesterID)
}

// RevealAnswer возвращает ответ для просмотра. Пока ответ не принят,
// его содержимое скрывается от автора вопроса — правило «плати, чтобы
// открыть» действует на уровне данных, а не только в интерфейсе.
func (s *Service) RevealAnswer(ctx context.Context, viewerID int64, answerID uuid.UUID) (*model.Answer, bool, error) {
	a, err := s.repo.GetAnswer(ctx, answerID)
	if err != nil {
		return nil, false, err
	}

	q, err := s.repo.GetQuestion(ctx, a.QuestionID)
	if err != nil {
		return nil, false, err
	}

	redacted := a.Status == model.AnswerStatusPending && viewerID == q.RequesterID
	if redacted {
		a.Body = ""
		a.Explanation = ""
		a.Attachments = nil
	}

	return a, redacted, nil
}

// AcceptResult содержит данные созданного платежа.
type AcceptResult struct {
	ChargeID    string
	RedirectURL string
}

// AcceptAnswer инициирует оплату вознаграждения автором вопроса. Создаёт
// платёж во внешнем шлюзе и сохраняет его; подтверждение выполняется
// отдельно через VerifyPayment, оплата может занять неограниченное время.
func (s *Service) AcceptAnswer(ctx context.Context, requesterID int64, questionID, answerID uuid.UUID, kind model.GatewayKind) (*AcceptResult, error) {
	q, err := s.repo.GetQuestion(ctx, questionID)
	if err != nil {
		return nil, err
	}
	if q.RequesterID != requesterID {
		return nil, repository.ErrNotRequester
	}
	if q.Status != model.QuestionStatusAnswered {
		return nil, repository.ErrQuestionNotAnswered
	}

	a, err := s.repo.GetAnswer(ctx, answerID)
	if err != nil {
		return nil, err
	}
	if a.QuestionID != questionID {
		return nil, repository.ErrAnswerNotFound
	}
	if a.Status != model.AnswerStatusPending {
		return nil, repository.ErrAnswerNotPending
	}

	if kind == "" {
		kind, err = s.repo.GetPreferredGateway(ctx, requesterID)
		if err != nil {
			return nil, err
		}
	}

	payerContact, err := s.repo.GetUserLogin(ctx, requesterID)
	if err != nil {
		return nil, err
	}

	gw := s.gateways.ByKind(kind)
	handle, err := gw.CreateCharge(ctx, q.BountyCents, payerContact)
	if err != nil {
		return nil, err
	}

	charge := &model.Charge{
		ID:          handle.ID,
		QuestionID:  questionID,
		AnswerID:    answerID,
		AmountCents: q.BountyCents,
		Currency:    "BRL",
		Gateway:     kind,
		Status:      model.ChargeStatusCreated,
		RedirectURL: handle.RedirectURL,
	}
	if err := s.repo.CreateCharge(ctx, charge); err != nil {
		return nil, err
	}

	s.persistPreferredGateway(ctx, requesterID, kind)

	return &AcceptResult{ChargeID: handle.ID, RedirectURL: handle.RedirectURL}, nil
}

// VerifyResult содержит результат проверки платежа.
type VerifyResult struct {
	Status  model.ChargeStatus
	Message string
}

// VerifyPayment запрашивает статус платежа у шлюза и при подтверждении
// атомарно применяет его: ответ принимается, вопрос закрывается, автору
// ответа зачисляется выплата. Вызов идемпотентен: повторная проверка уже
// применённого платежа ничего не меняет и возвращает подтверждение.
func (s *Service) VerifyPayment(ctx context.Context, questionID, answerID uuid.UUID) (*VerifyResult, error) {
	charge, err := s.repo.GetChargeByAnswer(ctx, answerID)
	if err != nil {
		return nil, err
	}
	if charge.QuestionID != questionID {
		return nil, repository.ErrChargeNotFound
	}

	switch charge.Status {
	case model.ChargeStatusConfirmed:
		return &VerifyResult{Status: model.ChargeStatusConfirmed, Message: "payment already confirmed"}, nil
	case model.ChargeStatusFailed:
		return &VerifyResult{Status: model.ChargeStatusFailed, Message: "payment failed"}, nil
	}

	gw := s.gateways.ByKind(charge.Gateway)
	state, err := gw.ConfirmCharge(ctx, charge.ID)
	if err != nil {
		return nil, err
	}

	switch state {
	case gateway.StateConfirmed:
		payout := fees.AnswerPayout(charge.AmountCents)
		if _, err := s.repo.SettleCharge(ctx, charge.ID, payout, "bounty payout for accepted answer"); err != nil {
			return nil, err
		}
		return &VerifyResult{Status: model.ChargeStatusConfirmed, Message: "payment confirmed"}, nil

	case gateway.StateFailed:
		if err := s.repo.MarkChargeFailed(ctx, charge.ID); err != nil {
			return nil, err
		}
		return &VerifyResult{Status: model.ChargeStatusFailed, Message: "payment failed"}, nil

	default:
		if err := s.repo.MarkChargePending(ctx, charge.ID); err != nil {
			return nil, err
		}
		return &VerifyResult{Status: model.ChargeStatusPending, Message: "payment not confirmed yet, retry later"}, nil
	}
}

// GetBalance возвращает баланс пользователя в виде структуры model.Balance.
func (s *Service) GetBalance(ctx context.Context, userID int64) (*model.Balance, error) {
	available, totalEarned, totalWithdrawn, err := s.repo.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &model.Balance{
		Available:      fromCents(available),
		TotalEarned:    fromCents(totalEarned),
		TotalWithdrawn: fromCents(totalWithdrawn),
	}, nil
}

// ListTransactions возвращает историю операций пользователя.
func (s *Service) ListTransactions(ctx context.Context, userID int64) ([]model.Transaction, error) {
	return s.repo.ListTransactions(ctx, userID)
}

// GetWithdrawalsByUser возвращает историю заявок на вывод пользователя.
func (s *Service) GetWithdrawalsByUser(ctx context.Context, userID int64) ([]model.Withdrawal, error) {
	return s.repo.GetWithdrawalsByUser(ctx, userID)
}

// BankDetails содержит банковские реквизиты для вывода средств.
type BankDetails struct {
	BankCode    string
	Agency      string
	Account     string
	Digit       string
	Type        model.BankAccountType
	HolderName  string
	HolderTaxID string
}

// WithdrawalInput содержит данные заявки на вывод средств.
type WithdrawalInput struct {
	Amount      float64
	Method      model.WithdrawalMethod
	Gateway     model.GatewayKind
	PixKeyID    uuid.UUID
	PixKeyType  model.PixKeyType
	PixKeyValue string
	PixNickname string
	SavePixKey  bool
	Bank        *BankDetails
}

// WithdrawalResult содержит данные выполненной заявки на вывод.
type WithdrawalResult struct {
	ID        uuid.UUID
	NetAmount float64
}

// RequestWithdrawal выполняет вывод средств: проверяет баланс, определяет
// получателя, инициирует выплату через шлюз и списывает полную сумму
// заявки с баланса. Комиссия удерживается из суммы выплаты, а не
// списывается с баланса отдельно.
func (s *Service) RequestWithdrawal(ctx context.Context, userID int64, in WithdrawalInput) (*WithdrawalResult, error) {
	amountCents := toCents(in.Amount)

	feeCents, netCents, err := fees.QuoteWithdrawal(amountCents)
	if err != nil {
		return nil, err
	}

	available, _, _, err := s.repo.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	if amountCents > available {
		return nil, repository.ErrInsufficientBalance
	}

	dest, err := s.resolveDestination(ctx, userID, in)
	if err != nil {
		return nil, err
	}

	kind := in.Gateway
	if kind == "" {
		kind, err = s.repo.GetPreferredGateway(ctx, userID)
		if err != nil {
			return nil, err
		}
	}

	w := &model.Withdrawal{
		ID:          uuid.New(),
		UserID:      userID,
		AmountCents: amountCents,
		FeeCents:    feeCents,
		NetCents:    netCents,
		Method:      in.Method,
		Gateway:     kind,
		Status:      model.WithdrawalStatusRequested,
	}
	if err := s.repo.CreateWithdrawal(ctx, w); err != nil {
		return nil, err
	}

	gw := s.gateways.ByKind(kind)
	if _, err := gw.CreatePayout(ctx, netCents, dest); err != nil {
		if failErr := s.repo.FailWithdrawal(ctx, w.ID); failErr != nil {
			return nil, fmt.Errorf("fail withdrawal after payout error %v: %w", err, failErr)
		}
		return nil, err
	}

	if err := s.repo.CompleteWithdrawal(ctx, w.ID, userID, amountCents, "withdrawal via "+string(in.Method)); err != nil {
		if failErr := s.repo.FailWithdrawal(ctx, w.ID); failErr != nil {
			return nil, fmt.Errorf("fail withdrawal after debit error %v: %w", err, failErr)
		}
		return nil, err
	}

	s.persistPreferredGateway(ctx, userID, kind)

	return &WithdrawalResult{ID: w.ID, NetAmount: fromCents(netCents)}, nil
}

func (s *Service) resolveDestination(ctx context.Context, userID int64, in WithdrawalInput) (gateway.Destination, error) {
	switch in.Method {
	case model.WithdrawalMethodPix:
		if in.PixKeyID != uuid.Nil {
			k, err := s.repo.GetPixKey(ctx, in.PixKeyID, userID)
			if err != nil {
				return gateway.Destination{}, err
			}
			return gateway.Destination{PixKeyType: string(k.Type), PixKey: k.Key}, nil
		}

		if !validation.IsValidPixKey(in.PixKeyType, in.PixKeyValue) {
			return gateway.Destination{}, fmt.Errorf("%w: invalid pix key", ErrInvalidInput)
		}

		if in.SavePixKey {
			k := &model.PixKey{
				ID:       uuid.New(),
				UserID:   userID,
				Type:     in.PixKeyType,
				Key:      in.PixKeyValue,
				Nickname: in.PixNickname,
			}
			if err := s.repo.SavePixKey(ctx, k); err != nil {
				return gateway.Destination{}, err
			}
		}

		return gateway.Destination{PixKeyType: string(in.PixKeyType), PixKey: in.PixKeyValue}, nil

	case model.WithdrawalMethodBank:
		if in.Bank != nil {
			b := &model.BankAccount{
				UserID:      userID,
				BankCode:    in.Bank.BankCode,
				Agency:      in.Bank.Agency,
				Account:     in.Bank.Account,
				Digit:       in.Bank.Digit,
				Type:        in.Bank.Type,
				HolderName:  in.Bank.HolderName,
				HolderTaxID: in.Bank.HolderTaxID,
			}
			if b.BankCode == "" || b.Agency == "" || b.Account == "" || b.HolderName == "" {
				return gateway.Destination{}, fmt.Errorf("%w: incomplete bank account", ErrInvalidInput)
			}
			if err := s.repo.SaveBankAccount(ctx, b); err != nil {
				return gateway.Destination{}, err
			}
			return bankDestination(b), nil
		}

		b, err := s.repo.GetBankAccount(ctx, userID)
		if err != nil {
			return gateway.Destination{}, err
		}
		return bankDestination(b), nil

	default:
		return gateway.Destination{}, fmt.Errorf("%w: unknown withdrawal method %q", ErrInvalidInput, in.Method)
	}
}

func bankDestination(b *model.BankAccount) gateway.Destination {
	return gateway.Destination{
		BankCode:    b.BankCode,
		Agency:      b.Agency,
		Account:     b.Account,
		Digit:       b.Digit,
		AccountType: string(b.Type),
		HolderName:  b.HolderName,
		HolderTaxID: b.HolderTaxID,
	}
}

// SavePixKey проверяет и сохраняет PIX-ключ пользователя.
func (s *Service) SavePixKey(ctx context.Context, userID int64, keyType model.PixKeyType, key, nickname string) (uuid.UUID, error) {
	if !validation.IsValidPixKey(keyType, key) {
		return uuid.Nil, fmt.Errorf("%w: invalid pix key", ErrInvalidInput)
	}

	k := &model.PixKey{
		ID:       uuid.New(),
		UserID:   userID,
		Type:     keyType,
		Key:      key,
		Nickname: nickname,
	}
	if err := s.repo.SavePixKey(ctx, k); err != nil {
		return uuid.Nil, err
	}

	return k.ID, nil
}

// SaveBankAccount проверяет и сохраняет банковские реквизиты пользователя.
func (s *Service) SaveBankAccount(ctx context.Context, userID int64, b BankDetails) error {
	if b.BankCode == "" || b.Agency == "" || b.Account == "" || b.HolderName == "" {
		return fmt.Errorf("%w: incomplete bank account", ErrInvalidInput)
	}
	if b.Type != model.BankAccountChecking && b.Type != model.BankAccountSavings {
		return fmt.Errorf("%w: unknown account type %q", ErrInvalidInput, b.Type)
	}

	return s.repo.SaveBankAccount(ctx, &model.BankAccount{
		UserID:      userID,
		BankCode:    b.BankCode,
		Agency:      b.Agency,
		Account:     b.Account,
		Digit:       b.Digit,
		Type:        b.Type,
		HolderName:  b.HolderName,
		HolderTaxID: b.HolderTaxID,
	})
}

// persistPreferredGateway сохраняет выбранный шлюз как предпочитаемый,
// если он отличается от текущего. Ошибка не влияет на основную операцию.
func (s *Service) persistPreferredGateway(ctx context.Context, userID int64, kind model.GatewayKind) {
	current, err := s.repo.GetPreferredGateway(ctx, userID)
	if err != nil || current == kind {
		return
	}
	_ = s.repo.SetPreferredGateway(ctx, userID, kind)
}

// StartChargeVerification запускает фоновый процесс подтверждения платежей.
// Он переиспользует идемпотентный VerifyPayment, поэтому безопасно работает
// параллельно с проверками, запущенными пользователем вручную.
func (s *Service) StartChargeVerification(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.verifyPendingCharges(ctx)
			}
		}
	}()
}

func (s *Service) verifyPendingCharges(ctx context.Context) {
	charges, err := s.repo.GetPendingCharges(ctx, 100)
	if err != nil {
		return
	}

	for _, c := range charges {
		backoff := retry.WithMaxRetries(2, retry.NewExponential(500*time.Millisecond))
		_ = retry.Do(ctx, backoff, func(ctx context.Context) error {
			_, err := s.VerifyPayment(ctx, c.QuestionID, c.AnswerID)

			var gwErr *gateway.Error
			if errors.As(err, &gwErr) && gwErr.Retryable {
				return retry.RetryableError(err)
			}
			return err
		})
	}
}

func toCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func fromCents(cents int64) float64 {
	return float64(cents) / 100
}
