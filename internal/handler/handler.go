// Package handler содержит HTTP-обработчики API сервиса qapay.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/avdeenkov/qapay-system/internal/gateway"
	"github.com/avdeenkov/qapay-system/internal/middleware"
	"github.com/avdeenkov/qapay-system/internal/model"
	"github.com/avdeenkov/qapay-system/internal/repository"
	"github.com/avdeenkov/qapay-system/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, login, password string) (int64, error)
	AuthenticateUser(ctx context.Context, login, password string) (int64, error)
	CreateQuestion(ctx context.Context, requesterID int64, requesterName string, in service.QuestionInput) (uuid.UUID, error)
	GetQuestion(ctx context.Context, id uuid.UUID) (*model.Question, error)
	SubmitAnswer(ctx context.Context, responderID int64, responderName string, in service.AnswerInput) (uuid.UUID, float64, error)
	RejectAnswer(ctx context.Context, requesterID int64, answerID uuid.UUID) error
	RevealAnswer(ctx context.Context, viewerID int64, answerID uuid.UUID) (*model.Answer, bool, error)
	AcceptAnswer(ctx context.Context, requesterID int64, questionID, answerID uuid.UUID, kind model.GatewayKind) (*service.AcceptResult, error)
	VerifyPayment(ctx context.Context, questionID, answerID uuid.UUID) (*service.VerifyResult, error)
	GetBalance(ctx context.Context, userID int64) (*model.Balance, error)
	ListTransactions(ctx context.Context, userID int64) ([]model.Transaction, error)
	GetWithdrawalsByUser(ctx context.Context, userID int64) ([]model.Withdrawal, error)
	RequestWithdrawal(ctx context.Context, userID int64, in service.WithdrawalInput) (*service.WithdrawalResult, error)
	SavePixKey(ctx context.Context, userID int64, keyType model.PixKeyType, key, nickname string) (uuid.UUID, error)
	SaveBankAccount(ctx context.Context, userID int64, b service.BankDetails) error
}

// Handler реализует HTTP-обработчики API сервиса qapay.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

type credentialsRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// Register обрабатывает регистрацию нового пользователя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	userID, err := h.service.RegisterUser(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
			return
		}
		h.logger.Error("register user error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID)
	w.WriteHeader(http.StatusOK)
}

// Login выполняет аутентификацию пользователя и установку cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	userID, err := h.service.AuthenticateUser(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) || errors.Is(err, service.ErrInvalidCredentials) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		h.logger.Error("login user error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID)
	w.WriteHeader(http.StatusOK)
}

type createQuestionRequest struct {
	Subject     string   `json:"subject"`
	Body        string   `json:"body"`
	Bounty      float64  `json:"bounty"`
	Attachments []string `json:"attachments,omitempty"`
	Difficulty  string   `json:"difficulty,omitempty"`
	DisplayName string   `json:"displayName,omitempty"`
}

// CreateQuestion создаёт новый вопрос с вознаграждением.
func (h *Handler) CreateQuestion(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req createQuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	id, err := h.service.CreateQuestion(r.Context(), userID, req.DisplayName, service.QuestionInput{
		Subject:     req.Subject,
		Body:        req.Body,
		Bounty:      req.Bounty,
		Attachments: req.Attachments,
		Difficulty:  req.Difficulty,
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("create question error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"questionId": id.String()})
}

type questionResponse struct {
	ID          string   `json:"id"`
	Subject     string   `json:"subject"`
	Body        string   `json:"body"`
	Bounty      float64  `json:"bounty"`
	Status      string   `json:"status"`
	Requester   string   `json:"requester"`
	Attachments []string `json:"attachments,omitempty"`
	Difficulty  string   `json:"difficulty,omitempty"`
	CreatedAt   string   `json:"created_at"`
}

// GetQuestion возвращает вопрос по идентификатору.
func (h *Handler) GetQuestion(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(pathParam(r, "id"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	q, err := h.service.GetQuestion(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrQuestionNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("get question error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, questionResponse{
		ID:          q.ID.String(),
		Subject:     q.Subject,
		Body:        q.Body,
		Bounty:      float64(q.BountyCents) / 100,
		Status:      string(q.Status),
		Requester:   q.RequesterName,
		Attachments: q.Attachments,
		Difficulty:  q.Difficulty,
		CreatedAt:   q.CreatedAt.Format(time.RFC3339),
	})
}

type submitAnswerRequest struct {
	QuestionID  string   `json:"questionId"`
	Body        string   `json:"body"`
	Explanation string   `json:"explanation,omitempty"`
	Attachments []string `json:"attachments,omitempty"`
	DisplayName string   `json:"displayName,omitempty"`
}

// SubmitAnswer принимает ответ на открытый вопрос.
func (h *Handler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req submitAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	questionID, err := uuid.Parse(req.QuestionID)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	answerID, payoutPreview, err := h.service.SubmitAnswer(r.Context(), userID, req.DisplayName, service.AnswerInput{
		QuestionID:  questionID,
		Body:        req.Body,
		Explanation: req.Explanation,
		Attachments: req.Attachments,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidInput):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, repository.ErrQuestionNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, repository.ErrQuestionNotOpen):
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
		default:
			h.logger.Error("submit answer error", zap.Error(err), zap.Int64("userID", userID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"answerId":      answerID.String(),
		"payoutPreview": payoutPreview,
	})
}

// RejectAnswer отклоняет ответ; вопрос снова становится открытым.
func (h *Handler) RejectAnswer(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	answerID, err := uuid.Parse(pathParam(r, "id"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.RejectAnswer(r.Context(), userID, answerID); err != nil {
		switch {
		case errors.Is(err, repository.ErrAnswerNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, repository.ErrNotRequester):
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		case errors.Is(err, repository.ErrAnswerNotPending):
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
		default:
			h.logger.Error("reject answer error", zap.Error(err), zap.Int64("userID", userID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "rejected"})
}

type answerResponse struct {
	ID          string   `json:"id"`
	QuestionID  string   `json:"questionId"`
	Body        string   `json:"body"`
	Explanation string   `json:"explanation"`
	Attachments []string `json:"attachments,omitempty"`
	Responder   string   `json:"responder"`
	Status      string   `json:"status"`
	Redacted    bool     `json:"redacted"`
	Subject     string   `json:"subject"`
	Bounty      float64  `json:"bounty"`
	CreatedAt   string   `json:"created_at"`
}

// GetAnswer возвращает ответ; содержимое скрыто от автора вопроса до оплаты.
func (h *Handler) GetAnswer(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	answerID, err := uuid.Parse(pathParam(r, "id"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	a, redacted, err := h.service.RevealAnswer(r.Context(), userID, answerID)
	if err != nil {
		if errors.Is(err, repository.ErrAnswerNotFound) || errors.Is(err, repository.ErrQuestionNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("get answer error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, answerResponse{
		ID:          a.ID.String(),
		QuestionID:  a.QuestionID.String(),
		Body:        a.Body,
		Explanation: a.Explanation,
		Attachments: a.Attachments,
		Responder:   a.ResponderName,
		Status:      string(a.Status),
		Redacted:    redacted,
		Subject:     a.QuestionSubject,
		Bounty:      float64(a.BountyCents) / 100,
		CreatedAt:   a.CreatedAt.Format(time.RFC3339),
	})
}

type initiatePaymentRequest struct {
	QuestionID string `json:"questionId"`
	AnswerID   string `json:"answerId"`
	Gateway    string `json:"gateway,omitempty"`
}

// InitiatePayment создаёт платёж для принятия ответа.
func (h *Handler) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req initiatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	questionID, err := uuid.Parse(req.QuestionID)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	answerID, err := uuid.Parse(req.AnswerID)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	res, err := h.service.AcceptAnswer(r.Context(), userID, questionID, answerID, model.GatewayKind(req.Gateway))
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrQuestionNotFound), errors.Is(err, repository.ErrAnswerNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, repository.ErrNotRequester):
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		case errors.Is(err, repository.ErrQuestionNotAnswered), errors.Is(err, repository.ErrAnswerNotPending):
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
		case isGatewayError(err):
			h.logger.Error("create charge error", zap.Error(err), zap.Int64("userID", userID))
			http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		default:
			h.logger.Error("initiate payment error", zap.Error(err), zap.Int64("userID", userID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"chargeId":    res.ChargeID,
		"redirectUrl": res.RedirectURL,
	})
}

type verifyPaymentRequest struct {
	QuestionID string `json:"questionId"`
	AnswerID   string `json:"answerId"`
}

// VerifyPayment проверяет статус платежа; вызов идемпотентен и может
// повторяться пользователем или фоновым процессом.
func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	var req verifyPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	questionID, err := uuid.Parse(req.QuestionID)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	answerID, err := uuid.Parse(req.AnswerID)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	res, err := h.service.VerifyPayment(r.Context(), questionID, answerID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrChargeNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, repository.ErrAnswerNotPending):
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
		case isGatewayError(err):
			h.logger.Error("confirm charge error", zap.Error(err))
			http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		default:
			h.logger.Error("verify payment error", zap.Error(err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  string(res.Status),
		"message": res.Message,
	})
}

// GetBalance возвращает баланс текущего пользователя.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	balance, err := h.service.GetBalance(r.Context(), userID)
	if err != nil {
		h.logger.Error("get balance error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, balance)
}

type transactionResponse struct {
	ID          string  `json:"id"`
	Direction   string  `json:"direction"`
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
	Ref         string  `json:"ref,omitempty"`
	CreatedAt   string  `json:"created_at"`
}

// GetTransactions возвращает историю операций текущего пользователя.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	transactions, err := h.service.ListTransactions(r.Context(), userID)
	if err != nil {
		h.logger.Error("get transactions error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(transactions) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]transactionResponse, 0, len(transactions))
	for _, t := range transactions {
		resp = append(resp, transactionResponse{
			ID:          t.ID.String(),
			Direction:   string(t.Direction),
			Amount:      float64(t.AmountCents) / 100,
			Description: t.Description,
			Ref:         t.Ref,
			CreatedAt:   t.CreatedAt.Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

type bankDetailsRequest struct {
	Bank        string `json:"bank"`
	Agency      string `json:"agency"`
	Account     string `json:"account"`
	Digit       string `json:"digit"`
	Type        string `json:"type"`
	HolderName  string `json:"holderName"`
	HolderTaxID string `json:"holderTaxId"`
}

type withdrawRequest struct {
	Amount      float64             `json:"amount"`
	Method      string              `json:"method"`
	Gateway     string              `json:"gateway,omitempty"`
	PixKeyID    string              `json:"pixKeyId,omitempty"`
	PixKeyType  string              `json:"pixKeyType,omitempty"`
	PixKeyValue string              `json:"pixKeyValue,omitempty"`
	PixNickname string              `json:"pixNickname,omitempty"`
	SavePixKey  bool                `json:"savePixKey,omitempty"`
	Bank        *bankDetailsRequest `json:"bank,omitempty"`
}

// Withdraw создаёт заявку на вывод средств текущего пользователя.
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req withdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	in := service.WithdrawalInput{
		Amount:      req.Amount,
		Method:      model.WithdrawalMethod(req.Method),
		Gateway:     model.GatewayKind(req.Gateway),
		PixKeyType:  model.PixKeyType(req.PixKeyType),
		PixKeyValue: req.PixKeyValue,
		PixNickname: req.PixNickname,
		SavePixKey:  req.SavePixKey,
	}

	if req.PixKeyID != "" {
		keyID, err := uuid.Parse(req.PixKeyID)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		in.PixKeyID = keyID
	}

	if req.Bank != nil {
		in.Bank = &service.BankDetails{
			BankCode:    req.Bank.Bank,
			Agency:      req.Bank.Agency,
			Account:     req.Bank.Account,
			Digit:       req.Bank.Digit,
			Type:        model.BankAccountType(req.Bank.Type),
			HolderName:  req.Bank.HolderName,
			HolderTaxID: req.Bank.HolderTaxID,
		}
	}

	res, err := h.service.RequestWithdrawal(r.Context(), userID, in)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidInput), isFeeError(err):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, repository.ErrInsufficientBalance):
			http.Error(w, http.StatusText(http.StatusPaymentRequired), http.StatusPaymentRequired)
		case errors.Is(err, repository.ErrPixKeyNotFound), errors.Is(err, repository.ErrBankAccountNotFound):
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		case isGatewayError(err):
			h.logger.Error("create payout error", zap.Error(err), zap.Int64("userID", userID))
			http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		default:
			h.logger.Error("withdraw error", zap.Error(err), zap.Int64("userID", userID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"withdrawalId": res.ID.String(),
		"netAmount":    res.NetAmount,
	})
}

type withdrawalResponse struct {
	ID        string  `json:"id"`
	Amount    float64 `json:"amount"`
	Fee       float64 `json:"fee"`
	Net       float64 `json:"net"`
	Method    string  `json:"method"`
	Status    string  `json:"status"`
	CreatedAt string  `json:"created_at"`
}

// GetWithdrawals возвращает историю заявок на вывод текущего пользователя.
func (h *Handler) GetWithdrawals(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	withdrawals, err := h.service.GetWithdrawalsByUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("get withdrawals error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(withdrawals) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]withdrawalResponse, 0, len(withdrawals))
	for _, wth := range withdrawals {
		resp = append(resp, withdrawalResponse{
			ID:        wth.ID.String(),
			Amount:    float64(wth.AmountCents) / 100,
			Fee:       float64(wth.FeeCents) / 100,
			Net:       float64(wth.NetCents) / 100,
			Method:    string(wth.Method),
			Status:    string(wth.Status),
			CreatedAt: wth.CreatedAt.Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

type savePixKeyRequest struct {
	Type     string `json:"type"`
	Value    string `json:"value"`
	Nickname string `json:"nickname,omitempty"`
}

// SavePixKey сохраняет PIX-ключ текущего пользователя.
func (h *Handler) SavePixKey(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req savePixKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	id, err := h.service.SavePixKey(r.Context(), userID, model.PixKeyType(req.Type), req.Value, req.Nickname)
	if err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("save pix key error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": id.String()})
}

// SaveBankAccount сохраняет банковские реквизиты текущего пользователя.
func (h *Handler) SaveBankAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req bankDetailsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	err := h.service.SaveBankAccount(r.Context(), userID, service.BankDetails{
		BankCode:    req.Bank,
		Agency:      req.Agency,
		Account:     req.Account,
		Digit:       req.Digit,
		Type:        model.BankAccountType(req.Type),
		HolderName:  req.HolderName,
		HolderTaxID: req.HolderTaxID,
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("save bank account error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func isGatewayError(err error) bool {
	var gwErr *gateway.Error
	return errors.As(err, &gwErr)
}
