package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/avdeenkov/qapay-system/internal/fees"
	custommiddleware "github.com/avdeenkov/qapay-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса qapay.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Post("/user/register", h.Register)
		r.Post("/user/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Post("/questions", h.CreateQuestion)
			r.Get("/questions/{id}", h.GetQuestion)

			r.Post("/answers", h.SubmitAnswer)
			r.Get("/answers/{id}", h.GetAnswer)
			r.Post("/answers/{id}/reject", h.RejectAnswer)

			r.Post("/payments", h.InitiatePayment)
			r.Post("/payments/verify", h.VerifyPayment)

			r.Get("/wallet/balance", h.GetBalance)
			r.Get("/wallet/transactions", h.GetTransactions)
			r.Post("/wallet/pix-keys", h.SavePixKey)
			r.Put("/wallet/bank-account", h.SaveBankAccount)

			r.Post("/withdrawals", h.Withdraw)
			r.Get("/withdrawals", h.GetWithdrawals)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}

func pathParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}

func isFeeError(err error) bool {
	return errors.Is(err, fees.ErrNonPositiveAmount) || errors.Is(err, fees.ErrBelowMinimum)
}
