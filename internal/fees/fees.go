// Package fees содержит расчёт комиссий и выплат площадки.
// Все функции чистые: без побочных эффектов и обращений к хранилищу,
// одинаковый вход всегда даёт одинаковый результат.
package fees

import (
	"errors"

	"github.com/shopspring/decimal"
)

// MinWithdrawalCents — минимальная сумма вывода средств в центах.
const MinWithdrawalCents int64 = 1000

var (
	// ErrNonPositiveAmount возвращается для нулевой или отрицательной суммы.
	ErrNonPositiveAmount = errors.New("amount must be positive")
	// ErrBelowMinimum возвращается, если сумма вывода меньше минимальной.
	ErrBelowMinimum = errors.New("amount below withdrawal minimum")
)

// Доля вознаграждения, которую получает автор ответа; остальное — комиссия площадки.
var responderShare = decimal.RequireFromString("0.85")

// Ставка комиссии при выводе средств.
var withdrawalFeeRate = decimal.RequireFromString("0.0998")

// AnswerPayout возвращает сумму в центах, причитающуюся автору ответа
// за вознаграждение bountyCents. Эта же формула используется и для
// предварительного показа при отправке ответа, и как фактическая сумма
// зачисления при принятии, поэтому расхождений между ними быть не может.
func AnswerPayout(bountyCents int64) int64 {
	return decimal.NewFromInt(bountyCents).Mul(responderShare).Round(0).IntPart()
}

// QuoteWithdrawal рассчитывает комиссию и сумму к выплате для вывода
// amountCents. Всегда выполняется fee + net == amount; суммы ниже
// минимума отклоняются до расчёта.
func QuoteWithdrawal(amountCents int64) (feeCents, netCents int64, err error) {
	if amountCents <= 0 {
		return 0, 0, ErrNonPositiveAmount
	}
	if amountCents < MinWithdrawalCents {
		return 0, 0, ErrBelowMinimum
	}

	fee := decimal.NewFromInt(amountCents).Mul(withdrawalFeeRate).Round(0).IntPart()
	net := amountCents - fee
	if net < 0 {
		net = 0
		fee = amountCents
	}

	return fee, net, nil
}
