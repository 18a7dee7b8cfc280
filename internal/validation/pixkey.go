// Package validation содержит функции валидации входных данных.
package validation

import (
	"regexp"
	"unicode"

	"github.com/google/uuid"

	"github.com/avdeenkov/qapay-system/internal/model"
)

var (
	emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	phonePattern = regexp.MustCompile(`^\+?\d{10,14}$`)
)

// IsValidPixKey проверяет корректность PIX-ключа указанного типа.
func IsValidPixKey(keyType model.PixKeyType, key string) bool {
	switch keyType {
	case model.PixKeyCPF:
		return IsValidCPF(key)
	case model.PixKeyCNPJ:
		return IsValidCNPJ(key)
	case model.PixKeyEmail:
		return emailPattern.MatchString(key)
	case model.PixKeyPhone:
		return phonePattern.MatchString(key)
	case model.PixKeyRandom:
		_, err := uuid.Parse(key)
		return err == nil
	default:
		return false
	}
}

// IsValidCPF проверяет контрольные цифры CPF (11 цифр).
func IsValidCPF(cpf string) bool {
	digits, ok := onlyDigits(cpf)
	if !ok || len(digits) != 11 || allSame(digits) {
		return false
	}

	if checkDigit(digits[:9], 10) != digits[9] {
		return false
	}
	return checkDigit(digits[:10], 11) == digits[10]
}

// IsValidCNPJ проверяет контрольные цифры CNPJ (14 цифр).
func IsValidCNPJ(cnpj string) bool {
	digits, ok := onlyDigits(cnpj)
	if !ok || len(digits) != 14 || allSame(digits) {
		return false
	}

	weights1 := []int{5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
	weights2 := []int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}

	if cnpjDigit(digits[:12], weights1) != digits[12] {
		return false
	}
	return cnpjDigit(digits[:13], weights2) == digits[13]
}

func onlyDigits(s string) ([]int, bool) {
	if s == "" {
		return nil, false
	}
	res := make([]int, 0, len(s))
	for _, ch := range s {
		if ch == '.' || ch == '-' || ch == '/' {
			continue
		}
		if !unicode.IsDigit(ch) {
			return nil, false
		}
		res = append(res, int(ch-'0'))
	}
	return res, true
}

func allSame(digits []int) bool {
	for _, d := range digits {
		if d != digits[0] {
			return false
		}
	}
	return true
}

func checkDigit(digits []int, startWeight int) int {
	sum := 0
	for i, d := range digits {
		sum += d * (startWeight - i)
	}
	rem := sum * 10 % 11
	if rem == 10 {
		return 0
	}
	return rem
}

func cnpjDigit(digits []int, weights []int) int {
	sum := 0
	for i, d := range digits {
		sum += d * weights[i]
	}
	rem := sum % 11
	if rem < 2 {
		return 0
	}
	return 11 - rem
}
