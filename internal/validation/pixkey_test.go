package validation

import (
	"testing"

	"github.com/avdeenkov/qapay-system/internal/model"
)

func TestIsValidCPF(t *testing.T) {
	tests := []struct {
		name string
		cpf  string
		want bool
	}{
		{name: "valid plain", cpf: "52998224725", want: true},
		{name: "valid formatted", cpf: "529.982.247-25", want: true},
		{name: "wrong check digit", cpf: "52998224724", want: false},
		{name: "all same digits", cpf: "11111111111", want: false},
		{name: "too short", cpf: "5299822472", want: false},
		{name: "letters", cpf: "5299822472a", want: false},
		{name: "empty", cpf: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidCPF(tt.cpf); got != tt.want {
				t.Errorf("IsValidCPF(%q) = %v, want %v", tt.cpf, got, tt.want)
			}
		})
	}
}

func TestIsValidCNPJ(t *testing.T) {
	tests := []struct {
		name string
		cnpj string
		want bool
	}{
		{name: "valid plain", cnpj: "11222333000181", want: true},
		{name: "valid formatted", cnpj: "11.222.333/0001-81", want: true},
		{name: "wrong check digit", cnpj: "11222333000182", want: false},
		{name: "all same digits", cnpj: "11111111111111", want: false},
		{name: "too short", cnpj: "1122233300018", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidCNPJ(tt.cnpj); got != tt.want {
				t.Errorf("IsValidCNPJ(%q) = %v, want %v", tt.cnpj, got, tt.want)
			}
		})
	}
}

func TestIsValidPixKey(t *testing.T) {
	tests := []struct {
		name    string
		keyType model.PixKeyType
		key     string
		want    bool
	}{
		{name: "cpf", keyType: model.PixKeyCPF, key: "52998224725", want: true},
		{name: "cnpj", keyType: model.PixKeyCNPJ, key: "11222333000181", want: true},
		{name: "email", keyType: model.PixKeyEmail, key: "user@example.com", want: true},
		{name: "email invalid", keyType: model.PixKeyEmail, key: "not-an-email", want: false},
		{name: "phone", keyType: model.PixKeyPhone, key: "+5511987654321", want: true},
		{name: "phone too short", keyType: model.PixKeyPhone, key: "+55119", want: false},
		{name: "random uuid", keyType: model.PixKeyRandom, key: "123e4567-e89b-12d3-a456-426614174000", want: true},
		{name: "random not uuid", keyType: model.PixKeyRandom, key: "random-token", want: false},
		{name: "unknown type", keyType: model.PixKeyType("iban"), key: "52998224725", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidPixKey(tt.keyType, tt.key); got != tt.want {
				t.Errorf("IsValidPixKey(%s, %q) = %v, want %v", tt.keyType, tt.key, got, tt.want)
			}
		})
	}
}
