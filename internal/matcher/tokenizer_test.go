package matcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenizer_Tokens(t *testing.T) {
	tok := NewTokenizer(false, false)
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", nil},
		{"lowercase and punctuation", "Maize, leaves—turning YELLOW!!", []string{"maize", "leaves", "turning", "yellow"}},
		{"single characters dropped", "a 5 kg of dap", []string{"kg", "of", "dap"}},
		{"duplicates kept", "pest pest control", []string{"pest", "pest", "control"}},
		{"underscore joins", "soil_ph test", []string{"soil_ph", "test"}},
		{"digits are tokens", "npk 17 17 17", []string{"npk", "17", "17", "17"}},
		{"unicode letters", "Ñame hojas amarillas", []string{"ñame", "hojas", "amarillas"}},
		{"only symbols", "?? !! --", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tok.Tokens(tt.in)
			if len(tt.want) == 0 {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTokenizer_StopWords(t *testing.T) {
	tok := NewTokenizer(true, false)
	assert.Equal(t, []string{"maize", "leaves", "yellow"}, tok.Tokens("the maize leaves are yellow"))
	assert.Empty(t, tok.Tokens("the of and"))
}

func TestTokenizer_Stemming(t *testing.T) {
	tok := NewTokenizer(false, true)
	assert.Equal(t, tok.Tokens("wilt"), tok.Tokens("wilting"))
	// Non-ASCII tokens are left alone.
	assert.Equal(t, []string{"ñame"}, tok.Tokens("ñame"))
}
