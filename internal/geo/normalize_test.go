package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFold(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain name", "Germany", "germany"},
		{"diacritics stripped", "Côte d'Ivoire", "cote d'ivoire"},
		{"star annotation removed", "Taiwan*", "taiwan"},
		{"uppercase", "US", "us"},
		{"inner whitespace collapsed", "Korea,   South", "korea, south"},
		{"surrounding whitespace trimmed", "  China  ", "china"},
		{"empty string", "", ""},
		{"whitespace only", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Fold(tt.input))
		})
	}
}
