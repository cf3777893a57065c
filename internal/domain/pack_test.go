package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecoverPackForAmount(t *testing.T) {
	tests := []struct {
		name    string
		amount  int
		wantSKU string
		wantOK  bool
	}{
		{"zero amount", 0, "", false},
		{"negative amount", -100, "", false},
		{"small amount maps to starter", 1, PackSKUCredits10, true},
		{"starter price point", 299, PackSKUCredits10, true},
		{"starter bucket upper bound", 499, PackSKUCredits10, true},
		{"value bucket lower bound", 500, PackSKUCredits25, true},
		{"value price point", 699, PackSKUCredits25, true},
		{"value bucket upper bound", 999, PackSKUCredits25, true},
		{"power bucket lower bound", 1000, PackSKUCredits60, true},
		{"power price point", 1499, PackSKUCredits60, true},
		{"anything larger maps to power", 99999, PackSKUCredits60, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sku, ok := RecoverPackForAmount(tt.amount)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantSKU, sku)
		})
	}
}
