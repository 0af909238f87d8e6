package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProduct_FormattedQuantity(t *testing.T) {
	tests := []struct {
		qty  int
		want string
	}{
		{qty: 500, want: "500"},
		{qty: 1000, want: "1.0K"},
		{qty: 2500, want: "2.5K"},
		{qty: 1_000_000, want: "1.0M"},
		{qty: 1_300_000, want: "1.3M"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Product{Quantity: tt.qty}.FormattedQuantity())
	}
}

func TestIsCurrency(t *testing.T) {
	assert.True(t, IsCurrency("₺"))
	assert.True(t, IsCurrency("$"))
	assert.True(t, IsCurrency("€"))
	assert.False(t, IsCurrency("TRY"))
}
