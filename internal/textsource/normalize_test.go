package textsource

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"nbsp", "Policy\u00a0No", "Policy No"},
		{"zero width", "D21\u200b70\u200c80\u200d60\ufeff3", "D217080603"},
		{"space runs", "IDV   :    3,80,000", "IDV : 3,80,000"},
		{"newlines kept", "a\n\nb", "a\n\nb"},
		{"mixed", "Total\u00a0\u00a0 Premium", "Total Premium"},
		{"unicode kept", "₹ 15,432", "₹ 15,432"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}
