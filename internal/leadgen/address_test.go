package leadgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseAddress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		addr      string
		wantCity  string
		wantState string
	}{
		{"12 SV Road, Andheri West, Mumbai, Maharashtra 400058, India", "Mumbai", "Maharashtra"},
		{"Shop 4, MG Road, Bengaluru, Karnataka 560001", "Bengaluru", "Karnataka"},
		{"Connaught Place, New Delhi, Delhi 110001, India", "New Delhi", "Delhi"},
		{"Pune, Maharashtra", "Pune", "Maharashtra"},
		{"Mumbai", "", ""},
		{"", "", ""},
		{" , ,India", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			t.Parallel()
			city, state := ParseAddress(tt.addr)
			assert.Equal(t, tt.wantCity, city)
			assert.Equal(t, tt.wantState, state)
		})
	}
}
