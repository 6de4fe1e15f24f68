package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyspaceFromString(t *testing.T) {
	tests := []struct {
		name    string
		s       string
		wantErr bool
	}{
		{"must not have illegal chars", "index?name", true},
		{"must not have '#'", "index#name", true},
		{"must not have ':'", "index:name", true},
		{"must not have NUL", "index\x00name", true},
		{"must not start with _", "_indexname", true},
		{"must not start with -", "-indexname", true},
		{"must not start with +", "+indexname", true},
		{"must be lower case", "INDEXNAME", true},
		{"must not be '..'", "..", true},
		{"must not be '.'", ".", true},
		{"must not be empty", "", true},
		{"should be fine", "order_by_poid_gk", false},
		{"should be fine with dots and dashes", "orders.by-poid", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := KeyspaceFromString(tt.s)
			if tt.wantErr {
				assert.IsType(t, InvalidKeyspaceName{}, err)
			} else {
				assert.NoError(t, err)
				assert.EqualValues(t, tt.s, got)
			}
		})
	}
}
