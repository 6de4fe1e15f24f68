package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gopkg.in/go-playground/validator.v9"
)

func TestKeyspaceValidator(t *testing.T) {
	validate := validator.New()
	_ = validate.RegisterValidation(KeyspaceValidatorTag, KeyspaceValidator)
	type holder struct {
		Keyspace  string   `validate:"keyspace"`
		Keyspaces []string `validate:"dive,keyspace"`
	}
	tests := []struct {
		name    string
		h       holder
		wantErr bool
	}{
		{"must not have illegal chars", holder{Keyspace: "index?name"}, true},
		{"must not start with _", holder{Keyspace: "_indexname"}, true},
		{"must be lower case", holder{Keyspace: "INDEXNAME"}, true},
		{"must hold for every element", holder{Keyspace: "ok", Keyspaces: []string{"fine", "NOT"}}, true},
		{"should be fine", holder{Keyspace: "order_by_poid_gk", Keyspaces: []string{"vendor"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validate.Struct(tt.h)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
