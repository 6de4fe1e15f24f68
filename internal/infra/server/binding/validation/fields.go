package validation

import (
	"github.com/gin-gonic/gin/binding"
	"github.com/rs/zerolog/log"
	"gopkg.in/go-playground/validator.v9"

	"github.com/lloydmeta/settle/internal/domain/record"
)

func SetUpValidators() {
	log.Info().Msg("Setting up custom validators")
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		err := v.RegisterValidation(KeyspaceValidatorTag, KeyspaceValidator)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to set up Keyspace name validator")
		}
	}
}

var KeyspaceValidatorTag = "keyspace"
var KeyspaceValidator validator.Func = func(fl validator.FieldLevel) bool {
	name, ok := fl.Field().Interface().(string)
	if ok {
		if _, err := record.KeyspaceFromString(name); err != nil {
			return false
		}
	}
	return true
}
