// apierr translates domain errors into ApiErrors
package apierr

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/lloydmeta/settle/internal/api/models/common"
	"github.com/lloydmeta/settle/internal/domain/record"
)

// Handle maps a domain error to its ApiError
func Handle(err error) *common.ApiError {
	var (
		invalidInput    record.InvalidInput
		unknownKeyspace record.UnknownKeyspace
		notFound        record.NotFound
		rejected        record.TransactionRejected
		predicateFailed record.PredicateFailed
		unavailable     record.Unavailable
		corrupt         record.CorruptRecord
		unsupported     record.UnsupportedCapability
	)
	switch {
	case errors.As(err, &invalidInput), errors.As(err, &unknownKeyspace):
		return withStatus(http.StatusBadRequest, err)
	case errors.As(err, &notFound):
		return withStatus(http.StatusNotFound, err)
	case errors.As(err, &rejected):
		apiErr := withStatus(http.StatusConflict, err)
		apiErr.Body.ViolatingKeys = common.FromDomainKeyRefs(rejected.Violations)
		return apiErr
	case errors.As(err, &predicateFailed):
		return withStatus(http.StatusConflict, err)
	case errors.As(err, &unavailable):
		log.Warn().Err(err).Msg("Store unavailable")
		return withStatus(http.StatusServiceUnavailable, err)
	case errors.As(err, &corrupt):
		log.Error().Err(err).Msg("Corrupt record")
		return withStatus(http.StatusInternalServerError, err)
	case errors.As(err, &unsupported):
		return withStatus(http.StatusNotImplemented, err)
	default:
		return unhandledErr(err)
	}
}

// Rejected is the ApiError of an expected uniqueness rejection
func Rejected(violations []record.KeyRef) *common.ApiError {
	return Handle(record.TransactionRejected{Violations: violations})
}

func withStatus(status int, err error) *common.ApiError {
	return &common.ApiError{
		StatusCode: status,
		Body: common.Body{
			Message: err.Error(),
		},
	}
}

func unhandledErr(e error) *common.ApiError {
	log.Error().Err(e).Msg("Unhandled error")
	return withStatus(http.StatusInternalServerError, e)
}
