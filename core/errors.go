package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ChannelsErrorBadInput       = "CHANNELS_BAD_INPUT"
	ChannelsErrorUnauthorized   = "CHANNELS_UNAUTHORIZED"
	ChannelsErrorNotFound       = "CHANNELS_NOT_FOUND"
	ChannelsErrorConflict       = "CHANNELS_CONFLICT"
	ChannelsErrorThreadNotOwned = "CHANNELS_THREAD_NOT_OWNED"
	ChannelsErrorRateLimited    = "CHANNELS_RATE_LIMITED"
	ChannelsErrorPlatformFailed = "CHANNELS_PLATFORM_OPERATION_FAILED"
	ChannelsErrorInternal       = "CHANNELS_INTERNAL_ERROR"
)

// ErrorMapper wraps arbitrary errors into the channels error envelope.
func ErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return EnsureErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "signature"), strings.Contains(msg, "verify token"):
		return newChannelsError(err.Error(), goerrors.CategoryAuth, ChannelsErrorUnauthorized)
	case strings.Contains(msg, "not owned"):
		return newChannelsError(err.Error(), goerrors.CategoryAuthz, ChannelsErrorThreadNotOwned)
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "throttl"):
		return newChannelsError(err.Error(), goerrors.CategoryRateLimit, ChannelsErrorRateLimited)
	case strings.Contains(msg, "not found"):
		return newChannelsError(err.Error(), goerrors.CategoryNotFound, ChannelsErrorNotFound)
	case strings.Contains(msg, "already exists"), strings.Contains(msg, "duplicate"):
		return newChannelsError(err.Error(), goerrors.CategoryConflict, ChannelsErrorConflict)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "unsupported"):
		return newChannelsError(err.Error(), goerrors.CategoryBadInput, ChannelsErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return EnsureErrorEnvelope(mapped)
}

func newChannelsError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return EnsureErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func EnsureErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = channelsHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultChannelsTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultChannelsTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ChannelsErrorBadInput
	case goerrors.CategoryNotFound:
		return ChannelsErrorNotFound
	case goerrors.CategoryAuth:
		return ChannelsErrorUnauthorized
	case goerrors.CategoryAuthz:
		return ChannelsErrorThreadNotOwned
	case goerrors.CategoryConflict:
		return ChannelsErrorConflict
	case goerrors.CategoryRateLimit:
		return ChannelsErrorRateLimited
	case goerrors.CategoryOperation:
		return ChannelsErrorPlatformFailed
	default:
		return ChannelsErrorInternal
	}
}

func channelsHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
