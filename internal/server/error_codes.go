package server

const (
	// Validation (1xxx)
	ErrCodeInvalidArgument = 1000
	ErrCodeInvalidJSON     = 1001
	ErrCodeRequestTooLarge = 1002
	ErrCodeInvalidID       = 1004
	ErrCodeMissingRequired = 1009
	ErrCodeInvalidEmail    = 1015
	ErrCodeWeakPassword    = 1016
	ErrCodeInvalidBundle   = 1017
	ErrCodeIncompleteWrite = 1018

	// Domain state (2xxx)
	ErrCodeFileNotFound = 2005
	ErrCodeUserExists   = 2103
	ErrCodeConflict     = 2102

	// Auth & limits (3xxx)
	ErrCodeUnauthorized      = 3001
	ErrCodeForbidden         = 3002
	ErrCodeResourceExhausted = 3003
	ErrCodePayloadTooLarge   = 3004

	// Internal/system (4xxx)
	ErrCodeInternal         = 4001
	ErrCodeStoreFailure     = 4002
	ErrCodeNotImplemented   = 4005
	ErrCodeStoreUnavailable = 4006
)

func defaultErrorCodeByStatus(status int) int {
	switch status {
	case 400:
		return ErrCodeInvalidArgument
	case 401:
		return ErrCodeUnauthorized
	case 403:
		return ErrCodeForbidden
	case 404:
		return ErrCodeFileNotFound
	case 409:
		return ErrCodeConflict
	case 413:
		return ErrCodePayloadTooLarge
	case 429:
		return ErrCodeResourceExhausted
	case 500:
		return ErrCodeInternal
	case 501:
		return ErrCodeNotImplemented
	case 503:
		return ErrCodeStoreUnavailable
	default:
		return 0
	}
}
