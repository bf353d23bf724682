package breaker

import (
	"errors"
	"strings"
)

// CodedError is implemented by provider errors that carry a machine-readable
// status code (Vertex/Gemini-style "RESOURCE_EXHAUSTED" codes).
type CodedError interface {
	error
	Code() string
}

// StatusCoder is implemented by HTTP/AI-SDK transport errors that carry the
// response status code.
type StatusCoder interface {
	error
	StatusCode() int
}

// MultiError is implemented by composite retry errors whose nested errors
// must each be checked recursively.
type MultiError interface {
	error
	Unwrap() []error
}

var quotaMessageSubstrings = []string{
	"resource_exhausted",
	"quota exceeded",
	"quota",
	"rate limit",
}

// IsQuotaError implements the breaker's quota classifier: true when err is a
// RESOURCE_EXHAUSTED provider error, an HTTP/AI-SDK 429, a composite retry
// error any of whose nested errors recursively qualify, or its message
// contains one of the quota-ish substrings (case-insensitive).
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}

	var coded CodedError
	if errors.As(err, &coded) && coded.Code() == "RESOURCE_EXHAUSTED" {
		return true
	}

	var statused StatusCoder
	if errors.As(err, &statused) && statused.StatusCode() == 429 {
		return true
	}

	var multi MultiError
	if errors.As(err, &multi) {
		for _, nested := range multi.Unwrap() {
			if IsQuotaError(nested) {
				return true
			}
		}
	}

	msg := strings.ToLower(err.Error())
	for _, needle := range quotaMessageSubstrings {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}
