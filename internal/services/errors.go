package services

// ErrKind classifies a domain failure so handlers can pick a status code
// without string matching.
type ErrKind int

const (
	KindValidation ErrKind = iota + 1
	KindNotFound
	KindUnauthorized
	KindForbidden
	KindConflict
	KindRateLimited
)

// DomainError is a business-rule failure with a user-facing message.
// RetryAfter carries the remaining cooldown in seconds for rate limits.
type DomainError struct {
	Kind       ErrKind
	Message    string
	RetryAfter int
}

func (e *DomainError) Error() string {
	return e.Message
}

func validationErr(message string) *DomainError {
	return &DomainError{Kind: KindValidation, Message: message}
}

func notFoundErr(message string) *DomainError {
	return &DomainError{Kind: KindNotFound, Message: message}
}

func unauthorizedErr(message string) *DomainError {
	return &DomainError{Kind: KindUnauthorized, Message: message}
}

func forbiddenErr(message string) *DomainError {
	return &DomainError{Kind: KindForbidden, Message: message}
}

func conflictErr(message string) *DomainError {
	return &DomainError{Kind: KindConflict, Message: message}
}

func rateLimitedErr(message string, retryAfter int) *DomainError {
	return &DomainError{Kind: KindRateLimited, Message: message, RetryAfter: retryAfter}
}
