package registration

import "errors"

// Registration error taxonomy. Input-validation errors are terminal for the
// caller: fix the input and resubmit. ErrRateLimited is retryable after the
// window passes.
var (
	ErrRateLimited        = errors.New("rate limit exceeded")
	ErrInvalidKey         = errors.New("invalid registration key")
	ErrKeyAlreadyUsed     = errors.New("registration key already used")
	ErrKeyExpired         = errors.New("registration key expired")
	ErrCompanyNotFound    = errors.New("company not found")
	ErrDuplicateName      = errors.New("device name already exists in company")
	ErrSimilarNameExists  = errors.New("a similarly named device already exists in company")
	ErrCredentialIssuance = errors.New("credential issuance failed")
)
