// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// This file centralizes symbolic error code constants that are mapped to HTTP responses
// (via the `fail()` helper in this package). These codes provide clients with a stable,
// machine-readable error taxonomy that supplements human-readable messages.
//
// Conventions:
//   - Codes are lowercase, snake_case, and domain-agnostic unless explicitly noted.
//   - Generic codes (e.g., bad_request, not_found) mirror common HTTP status
//     semantics to aid interoperability.
//   - Middleware that rejects a request before any handler runs (identity,
//     rate limiting, idempotency keys) writes its own literal codes.
//   - Domain-specific codes (e.g., insufficient_credits, not_cancellable) are reserved
//     for business outcomes that cannot be conveyed by status alone.
//   - All error responses must include both an HTTP status and one of these codes.
//
// Example response:
//   {
//     "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//     "code": "insufficient_credits",
//     "message": "insufficient credits"
//   }

package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodePayloadTooLarge  = "payload_too_large"
	ErrCodeInternal         = "internal_error"

	// Domain-specific:
	ErrCodeInsufficientCredits = "insufficient_credits"
	ErrCodeNotCancellable      = "not_cancellable"
	ErrCodeNotResumable        = "not_resumable"
	ErrCodeEmptyUpload         = "empty_upload"
	ErrCodeInvalidResult       = "invalid_result"
	ErrCodeInvalidCode         = "invalid_code"
	ErrCodeSelfReferral        = "self_referral"
	ErrCodeAlreadyRedeemed     = "already_redeemed"
	ErrCodeListFailed          = "list_failed"
)
