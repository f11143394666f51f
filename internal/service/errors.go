package service

import "net/http"

// GenericLinkMessage is the only description a caller ever sees for a token
// problem. Not-found, expired, revoked, and exhausted all collapse to it so
// the failure mode cannot be enumerated from outside; the specific reason is
// recorded in the audit trail.
const GenericLinkMessage = "This link is invalid or has expired."

// PortalError is the externally visible error shape. Code and Status drive
// the HTTP response; Description is safe to render to the end user.
type PortalError struct {
	Code        string
	Description string
	Status      int
}

func (e *PortalError) Error() string {
	return e.Code + ": " + e.Description
}

func newPortalError(code, description string, status int) *PortalError {
	return &PortalError{Code: code, Description: description, Status: status}
}

// errInvalidLink is the collapsed dead-link error shared by every
// security-sensitive failure path.
func errInvalidLink() *PortalError {
	return newPortalError("invalid_link", GenericLinkMessage, http.StatusNotFound)
}

// errIncorrectCode is reported for OTP mismatches under the attempt cap;
// past the cap the error collapses to errInvalidLink.
func errIncorrectCode() *PortalError {
	return newPortalError("incorrect_code", "Incorrect code.", http.StatusUnauthorized)
}

func errInvalidRequest(description string) *PortalError {
	return newPortalError("invalid_request", description, http.StatusBadRequest)
}

func errRateLimited() *PortalError {
	return newPortalError("rate_limited", "Too many requests. Try again later.", http.StatusTooManyRequests)
}

// errUpstream covers transient storage or collaborator failures: retryable,
// and never conflated with the client-facing security errors above.
func errUpstream() *PortalError {
	return newPortalError("server_error", "Temporary failure. Please retry.", http.StatusBadGateway)
}
