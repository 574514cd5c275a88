package auth

import "errors"

var (
	// ErrProviderDenied: the user declined, or the provider rejected the
	// request on its side.
	ErrProviderDenied = errors.New("auth: provider denied login")
	// ErrStateMismatch: the callback does not belong to a login this
	// session started. Handled like ErrProviderDenied.
	ErrStateMismatch = errors.New("auth: oauth state mismatch")
	// ErrExchangeFailed: network or protocol failure while exchanging the
	// code or fetching the profile.
	ErrExchangeFailed = errors.New("auth: code exchange failed")
	// ErrSyncFailed: the downstream CRM could not be updated.
	ErrSyncFailed = errors.New("auth: identity sync failed")
)
