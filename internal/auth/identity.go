package auth

// Identity is the provider-agnostic record of an authenticated user. It is
// what gets stored in the session and forwarded downstream.
type Identity struct {
	ExternalID  string `json:"id"`          // provider-scoped user id
	DisplayName string `json:"displayName"` // sanitized, may be empty
	Email       string `json:"email"`       // lower-cased, empty when withheld
	AvatarURL   string `json:"avatarUrl"`   // empty when absent
	Provider    string `json:"provider"`    // e.g. "google", "facebook"
}

// HasEmail reports whether the identity carries a usable email.
func (i Identity) HasEmail() bool {
	return i.Email != ""
}
