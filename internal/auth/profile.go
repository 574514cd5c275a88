package auth

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// RawProfile is the closed set of provider profile shapes. Only types in
// this package implement it.
type RawProfile interface {
	ProviderName() string
	isRawProfile()
}

// GoogleProfile holds the claims of a verified Google ID token.
type GoogleProfile struct {
	Subject       string `json:"sub"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Picture       string `json:"picture"`
}

func (GoogleProfile) ProviderName() string { return "google" }
func (GoogleProfile) isRawProfile()        {}

// FacebookProfile is the Graph API /me response for the fields
// id,name,first_name,last_name,email,picture.
type FacebookProfile struct {
	ID        string               `json:"id"`
	Name      string               `json:"name"`
	FirstName string               `json:"first_name,omitempty"`
	LastName  string               `json:"last_name,omitempty"`
	Email     string               `json:"email,omitempty"`
	Picture   *FacebookPictureData `json:"picture,omitempty"`
}

type FacebookPictureData struct {
	Data FacebookPicture `json:"data"`
}

type FacebookPicture struct {
	URL          string `json:"url"`
	IsSilhouette bool   `json:"is_silhouette"`
}

func (FacebookProfile) ProviderName() string { return "facebook" }
func (FacebookProfile) isRawProfile()        {}

var namePolicy = bluemonday.StrictPolicy()

// Normalize maps a raw provider profile to an Identity. It never fails:
// fields a provider withheld come back empty. The same input always gives
// the same output.
func Normalize(raw RawProfile) Identity {
	switch p := raw.(type) {
	case GoogleProfile:
		return normalizeGoogle(p)
	case *GoogleProfile:
		if p == nil {
			return Identity{Provider: "google"}
		}
		return normalizeGoogle(*p)
	case FacebookProfile:
		return normalizeFacebook(p)
	case *FacebookProfile:
		if p == nil {
			return Identity{Provider: "facebook"}
		}
		return normalizeFacebook(*p)
	default:
		return Identity{}
	}
}

func normalizeGoogle(p GoogleProfile) Identity {
	name := p.Name
	if strings.TrimSpace(name) == "" {
		name = joinName(p.GivenName, p.FamilyName)
	}
	return Identity{
		ExternalID:  strings.TrimSpace(p.Subject),
		DisplayName: cleanName(name),
		Email:       cleanEmail(p.Email),
		AvatarURL:   strings.TrimSpace(p.Picture),
		Provider:    p.ProviderName(),
	}
}

func normalizeFacebook(p FacebookProfile) Identity {
	name := p.Name
	if strings.TrimSpace(name) == "" {
		name = joinName(p.FirstName, p.LastName)
	}

	avatar := ""
	if p.Picture != nil && !p.Picture.Data.IsSilhouette {
		avatar = strings.TrimSpace(p.Picture.Data.URL)
	}

	return Identity{
		ExternalID:  strings.TrimSpace(p.ID),
		DisplayName: cleanName(name),
		Email:       cleanEmail(p.Email),
		AvatarURL:   avatar,
		Provider:    p.ProviderName(),
	}
}

func joinName(first, last string) string {
	return strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
}

func cleanName(name string) string {
	// the policy escapes entities; names are plain text, not HTML
	return strings.Join(strings.Fields(html.UnescapeString(namePolicy.Sanitize(name))), " ")
}

func cleanEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
