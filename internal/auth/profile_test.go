package auth

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeGoogle(t *testing.T) {
	id := Normalize(GoogleProfile{
		Subject:       "1234",
		Name:          "Ada Lovelace",
		Email:         " Ada@Example.com ",
		EmailVerified: true,
		Picture:       "https://lh3.googleusercontent.com/a/pic",
	})

	require.Equal(t, Identity{
		ExternalID:  "1234",
		DisplayName: "Ada Lovelace",
		Email:       "ada@example.com",
		AvatarURL:   "https://lh3.googleusercontent.com/a/pic",
		Provider:    "google",
	}, id)
}

func TestNormalizeGoogleFallsBackToGivenFamilyName(t *testing.T) {
	id := Normalize(&GoogleProfile{Subject: "1", GivenName: "Ada", FamilyName: "Lovelace"})

	require.Equal(t, "Ada Lovelace", id.DisplayName)
}

func TestNormalizeFacebook(t *testing.T) {
	id := Normalize(FacebookProfile{
		ID:    "fb-1",
		Name:  "Grace Hopper",
		Email: "grace@example.com",
		Picture: &FacebookPictureData{Data: FacebookPicture{
			URL: "https://graph.facebook.com/pic.jpg",
		}},
	})

	require.Equal(t, "fb-1", id.ExternalID)
	require.Equal(t, "Grace Hopper", id.DisplayName)
	require.Equal(t, "grace@example.com", id.Email)
	require.Equal(t, "https://graph.facebook.com/pic.jpg", id.AvatarURL)
	require.Equal(t, "facebook", id.Provider)
}

func TestNormalizeToleratesMissingEmailAndAvatar(t *testing.T) {
	cases := map[string]RawProfile{
		"google":   GoogleProfile{Subject: "g", Name: "G"},
		"facebook": FacebookProfile{ID: "f", Name: "F"},
		"facebook_silhouette": FacebookProfile{ID: "f", Name: "F", Picture: &FacebookPictureData{Data: FacebookPicture{
			URL:          "https://graph.facebook.com/default.jpg",
			IsSilhouette: true,
		}}},
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			id := Normalize(raw)
			require.Empty(t, id.Email)
			require.Empty(t, id.AvatarURL)
			require.False(t, id.HasEmail())
			require.Equal(t, raw.ProviderName(), id.Provider)
		})
	}
}

func TestNormalizeNilPointer(t *testing.T) {
	id := Normalize((*FacebookProfile)(nil))

	require.Equal(t, Identity{Provider: "facebook"}, id)
}

func TestNormalizeKeepsPunctuationInName(t *testing.T) {
	id := Normalize(GoogleProfile{Subject: "g", Name: "Seán O'Brien & Co"})

	require.Equal(t, "Seán O'Brien & Co", id.DisplayName)
}

func TestNormalizeStripsMarkupFromName(t *testing.T) {
	id := Normalize(FacebookProfile{ID: "f", Name: "<script>alert(1)</script>Eve  <b>Bold</b>"})

	require.Equal(t, "Eve Bold", id.DisplayName)
}

func TestNormalizeIsDeterministic(t *testing.T) {
	raw := GoogleProfile{Subject: "s", Name: " Same   Name ", Email: "X@Y.z", Picture: "https://p"}

	require.Equal(t, Normalize(raw), Normalize(raw))
}
