package oidc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapIDTokenClaims_ADShape(t *testing.T) {
	f := mapIDTokenClaims(idTokenClaims{
		Sub:            "sub-1",
		SamAccountName: "avirtanen",
		FirstName:      "Aino",
		LastName:       "Virtanen",
		Mail:           "aino.virtanen@example.com",
	})

	assert.Equal(t, "avirtanen", f.externalID)
	assert.Equal(t, "Aino", f.givenName)
	assert.Equal(t, "Virtanen", f.familyName)
	assert.Equal(t, "aino.virtanen@example.com", f.email)
}

func TestMapIDTokenClaims_PlainOIDCShape(t *testing.T) {
	f := mapIDTokenClaims(idTokenClaims{
		Sub:        "sub-2",
		GivenName:  "Eino",
		FamilyName: "Korhonen",
		Email:      "eino.korhonen@example.com",
	})

	assert.Equal(t, "sub-2", f.externalID)
	assert.Equal(t, "Eino", f.givenName)
	assert.Equal(t, "Korhonen", f.familyName)
	assert.Equal(t, "eino.korhonen@example.com", f.email)
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "a", firstNonEmpty("", "a", "b"))
	assert.Empty(t, firstNonEmpty("", ""))
}

func TestGenerateRandomString(t *testing.T) {
	s1, err := generateRandomString(32)
	assert.NoError(t, err)
	assert.Len(t, s1, 32)

	s2, err := generateRandomString(32)
	assert.NoError(t, err)
	assert.NotEqual(t, s1, s2)
}
