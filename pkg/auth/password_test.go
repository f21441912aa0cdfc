package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword_VerifiesAgainstBcryptHash(t *testing.T) {
	hash, err := HashPassword("Correct-Horse-Battery-Staple9!")
	require.NoError(t, err)
	assert.True(t, VerifyPassword("Correct-Horse-Battery-Staple9!", hash))
	assert.False(t, VerifyPassword("wrong-password", hash))
}

func TestHashPassword_RejectsEmpty(t *testing.T) {
	_, err := HashPassword("")
	require.Error(t, err)
}

func TestValidatePasswordStrength_NamesMissingClass(t *testing.T) {
	cases := map[string]string{
		"no uppercase": "lowercase9!",
		"no lowercase": "UPPERCASE9!",
		"no digit":     "NoDigitsHere!",
		"no special":   "NoSpecialChars9",
	}
	for name, pw := range cases {
		t.Run(name, func(t *testing.T) {
			err := ValidatePasswordStrength(pw)
			require.Error(t, err)
			assert.Contains(t, err.Error(), strings.TrimPrefix(name, "no "))
		})
	}

	require.NoError(t, ValidatePasswordStrength("Valid9Pass!word"))
}

func TestVerifyPassword_LegacyPlaintextPath(t *testing.T) {
	assert.True(t, VerifyPassword("legacy-secret", "legacy-secret"))
	assert.False(t, VerifyPassword("wrong", "legacy-secret"))
}

func TestKeyPrefix_ShortKeyReturnedWhole(t *testing.T) {
	assert.Equal(t, "abc", KeyPrefix("abc"))
}

func TestKeyPrefix_TruncatesToFixedLength(t *testing.T) {
	assert.Equal(t, "abcdefgh", KeyPrefix("abcdefghijklmnop"))
}

func TestHashAPIKey_Deterministic(t *testing.T) {
	assert.Equal(t, HashAPIKey("same-key"), HashAPIKey("same-key"))
	assert.NotEqual(t, HashAPIKey("key-one"), HashAPIKey("key-two"))
}
