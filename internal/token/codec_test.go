package token_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/archject/portal-access/internal/token"
)

func TestGenerateProducesDistinctValidTokens(t *testing.T) {
	seen := map[string]struct{}{}
	for i := 0; i < 50; i++ {
		tok, err := token.Generate(32)
		require.NoError(t, err)
		require.NoError(t, token.ValidateFormat(tok))
		require.GreaterOrEqual(t, len(tok), 43) // 32 bytes base64url
		_, dup := seen[tok]
		require.False(t, dup, "token collision")
		seen[tok] = struct{}{}
	}
}

func TestGenerateEnforcesMinimumEntropy(t *testing.T) {
	tok, err := token.Generate(8)
	require.NoError(t, err)
	// 32 bytes minimum even when asked for less.
	require.GreaterOrEqual(t, len(tok), 43)
}

func TestHashIsDeterministicAndOneWay(t *testing.T) {
	tok, err := token.Generate(32)
	require.NoError(t, err)

	h1 := token.Hash(tok)
	h2 := token.Hash(tok)
	require.Equal(t, h1, h2)
	require.Len(t, h1, 64) // hex sha-256
	require.NotContains(t, h1, tok)

	other, err := token.Generate(32)
	require.NoError(t, err)
	require.NotEqual(t, h1, token.Hash(other))
}

func TestValidateFormat(t *testing.T) {
	cases := []struct {
		name  string
		token string
		ok    bool
	}{
		{"valid base64url", "abcDEF123-_+=xyz", true},
		{"too short", "short", false},
		{"too long", strings.Repeat("a", 513), false},
		{"max length ok", strings.Repeat("a", 512), true},
		{"slash rejected", "abcdef/12345", false},
		{"space rejected", "abcdef 12345", false},
		{"empty", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := token.ValidateFormat(tc.token)
			if tc.ok {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
		})
	}
}

func TestNumericCode(t *testing.T) {
	code, err := token.NumericCode(6)
	require.NoError(t, err)
	require.Len(t, code, 6)
	for _, c := range code {
		require.True(t, c >= '0' && c <= '9')
	}

	// Clamped below the minimum length.
	code, err = token.NumericCode(1)
	require.NoError(t, err)
	require.Len(t, code, 4)
}
