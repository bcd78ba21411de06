package password

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var fast = Params{Memory: 8 * 1024, Time: 1, Parallelism: 1, KeyLen: 32}

func TestArgon2id_RoundTrip(t *testing.T) {
	t.Parallel()
	h, err := Hash(fast, "admin123")
	require.NoError(t, err)
	require.True(t, Verify("admin123", h))
	require.False(t, Verify("admin124", h))
}

func TestHash_EmptyPassword(t *testing.T) {
	t.Parallel()
	_, err := Hash(fast, "")
	require.Error(t, err)
}

func TestVerify_Bcrypt(t *testing.T) {
	t.Parallel()
	h, err := HashBcrypt("user123", bcrypt.MinCost)
	require.NoError(t, err)
	require.True(t, Verify("user123", h))
	require.False(t, Verify("wrong", h))
}

func TestVerify_UnknownScheme(t *testing.T) {
	t.Parallel()
	require.False(t, Verify("x", "plain-text"))
	require.False(t, Verify("x", "$argon2id$v=19$broken"))
}
