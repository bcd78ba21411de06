package jwt

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/require"
)

func writePair(t *testing.T, dir string) (ed25519.PrivateKey, string, string) {
	t.Helper()
	ks, err := GenerateKeySet()
	require.NoError(t, err)
	_, priv, err := ks.Active()
	require.NoError(t, err)

	privPEM, err := EncodePrivatePEM(priv)
	require.NoError(t, err)
	pubPEM, err := EncodePublicPEM(priv.Public().(ed25519.PublicKey))
	require.NoError(t, err)

	privPath := filepath.Join(dir, "private.pem")
	pubPath := filepath.Join(dir, "public.pem")
	require.NoError(t, os.WriteFile(privPath, privPEM, 0o600))
	require.NoError(t, os.WriteFile(pubPath, pubPEM, 0o644))
	return priv, privPath, pubPath
}

func TestFileSource_LoadPair(t *testing.T) {
	t.Parallel()
	priv, privPath, pubPath := writePair(t, t.TempDir())

	ks, err := LoadKeySet(context.Background(), FileSource{PrivateKeyPath: privPath, PublicKeyPath: pubPath})
	require.NoError(t, err)
	require.True(t, ks.CanSign())
	kid, _, err := ks.Active()
	require.NoError(t, err)
	require.Equal(t, KIDFor(priv.Public().(ed25519.PublicKey)), kid)
}

func TestFileSource_VerifyOnly(t *testing.T) {
	t.Parallel()
	_, _, pubPath := writePair(t, t.TempDir())

	ks, err := LoadKeySet(context.Background(), FileSource{PublicKeyPath: pubPath})
	require.NoError(t, err)
	require.False(t, ks.CanSign())
}

func TestFileSource_MismatchedPair(t *testing.T) {
	t.Parallel()
	_, privPath, _ := writePair(t, t.TempDir())
	_, _, otherPub := writePair(t, t.TempDir())

	_, err := LoadKeySet(context.Background(), FileSource{PrivateKeyPath: privPath, PublicKeyPath: otherPub})
	require.Error(t, err)
}

func TestFileSource_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := LoadKeySet(context.Background(), FileSource{PrivateKeyPath: filepath.Join(t.TempDir(), "nope.pem")})
	require.Error(t, err)

	_, err = LoadKeySet(context.Background(), nil)
	require.Error(t, err)
}

type fakeSecrets struct {
	out *secretsmanager.GetSecretValueOutput
	err error
	id  string
}

func (f *fakeSecrets) GetSecretValue(_ context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.id = aws.ToString(in.SecretId)
	return f.out, f.err
}

func TestSecretsManagerSource_Load(t *testing.T) {
	t.Parallel()
	ks, err := GenerateKeySet()
	require.NoError(t, err)
	_, priv, _ := ks.Active()
	privPEM, err := EncodePrivatePEM(priv)
	require.NoError(t, err)

	prev, err := GenerateKeySet()
	require.NoError(t, err)
	prevPEM, err := EncodePublicPEM(prev.DefaultPublicKey())
	require.NoError(t, err)

	body, _ := json.Marshal(map[string]any{
		"private_key":          string(privPEM),
		"previous_public_keys": []string{string(prevPEM)},
	})
	fake := &fakeSecrets{out: &secretsmanager.GetSecretValueOutput{SecretString: aws.String(string(body))}}

	got, err := LoadKeySet(context.Background(), &SecretsManagerSource{SecretID: "auth/jwt", Client: fake})
	require.NoError(t, err)
	require.Equal(t, "auth/jwt", fake.id)
	require.True(t, got.CanSign())
	require.Len(t, got.KIDs(), 2)
}

func TestSecretsManagerSource_Errors(t *testing.T) {
	t.Parallel()
	fake := &fakeSecrets{err: errors.New("access denied")}
	_, err := LoadKeySet(context.Background(), &SecretsManagerSource{SecretID: "x", Client: fake})
	require.Error(t, err)

	fake = &fakeSecrets{out: &secretsmanager.GetSecretValueOutput{SecretString: aws.String("not json")}}
	_, err = LoadKeySet(context.Background(), &SecretsManagerSource{SecretID: "x", Client: fake})
	require.Error(t, err)

	fake = &fakeSecrets{out: &secretsmanager.GetSecretValueOutput{}}
	_, err = LoadKeySet(context.Background(), &SecretsManagerSource{SecretID: "x", Client: fake})
	require.Error(t, err)
}
