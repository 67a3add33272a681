package security

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/require"

	"github.com/cwrk-planet/chat-service/internal/domain"
)

func newKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	k, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return k
}

func TestVerifier_Verify(t *testing.T) {
	key := newKey(t)
	signer := NewSigner(key, "auth", "chat", time.Minute)
	v := NewVerifier(&key.PublicKey, "auth", "chat", 5*time.Second)

	tok, err := signer.SignAccessToken(42, time.Now())
	require.NoError(t, err)

	id, err := v.Verify(context.Background(), tok)
	require.NoError(t, err)
	require.Equal(t, domain.UserID(42), id)
}

func TestVerifier_Rejects(t *testing.T) {
	key := newKey(t)
	other := newKey(t)
	v := NewVerifier(&key.PublicKey, "auth", "chat", time.Second)
	now := time.Now()

	expired, err := NewSigner(key, "auth", "chat", time.Minute).SignAccessToken(1, now.Add(-time.Hour))
	require.NoError(t, err)
	wrongKey, err := NewSigner(other, "auth", "chat", time.Minute).SignAccessToken(1, now)
	require.NoError(t, err)
	wrongIss, err := NewSigner(key, "evil", "chat", time.Minute).SignAccessToken(1, now)
	require.NoError(t, err)
	wrongAud, err := NewSigner(key, "auth", "other", time.Minute).SignAccessToken(1, now)
	require.NoError(t, err)
	hs, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.StandardClaims{
		Subject: "1", Issuer: "auth", Audience: "chat", ExpiresAt: now.Add(time.Minute).Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	for name, tok := range map[string]string{
		"garbage":   "not-a-jwt",
		"expired":   expired,
		"wrong key": wrongKey,
		"issuer":    wrongIss,
		"audience":  wrongAud,
		"hs256":     hs,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), tok)
			require.Error(t, err)
			require.True(t, errors.Is(err, domain.ErrInvalidCredential))
			require.True(t, errors.Is(err, domain.ErrAuthentication))
		})
	}

	_, err = v.Verify(context.Background(), "")
	require.ErrorIs(t, err, domain.ErrMissingCredential)
}

func TestBearerToken(t *testing.T) {
	tok, err := BearerToken("Bearer abc.def")
	require.NoError(t, err)
	require.Equal(t, "abc.def", tok)

	tok, err = BearerToken("  bearer   xyz ")
	require.NoError(t, err)
	require.Equal(t, "xyz", tok)

	for _, h := range []string{"", "Bearer", "Bearer   ", "Basic abc", "abc"} {
		_, err := BearerToken(h)
		require.ErrorIs(t, err, domain.ErrMissingCredential, h)
	}
}

func TestLoadKeysFromPEM(t *testing.T) {
	key := newKey(t)
	dir := t.TempDir()

	privPath := filepath.Join(dir, "private.pem")
	require.NoError(t, os.WriteFile(privPath, pem.EncodeToMemory(&pem.Block{
		Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key),
	}), 0o600))

	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pubPath := filepath.Join(dir, "public.pem")
	require.NoError(t, os.WriteFile(pubPath, pem.EncodeToMemory(&pem.Block{
		Type: "PUBLIC KEY", Bytes: pubDER,
	}), 0o600))

	priv, err := LoadRSAPrivateKeyFromPEM(privPath)
	require.NoError(t, err)
	require.True(t, key.Equal(priv))

	pub, err := LoadRSAPublicKeyFromPEM(pubPath)
	require.NoError(t, err)
	require.True(t, key.PublicKey.Equal(pub))

	_, err = LoadRSAPublicKeyFromPEM(filepath.Join(dir, "missing.pem"))
	require.Error(t, err)
}
