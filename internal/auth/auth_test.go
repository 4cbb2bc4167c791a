package auth

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	jose "github.com/go-jose/go-jose/v4"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer   = "https://issuer.example.test"
	testClientID = "wiki-admin"
)

func signToken(t *testing.T, key *rsa.PrivateKey, claims map[string]any) string {
	t.Helper()

	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.RS256, Key: key}, (&jose.SignerOptions{}).WithType("JWT"))
	require.NoError(t, err)

	payload, err := json.Marshal(claims)
	require.NoError(t, err)

	signed, err := signer.Sign(payload)
	require.NoError(t, err)

	token, err := signed.CompactSerialize()
	require.NoError(t, err)
	return token
}

func validClaims() map[string]any {
	now := time.Now()
	return map[string]any{
		"iss":   testIssuer,
		"aud":   testClientID,
		"sub":   "editor-1",
		"email": "editor@example.test",
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
		"realm_access": map[string]any{
			"roles": []string{"wiki-editor"},
		},
	}
}

func headers(values map[string]string) HeaderFunc {
	return func(name string) string { return values[name] }
}

func newVerifier(t *testing.T) (*OIDC, *rsa.PrivateKey) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	keySet := &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&key.PublicKey}}
	return NewOIDCWithKeySet(testIssuer, testClientID, keySet), key
}

func TestOIDCAcceptsValidToken(t *testing.T) {
	verifier, key := newVerifier(t)
	token := signToken(t, key, validClaims())

	identity, err := verifier.Authenticate(context.Background(), headers(map[string]string{"Authorization": "Bearer " + token}))
	require.NoError(t, err)

	assert.Equal(t, "editor-1", identity.Subject)
	assert.Equal(t, "editor@example.test", identity.Email)
	assert.Equal(t, []string{"wiki-editor"}, identity.Roles)
}

func TestOIDCRejectsBadCredentials(t *testing.T) {
	verifier, key := newVerifier(t)

	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	expired := validClaims()
	expired["exp"] = time.Now().Add(-time.Hour).Unix()

	wrongAudience := validClaims()
	wrongAudience["aud"] = "someone-else"

	cases := map[string]string{
		"missing header":  "",
		"wrong scheme":    "Basic abc",
		"empty bearer":    "Bearer ",
		"garbage":         "Bearer not-a-token",
		"expired":         "Bearer " + signToken(t, key, expired),
		"wrong audience":  "Bearer " + signToken(t, key, wrongAudience),
		"foreign signing": "Bearer " + signToken(t, otherKey, validClaims()),
	}

	for name, authorization := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := verifier.Authenticate(context.Background(), headers(map[string]string{"Authorization": authorization}))
			require.Error(t, err)
			assert.True(t, eris.Is(err, ErrUnauthorized))
		})
	}
}

func TestHeaderAuthenticator(t *testing.T) {
	identity, err := Header{}.Authenticate(context.Background(), headers(map[string]string{UserHeader: "local-dev"}))
	require.NoError(t, err)
	assert.Equal(t, "local-dev", identity.Subject)

	identity, err = Header{}.Authenticate(context.Background(), headers(nil))
	require.NoError(t, err)
	assert.Equal(t, anonymousSubject, identity.Subject)
}

func TestIdentityContext(t *testing.T) {
	ctx := WithIdentity(context.Background(), &Identity{Subject: "someone"})

	identity, ok := IdentityFrom(ctx)
	require.True(t, ok)
	assert.Equal(t, "someone", identity.Subject)

	_, ok = IdentityFrom(context.Background())
	assert.False(t, ok)
}

func TestNewOIDCRequiresSettings(t *testing.T) {
	_, err := NewOIDC(context.Background(), "", testClientID)
	assert.Error(t, err)

	_, err = NewOIDC(context.Background(), testIssuer, "")
	assert.Error(t, err)
}
