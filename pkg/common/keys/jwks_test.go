package keys

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_GeneratesDevKey(t *testing.T) {
	kp, err := Load(Source{})
	require.NoError(t, err)
	assert.NotEmpty(t, kp.Kid())
	assert.Equal(t, 1, kp.PublicSet().Len())
}

func TestLoad_PEMAndBase64(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pemBytes := EncodePrivateKeyPEM(key)

	fromPEM, err := Load(Source{KID: "k1", PrivateKeyPEM: string(pemBytes)})
	require.NoError(t, err)
	assert.Equal(t, "k1", fromPEM.Kid())

	fromB64, err := Load(Source{KID: "k1", PrivateKeyB64: base64.StdEncoding.EncodeToString(pemBytes)})
	require.NoError(t, err)

	a, err := json.Marshal(fromPEM.PublicSet())
	require.NoError(t, err)
	b, err := json.Marshal(fromB64.PublicSet())
	require.NoError(t, err)
	assert.JSONEq(t, string(a), string(b))
}

func TestParsePrivateKeyPEM_PKCS8(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)

	got, err := ParsePrivateKeyPEM(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
	require.NoError(t, err)
	assert.True(t, key.Equal(got))

	_, err = ParsePrivateKeyPEM([]byte("not a pem"))
	assert.Error(t, err)
}

func TestPublicSet_PublicOnly(t *testing.T) {
	kp, err := Load(Source{KID: "tool-key"})
	require.NoError(t, err)

	data, err := json.Marshal(kp.PublicSet())
	require.NoError(t, err)

	var doc struct {
		Keys []map[string]any `json:"keys"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	require.Len(t, doc.Keys, 1)
	k := doc.Keys[0]
	assert.Equal(t, "tool-key", k["kid"])
	assert.Equal(t, "RS256", k["alg"])
	assert.Equal(t, "sig", k["use"])
	assert.Equal(t, "RSA", k["kty"])
	assert.NotContains(t, k, "d", "private exponent must never be published")
	assert.NotContains(t, k, "p")
}
