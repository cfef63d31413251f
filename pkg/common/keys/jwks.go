package keys

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"

	"github.com/quipper/poc/lti/tool/pkg/common/logger"
)

// Source describes where the tool signing key comes from. Empty PEM and B64
// fall back to an ephemeral key, which is only suitable for development.
type Source struct {
	KID           string
	PrivateKeyPEM string
	PrivateKeyB64 string
}

// KeyPair holds the kid and public JWKS document of the tool RSA key.
type KeyPair struct {
	kid       string
	publicSet jwk.Set
}

// Load builds the tool key pair from src.
func Load(src Source) (*KeyPair, error) {
	kid := src.KID
	if kid == "" {
		kid = uuid.NewString()
	}

	var key *rsa.PrivateKey
	switch {
	case src.PrivateKeyB64 != "":
		der, err := base64.StdEncoding.DecodeString(src.PrivateKeyB64)
		if err != nil {
			return nil, fmt.Errorf("decode base64 private key: %w", err)
		}
		if key, err = ParsePrivateKeyPEM(der); err != nil {
			return nil, err
		}
	case src.PrivateKeyPEM != "":
		var err error
		if key, err = ParsePrivateKeyPEM([]byte(src.PrivateKeyPEM)); err != nil {
			return nil, err
		}
	default:
		gen, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			return nil, fmt.Errorf("generate key: %w", err)
		}
		key = gen
		pemBytes := EncodePrivateKeyPEM(gen)
		logger.Warn("generated ephemeral RSA key (dev mode); platforms must re-fetch the JWKS after every restart. To persist, set LTITOOL_KEYS_PRIVATE_KEY_B64=%s and LTITOOL_KEYS_KID=%s",
			base64.StdEncoding.EncodeToString(pemBytes), kid)
	}
	return FromPrivateKey(kid, key)
}

// FromPrivateKey wraps an existing RSA key.
func FromPrivateKey(kid string, key *rsa.PrivateKey) (*KeyPair, error) {
	if key == nil {
		return nil, errors.New("keys: nil private key")
	}
	pub, err := jwk.FromRaw(&key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("public jwk: %w", err)
	}
	_ = pub.Set(jwk.KeyIDKey, kid)
	_ = pub.Set(jwk.AlgorithmKey, jwa.RS256)
	_ = pub.Set(jwk.KeyUsageKey, "sig")

	set := jwk.NewSet()
	if err := set.AddKey(pub); err != nil {
		return nil, fmt.Errorf("add key: %w", err)
	}
	return &KeyPair{kid: kid, publicSet: set}, nil
}

// ParsePrivateKeyPEM accepts PKCS#1 and PKCS#8 RSA keys.
func ParsePrivateKeyPEM(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("keys: no PEM block found")
	}
	if k, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return k, nil
	}
	pkcs8, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("keys: parse private key: %w", err)
	}
	rk, ok := pkcs8.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("keys: unsupported private key type %T", pkcs8)
	}
	return rk, nil
}

// EncodePrivateKeyPEM returns the PKCS#1 PEM encoding of key.
func EncodePrivateKeyPEM(key *rsa.PrivateKey) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
}

// PublicSet returns the public key set document.
func (k *KeyPair) PublicSet() jwk.Set { return k.publicSet }

// Kid returns current key id.
func (k *KeyPair) Kid() string { return k.kid }
