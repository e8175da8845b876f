package ipcbridge

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
)

// envelope is the JSON object that replaces a frame's body when egress
// encryption is configured.
type envelope struct {
	SecureKey     string `json:"secure_key"`
	IV            string `json:"iv"`
	SecurePayload string `json:"secure_payload"`
}

// ParsePublicKey decodes a PEM-encoded RSA public key, the format of the
// file named by the bridge config's external_public_key_file. The bridge
// plugin's properties map does not carry the PEM text: its
// "external_public_key" entry only records that a key is configured.
func ParsePublicKey(pemBytes []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("ipcbridge: no PEM block found in public key")
	}
	switch block.Type {
	case "PUBLIC KEY":
		pub, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("ipcbridge: parse PKIX public key: %w", err)
		}
		rsaPub, ok := pub.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("ipcbridge: public key is not RSA")
		}
		return rsaPub, nil
	case "RSA PUBLIC KEY":
		return x509.ParsePKCS1PublicKey(block.Bytes)
	default:
		return nil, fmt.Errorf("ipcbridge: unsupported PEM block type %q", block.Type)
	}
}

// ParsePrivateKey decodes a PEM-encoded RSA private key, used by tests
// and by the peer decrypting a captured envelope.
func ParsePrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("ipcbridge: no PEM block found in private key")
	}
	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("ipcbridge: parse PKCS8 private key: %w", err)
		}
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("ipcbridge: private key is not RSA")
		}
		return rsaKey, nil
	default:
		return nil, fmt.Errorf("ipcbridge: unsupported PEM block type %q", block.Type)
	}
}

// Seal applies the hybrid AES-256-GCM/RSA-PKCS1v15 envelope to
// plaintext: a fresh AES-256 key and GCM nonce are generated per call,
// the plaintext is sealed under AEAD with no additional data, and the
// AES key is wrapped under the recipient's RSA public key. The result is
// the JSON-encoded envelope object that replaces the frame body.
func Seal(pub *rsa.PublicKey, plaintext []byte) ([]byte, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("%w: generate AES key: %v", ErrEncryptionFailure, err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: new AES cipher: %v", ErrEncryptionFailure, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: new GCM: %v", ErrEncryptionFailure, err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("%w: generate nonce: %v", ErrEncryptionFailure, err)
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	wrappedKey, err := rsa.EncryptPKCS1v15(rand.Reader, pub, key)
	if err != nil {
		return nil, fmt.Errorf("%w: wrap AES key: %v", ErrEncryptionFailure, err)
	}

	env := envelope{
		SecureKey:     base64.StdEncoding.EncodeToString(wrappedKey),
		IV:            base64.StdEncoding.EncodeToString(nonce),
		SecurePayload: base64.StdEncoding.EncodeToString(ciphertext),
	}
	return json.Marshal(env)
}

// Open reverses Seal: it unwraps the AES key under the recipient's RSA
// private key, then AEAD-opens the ciphertext, returning the original
// plaintext bytes.
func Open(priv *rsa.PrivateKey, envelopeJSON []byte) ([]byte, error) {
	var env envelope
	if err := json.Unmarshal(envelopeJSON, &env); err != nil {
		return nil, fmt.Errorf("%w: decode envelope: %v", ErrEncryptionFailure, err)
	}

	wrappedKey, err := base64.StdEncoding.DecodeString(env.SecureKey)
	if err != nil {
		return nil, fmt.Errorf("%w: decode secure_key: %v", ErrEncryptionFailure, err)
	}
	nonce, err := base64.StdEncoding.DecodeString(env.IV)
	if err != nil {
		return nil, fmt.Errorf("%w: decode iv: %v", ErrEncryptionFailure, err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(env.SecurePayload)
	if err != nil {
		return nil, fmt.Errorf("%w: decode secure_payload: %v", ErrEncryptionFailure, err)
	}

	key, err := rsa.DecryptPKCS1v15(rand.Reader, priv, wrappedKey)
	if err != nil {
		return nil, fmt.Errorf("%w: unwrap AES key: %v", ErrEncryptionFailure, err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: new AES cipher: %v", ErrEncryptionFailure, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: new GCM: %v", ErrEncryptionFailure, err)
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: AEAD open: %v", ErrEncryptionFailure, err)
	}
	return plaintext, nil
}

// IsEnvelope reports whether body parses as a hybrid envelope object
// (has all three expected keys), used by a peer's subscriber loop to
// decide whether to attempt Open before treating body as a plain
// Message JSON document.
func IsEnvelope(body []byte) bool {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return false
	}
	return env.SecureKey != "" && env.IV != "" && env.SecurePayload != ""
}
