package ipcbridge

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"strings"
	"testing"
)

func generateTestKeyPair(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate RSA key: %v", err)
	}
	return priv
}

// TestHybridEnvelopeConfidentiality covers scenario at the Seal level
// (no bridge is constructed): seal a message JSON body that contains a
// secret under a test RSA public key, and verify the sealed body neither leaks
// the secret nor omits any of the three envelope keys, while still
// decrypting correctly under the paired private key.
func TestHybridEnvelopeConfidentiality(t *testing.T) {
	priv := generateTestKeyPair(t)

	plaintext := []byte(`{"topic":"demo.public","payload":"password123"}`)

	sealed, err := Seal(&priv.PublicKey, plaintext)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	if bytes.Contains(sealed, []byte("password123")) {
		t.Fatal("sealed envelope leaks plaintext secret")
	}

	var asObject map[string]any
	if err := json.Unmarshal(sealed, &asObject); err != nil {
		t.Fatalf("sealed envelope is not a JSON object: %v", err)
	}
	for _, key := range []string{"secure_key", "iv", "secure_payload"} {
		if _, ok := asObject[key]; !ok {
			t.Errorf("sealed envelope missing key %q", key)
		}
	}

	recovered, err := Open(priv, sealed)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(recovered, plaintext) {
		t.Errorf("recovered plaintext = %q, want %q", recovered, plaintext)
	}
}

func TestSealProducesFreshKeyAndNonceEachCall(t *testing.T) {
	priv := generateTestKeyPair(t)
	plaintext := []byte(`{"x":1}`)

	first, err := Seal(&priv.PublicKey, plaintext)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	second, err := Seal(&priv.PublicKey, plaintext)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	if bytes.Equal(first, second) {
		t.Error("two Seal calls on identical plaintext produced identical envelopes")
	}
}

func TestOpenRejectsTamperedCiphertext(t *testing.T) {
	priv := generateTestKeyPair(t)
	sealed, err := Seal(&priv.PublicKey, []byte(`{"x":1}`))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	tampered := strings.Replace(string(sealed), "a", "b", 1)
	if _, err := Open(priv, []byte(tampered)); err == nil {
		t.Error("Open succeeded on tampered envelope, want error")
	}
}

func TestIsEnvelopeDetection(t *testing.T) {
	priv := generateTestKeyPair(t)
	sealed, err := Seal(&priv.PublicKey, []byte(`{"x":1}`))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	if !IsEnvelope(sealed) {
		t.Error("IsEnvelope(sealed) = false, want true")
	}
	if IsEnvelope([]byte(`{"topic":"demo.public"}`)) {
		t.Error("IsEnvelope(plain message) = true, want false")
	}
}
