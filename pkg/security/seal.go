package security

import (
	"crypto/ed25519"
	"fmt"
)

// Envelope is a signed payload: the original message plus a detached
// Ed25519 signature over it.
type Envelope struct {
	Message   []byte
	Signature []byte
}

// Seal signs message with c's secret key. c must be a KindSigning cert
// carrying a secret key.
func Seal(c *Cert, message []byte) (*Envelope, error) {
	if c.Kind != KindSigning {
		return nil, fmt.Errorf("seal: cert %q is not a signing cert", c.Identity)
	}
	if len(c.Sec) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("seal: cert %q has no secret key", c.Identity)
	}
	sig := ed25519.Sign(ed25519.PrivateKey(c.Sec), message)
	return &Envelope{Message: message, Signature: sig}, nil
}

// Verify checks that env was produced by the secret key matching c's
// public key. Only c.Pub is consulted — verification never requires a
// secret key.
func Verify(c *Cert, env *Envelope) bool {
	if c.Kind != KindSigning || len(c.Pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(c.Pub), env.Message, env.Signature)
}
