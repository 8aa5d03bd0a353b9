// Package verify provides the pluggable signature-verification capability
// the peer learner consumes (design note R1). The discovery core itself
// performs no verification — trust is always the caller's responsibility —
// but a Verifier, when configured, lets the learner demote unverifiable
// descriptors to pending storage instead of silently accepting them.
package verify

import "crypto/ed25519"

// Verifier checks a detached signature over a descriptor's canonical JSON
// bytes. A nil error means the signature is valid for the given public
// material; any other result is treated as "could not verify" by callers,
// which is not the same as proving forgery — only that acceptance should
// not be unconditional.
type Verifier interface {
	Verify(descriptorJSON, signature []byte) error
}

// Ed25519Verifier verifies detached Ed25519 signatures against a single
// known public key. It is the default, optional Verifier implementation;
// callers needing per-node keys should implement Verifier themselves (e.g.
// backed by a keyring keyed on node_id).
type Ed25519Verifier struct {
	PublicKey ed25519.PublicKey
}

// NewEd25519Verifier constructs a Verifier for a 32-byte Ed25519 public key.
func NewEd25519Verifier(publicKey ed25519.PublicKey) (*Ed25519Verifier, error) {
	if len(publicKey) != ed25519.PublicKeySize {
		return nil, errInvalidKeySize(len(publicKey))
	}
	return &Ed25519Verifier{PublicKey: publicKey}, nil
}

// Verify implements Verifier.
func (v *Ed25519Verifier) Verify(descriptorJSON, signature []byte) error {
	if len(signature) != ed25519.SignatureSize {
		return errBadSignatureSize(len(signature))
	}
	if !ed25519.Verify(v.PublicKey, descriptorJSON, signature) {
		return errSignatureMismatch
	}
	return nil
}
