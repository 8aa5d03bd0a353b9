package verify

import "fmt"

var errSignatureMismatch = fmt.Errorf("ed25519: signature does not verify")

func errInvalidKeySize(n int) error {
	return fmt.Errorf("ed25519: invalid public key size %d", n)
}

func errBadSignatureSize(n int) error {
	return fmt.Errorf("ed25519: invalid signature size %d", n)
}
