package dupdb

import "io"

// Encryptor protects index snapshots before they leave the machine.
// Encryption needs only the public key; decryption needs the passphrase that
// unlocks the private key.
type Encryptor interface {
	// Setup generates the key pair. The private key is stored encrypted with passphrase.
	Setup(passphrase string) error

	// Encrypt reads plaintext from r and writes ciphertext to w.
	Encrypt(r io.Reader, w io.Writer) error

	// Unlock decrypts the private key and returns a context for the session.
	Unlock(passphrase string) (DecryptionContext, error)

	// IsConfigured returns true if both key files exist.
	IsConfigured() bool
}

// DecryptionContext holds an unlocked private key in memory only.
type DecryptionContext interface {
	Decrypt(r io.Reader, w io.Writer) error
}
