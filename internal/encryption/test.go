package encryption

import (
	"bytes"
	"fmt"
	"io"

	"dupdb/internal/dupdb"
)

// testMagic marks output of TestEncryptor so tests can tell a "sealed"
// snapshot from a plain one without doing real cryptography.
var testMagic = []byte("DUPSEAL\x01")

// TestEncryptor prefixes data with testMagic and strips it again on decrypt.
// Passphrases are ignored.
type TestEncryptor struct {
	setupCalled bool
}

var _ dupdb.Encryptor = (*TestEncryptor)(nil)

func NewTestEncryptor() *TestEncryptor {
	return &TestEncryptor{}
}

func (e *TestEncryptor) Setup(string) error {
	e.setupCalled = true
	return nil
}

func (e *TestEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	if _, err := io.Copy(w, io.MultiReader(bytes.NewReader(testMagic), r)); err != nil {
		return fmt.Errorf("sealing snapshot: %w", err)
	}
	return nil
}

func (e *TestEncryptor) Unlock(string) (dupdb.DecryptionContext, error) {
	return testOpener{}, nil
}

func (e *TestEncryptor) IsConfigured() bool { return true }

type testOpener struct{}

func (testOpener) Decrypt(r io.Reader, w io.Writer) error {
	magic := make([]byte, len(testMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return fmt.Errorf("reading seal: %w", err)
	}
	if !bytes.Equal(magic, testMagic) {
		return fmt.Errorf("snapshot is not sealed by the test encryptor")
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("unsealing snapshot: %w", err)
	}
	return nil
}

// NoneEncryptor stores snapshots in plaintext.
type NoneEncryptor struct{}

var _ dupdb.Encryptor = NoneEncryptor{}

func (NoneEncryptor) Setup(string) error { return nil }

func (NoneEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	_, err := io.Copy(w, r)
	return err
}

func (NoneEncryptor) Unlock(string) (dupdb.DecryptionContext, error) {
	return NoneEncryptor{}, nil
}

func (NoneEncryptor) IsConfigured() bool { return true }

func (NoneEncryptor) Decrypt(r io.Reader, w io.Writer) error {
	_, err := io.Copy(w, r)
	return err
}
