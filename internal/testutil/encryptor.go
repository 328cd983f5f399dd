package testutil

import (
	"dupdb/internal/dupdb"
	"dupdb/internal/encryption"
)

// NewTestEncryptor returns a deterministic, reversible encryptor.
func NewTestEncryptor() dupdb.Encryptor {
	return encryption.NewTestEncryptor()
}
