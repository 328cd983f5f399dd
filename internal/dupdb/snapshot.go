package dupdb

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// SnapshotName is the vault name under which index snapshots are stored.
const SnapshotName = "index"

// PushSnapshot copies the index to the vault, encrypted when the service has
// an encryptor. Versions are unix seconds, bumped past the stored version so
// that two pushes within one second still order correctly. Returns the version written.
func (s *Service) PushSnapshot() (int64, error) {
	if s.vault == nil {
		return 0, fmt.Errorf("no vault configured")
	}
	if err := s.store.Flush(); err != nil {
		return 0, fmt.Errorf("flushing index: %w", err)
	}

	tmpDir, err := os.MkdirTemp("", "dupdb-snapshot-")
	if err != nil {
		return 0, fmt.Errorf("creating temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	plainPath := filepath.Join(tmpDir, "plain")
	if err := s.store.Snapshot(plainPath); err != nil {
		return 0, fmt.Errorf("snapshotting index: %w", err)
	}

	uploadPath := plainPath
	if s.encryptor != nil {
		uploadPath = filepath.Join(tmpDir, "sealed")
		if err := encryptFile(s.encryptor, plainPath, uploadPath); err != nil {
			return 0, err
		}
	}

	f, err := os.Open(uploadPath)
	if err != nil {
		return 0, fmt.Errorf("opening snapshot: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("sizing snapshot: %w", err)
	}

	current, err := s.vault.SnapshotVersion(s.hostID, SnapshotName)
	if err != nil {
		return 0, fmt.Errorf("reading stored version: %w", err)
	}
	version := max(s.clock.Now().Unix(), current+1)

	if err := s.vault.PutSnapshot(s.hostID, SnapshotName, f, info.Size(), version); err != nil {
		return 0, fmt.Errorf("storing snapshot: %w", err)
	}
	s.logger.Info("snapshot pushed", "host", s.hostID, "version", version, "bytes", info.Size())
	return version, nil
}

// PullSnapshot fetches the latest snapshot for this host and writes it to
// destPath, which must not exist. dc decrypts the snapshot; pass nil when
// snapshots are stored in plaintext.
func (s *Service) PullSnapshot(destPath string, dc DecryptionContext) (int64, error) {
	if s.vault == nil {
		return 0, fmt.Errorf("no vault configured")
	}
	if _, err := os.Stat(destPath); err == nil {
		return 0, fmt.Errorf("output file already exists: %s", destPath)
	}

	version, err := s.vault.SnapshotVersion(s.hostID, SnapshotName)
	if err != nil {
		return 0, fmt.Errorf("reading stored version: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".dupdb-pull-*")
	if err != nil {
		return 0, fmt.Errorf("creating output file: %w", err)
	}
	tmpPath := tmp.Name()
	success := false
	defer func() {
		if !success {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if dc == nil {
		if err := s.vault.GetSnapshot(s.hostID, SnapshotName, tmp); err != nil {
			return 0, fmt.Errorf("retrieving snapshot: %w", err)
		}
	} else {
		pr, pw := io.Pipe()
		vaultErrCh := make(chan error, 1)
		go func() {
			err := s.vault.GetSnapshot(s.hostID, SnapshotName, pw)
			pw.CloseWithError(err)
			vaultErrCh <- err
		}()

		decryptErr := dc.Decrypt(pr, tmp)
		pr.CloseWithError(decryptErr)
		vaultErr := <-vaultErrCh

		if errors.Is(vaultErr, ErrSnapshotNotFound) {
			return 0, fmt.Errorf("retrieving snapshot: %w", vaultErr)
		}
		if decryptErr != nil {
			return 0, fmt.Errorf("decrypting snapshot: %w", decryptErr)
		}
		if vaultErr != nil {
			return 0, fmt.Errorf("retrieving snapshot: %w", vaultErr)
		}
	}

	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("closing output file: %w", err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return 0, fmt.Errorf("renaming output file: %w", err)
	}
	success = true

	s.logger.Info("snapshot pulled", "host", s.hostID, "version", version, "path", destPath)
	return version, nil
}

func encryptFile(enc Encryptor, src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening snapshot: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("creating encrypted snapshot: %w", err)
	}
	if err := enc.Encrypt(in, out); err != nil {
		out.Close()
		return fmt.Errorf("encrypting snapshot: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("closing encrypted snapshot: %w", err)
	}
	return nil
}
