package fs

import (
	"io/fs"
	"time"
)

// Fingerprint identifies one version of a file well enough to notice that it
// changed without reading it.
type Fingerprint struct {
	Size    int64
	ModTime time.Time
	Inode   uint64
	ChTime  time.Time
}

// FingerprintOf builds a Fingerprint from stat data. Inode and change time
// are only filled where the platform exposes them.
func FingerprintOf(info fs.FileInfo) Fingerprint {
	fp := Fingerprint{
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}
	fillPlatform(&fp, info)
	return fp
}
