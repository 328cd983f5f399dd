//go:build !linux

package fs

import "io/fs"

func fillPlatform(*Fingerprint, fs.FileInfo) {}
