//go:build !linux

package fingerprint

import "io/fs"

func fileTimes(path string, info fs.FileInfo) (created, accessed int64) {
	mtime := info.ModTime().UnixNano()
	return mtime, mtime
}
