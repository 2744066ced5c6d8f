//go:build linux

package fingerprint

import (
	"io/fs"

	"golang.org/x/sys/unix"
)

// fileTimes prefers the statx birth time and falls back to the inode change
// time on filesystems that do not record one.
func fileTimes(path string, info fs.FileInfo) (created, accessed int64) {
	var stx unix.Statx_t
	mask := unix.STATX_BTIME | unix.STATX_ATIME | unix.STATX_CTIME
	if err := unix.Statx(unix.AT_FDCWD, path, 0, mask, &stx); err != nil {
		mtime := info.ModTime().UnixNano()
		return mtime, mtime
	}

	accessed = stx.Atime.Sec*1e9 + int64(stx.Atime.Nsec)
	if stx.Mask&unix.STATX_BTIME != 0 {
		created = stx.Btime.Sec*1e9 + int64(stx.Btime.Nsec)
	} else {
		created = stx.Ctime.Sec*1e9 + int64(stx.Ctime.Nsec)
	}
	return created, accessed
}
