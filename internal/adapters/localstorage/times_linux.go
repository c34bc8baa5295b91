package localstorage

import (
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// entryTimes время доступа и создания. statx отдаёт btime, если ФС его хранит.
func entryTimes(path string, info os.FileInfo) (accessed, created time.Time) {
	var stx unix.Statx_t
	err := unix.Statx(unix.AT_FDCWD, path, unix.AT_SYMLINK_NOFOLLOW,
		unix.STATX_ATIME|unix.STATX_BTIME, &stx)
	if err == nil {
		if stx.Mask&unix.STATX_ATIME != 0 {
			accessed = time.Unix(stx.Atime.Sec, int64(stx.Atime.Nsec))
		}
		if stx.Mask&unix.STATX_BTIME != 0 {
			created = time.Unix(stx.Btime.Sec, int64(stx.Btime.Nsec))
		}
		return accessed, created
	}

	// старые ядра без statx
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		accessed = time.Unix(st.Atim.Unix())
	}
	return accessed, created
}
