package localstorage

import (
	"os"
	"syscall"
	"time"
)

func entryTimes(_ string, info os.FileInfo) (accessed, created time.Time) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return accessed, created
	}
	return time.Unix(st.Atimespec.Unix()), time.Unix(st.Birthtimespec.Unix())
}
