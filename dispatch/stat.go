package dispatch

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/osakka/tagdir/models"
)

// Stat is the POSIX stat-shaped result Getattr returns, whether the
// path resolved to a synthesized namespace node or was satisfied by a
// pass-through to the loopback.
type Stat struct {
	Mode  uint32
	UID   uint32
	GID   uint32
	Atime int64
	Mtime int64
	Ctime int64
	Size  int64
}

func statFromAttr(a models.Attr) Stat {
	return Stat{
		Mode:  a.StMode,
		UID:   a.StUID,
		GID:   a.StGID,
		Atime: a.StAtime,
		Mtime: a.StMtime,
		Ctime: a.StCtime,
	}
}

// entInfoStat is the synthetic regular-file attribute getattr("/.entinfo")
// returns. The pseudo-file is not a Tag or Entity and owns no Attr row.
func entInfoStat() Stat {
	return Stat{Mode: 0o644 | uint32(unix.S_IFREG)}
}

// statFromFileInfo adapts a loopback os.FileInfo. The full mode word and
// the uid/gid/atime/ctime fields come from the platform's syscall.Stat_t
// when available, which os.FileInfo.Sys() on Linux provides; the fallback
// reconstructs the type bit from the portable FileMode.
func statFromFileInfo(fi os.FileInfo) Stat {
	st := Stat{
		Mode:  uint32(fi.Mode().Perm()),
		Size:  fi.Size(),
		Mtime: fi.ModTime().Unix(),
	}
	switch {
	case fi.IsDir():
		st.Mode |= uint32(unix.S_IFDIR)
	case fi.Mode()&os.ModeSymlink != 0:
		st.Mode |= uint32(unix.S_IFLNK)
	case fi.Mode().IsRegular():
		st.Mode |= uint32(unix.S_IFREG)
	}
	if sys, ok := fi.Sys().(*syscall.Stat_t); ok {
		st.Mode = uint32(sys.Mode)
		st.UID = sys.Uid
		st.GID = sys.Gid
		st.Atime = int64(sys.Atim.Sec) //nolint:unconvert // 32-bit platforms narrow this
		st.Ctime = int64(sys.Ctim.Sec)
	}
	return st
}
