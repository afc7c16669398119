package models

import (
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// POSIX mode bits used for the three kinds of nodes the namespace
// synthesizes. Tagdir does not implement permission semantics
// Non-goals), so every node carries the same fixed permission bits.
const (
	modeTagDir    = 0o644 | uint32(unix.S_IFDIR)
	modeEntityLnk = 0o644 | uint32(unix.S_IFLNK)
	modeRootDir   = 0o644 | uint32(unix.S_IFDIR)
)

// Attr is a POSIX stat-shaped record persisted alongside every Tag and
// Entity, plus the singleton RootAttr. Timestamps are stored as
// whole seconds with zero nanoseconds.
type Attr struct {
	ID      int64
	StMode  uint32
	StUID   uint32
	StGID   uint32
	StAtime int64
	StMtime int64
	StCtime int64
}

// NewTagAttr builds the Attr for a freshly created Tag directory.
func NewTagAttr(now time.Time) Attr { return newAttr(modeTagDir, now) }

// NewEntityAttr builds the Attr for a freshly tagged Entity symlink.
func NewEntityAttr(now time.Time) Attr { return newAttr(modeEntityLnk, now) }

// NewRootAttr builds the singleton Attr for "/". Callers persist it with
// id=1 and never construct a second one.
func NewRootAttr(now time.Time) Attr { return newAttr(modeRootDir, now) }

func newAttr(mode uint32, now time.Time) Attr {
	sec := now.Unix()
	return Attr{
		StMode:  mode,
		StUID:   uint32(os.Getuid()),
		StGID:   uint32(os.Getgid()),
		StAtime: sec,
		StMtime: sec,
		StCtime: sec,
	}
}
