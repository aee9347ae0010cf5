package tracker

import (
	"errors"
	"io/fs"
	"os"
)

// PathKind is what a path points at, looked up without following symlinks.
type PathKind int

const (
	KindMissing PathKind = iota
	KindRegular
	KindDirectory
	KindSymlink
	KindDevice
	KindOther // pipes, sockets and anything irregular
)

func (k PathKind) String() string {
	switch k {
	case KindMissing:
		return "missing"
	case KindRegular:
		return "regular file"
	case KindDirectory:
		return "directory"
	case KindSymlink:
		return "symlink"
	case KindDevice:
		return "device"
	default:
		return "special file"
	}
}

// Classify lstats path once and maps the result to a PathKind. Only errors
// other than "does not exist" are returned.
func Classify(path string) (PathKind, error) {
	info, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return KindMissing, nil
	}
	if err != nil {
		return KindMissing, err
	}
	return kindOf(info.Mode()), nil
}

func kindOf(mode fs.FileMode) PathKind {
	switch {
	case mode.IsRegular():
		return KindRegular
	case mode.IsDir():
		return KindDirectory
	case mode&fs.ModeSymlink != 0:
		return KindSymlink
	case mode&fs.ModeDevice != 0:
		return KindDevice
	default:
		return KindOther
	}
}
