package tracker

import "errors"

var (
	ErrPathNotFound      = errors.New("file does not exist")
	ErrPathIsDirectory   = errors.New("cannot add directory")
	ErrUnsupportedType   = errors.New("not a regular file")
	ErrOutsideRepository = errors.New("path is outside the repository")
)
