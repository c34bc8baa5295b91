package domain

import (
	"errors"
	"fmt"
)

var (
	ErrPathTraversal        = errors.New("path escapes root directory")
	ErrRootProtected        = errors.New("operation is not allowed on the root directory")
	ErrNameTooLong          = errors.New("name too long")
	ErrInvalidName          = errors.New("invalid file or folder name")
	ErrNotFound             = errors.New("file or folder not found")
	ErrNotDirectory         = errors.New("not a directory")
	ErrPermissionDenied     = errors.New("permission denied")
	ErrConflict             = errors.New("target already exists or cannot be replaced")
	ErrRangeNotSatisfiable  = errors.New("range not satisfiable")
	ErrUnsupportedOperation = errors.New("unsupported operation")
	ErrBadRequest           = errors.New("bad request")
	ErrUnsupportedEncoding  = errors.New("unsupported content encoding")
)

// RangeError несёт размер файла, он нужен клиенту для заголовка Content-Range: bytes */size.
type RangeError struct {
	Header string
	Size   int64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("range %q not satisfiable for size %d", e.Header, e.Size)
}

func (e *RangeError) Unwrap() error {
	return ErrRangeNotSatisfiable
}
