package usecases

import (
	"context"
	"errors"
	"io"
	"net/http"
)

type flusher interface {
	Flush() error
}

// writeError ошибка на стороне приёмника, в отличие от ошибки чтения источника.
type writeError struct {
	err error
}

func (e *writeError) Error() string {
	return "write chunk: " + e.err.Error()
}

func (e *writeError) Unwrap() error {
	return e.err
}

func isWriteError(err error) bool {
	var w *writeError
	return errors.As(err, &w)
}

// CopyChunks перекачивает src в dst кусками размером с buf. После каждого куска
// приёмник сбрасывается, так что в памяти держится не больше одного куска.
// контекст проверяется между кусками: отвалившийся клиент быстро освобождает файл.
func CopyChunks(ctx context.Context, dst io.Writer, src io.Reader, buf []byte) (int64, error) {
	var written int64

	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		n, readErr := src.Read(buf)
		if n > 0 {
			w, err := dst.Write(buf[:n])
			written += int64(w)
			if err != nil {
				return written, &writeError{err: err}
			}
			if w != n {
				return written, &writeError{err: io.ErrShortWrite}
			}
			if err := flush(dst); err != nil {
				return written, &writeError{err: err}
			}
		}

		if errors.Is(readErr, io.EOF) {
			return written, nil
		}
		if readErr != nil {
			return written, readErr
		}
	}
}

func flush(dst io.Writer) error {
	switch f := dst.(type) {
	case flusher:
		return f.Flush()
	case http.Flusher:
		f.Flush()
	}
	return nil
}
