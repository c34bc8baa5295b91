package server

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"

	"filegate/internal/domain"
)

const (
	HeaderContentEncoding = "Content-Encoding"

	EncodingIdentity = "identity"
	EncodingGzip     = "gzip"
	EncodingXGzip    = "x-gzip"
	EncodingDeflate  = "deflate"
	EncodingZstd     = "zstd"
)

// DecompressRequest распаковывает тело запроса по Content-Encoding, дальше
// хендлеры видят обычное тело. Неизвестная кодировка отвергается с 415,
// иначе сжатый multipart молча разобрался бы в ноль частей.
func (h *Handler) DecompressRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		encoding := strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderContentEncoding)))
		if encoding == "" || encoding == EncodingIdentity {
			next.ServeHTTP(w, r)
			return
		}

		body, err := decodeBody(encoding, r.Body)
		if err != nil {
			h.handleError(w, err, pathFromRequest(r))
			return
		}

		r.Body = body
		r.Header.Del(HeaderContentEncoding)
		r.Header.Del(HeaderContentLength)
		r.ContentLength = -1
		next.ServeHTTP(w, r)
	})
}

func decodeBody(encoding string, body io.ReadCloser) (io.ReadCloser, error) {
	switch encoding {
	case EncodingGzip, EncodingXGzip:
		zr, err := gzip.NewReader(body)
		if err != nil {
			return nil, fmt.Errorf("gzip body: %w: %w", domain.ErrBadRequest, err)
		}
		return &decodedBody{Reader: zr, decoder: zr, source: body}, nil
	case EncodingDeflate:
		zr, err := zlib.NewReader(body)
		if err != nil {
			return nil, fmt.Errorf("deflate body: %w: %w", domain.ErrBadRequest, err)
		}
		return &decodedBody{Reader: zr, decoder: zr, source: body}, nil
	case EncodingZstd:
		zr, err := zstd.NewReader(body, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("zstd body: %w: %w", domain.ErrBadRequest, err)
		}
		rc := zr.IOReadCloser()
		return &decodedBody{Reader: rc, decoder: rc, source: body}, nil
	default:
		return nil, fmt.Errorf("content encoding %q: %w", encoding, domain.ErrUnsupportedEncoding)
	}
}

// decodedBody закрывает и декодер, и исходное тело.
type decodedBody struct {
	io.Reader
	decoder io.Closer
	source  io.Closer
}

func (b *decodedBody) Close() error {
	decErr := b.decoder.Close()
	if err := b.source.Close(); err != nil {
		return err
	}
	return decErr
}
