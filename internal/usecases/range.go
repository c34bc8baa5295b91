package usecases

import (
	"strconv"
	"strings"

	"filegate/internal/domain"
)

// ParseRange разбирает "bytes=<start>-[<end>]". Открытый конец означает до конца файла,
// конец за пределами файла обрезается. Суффиксы ("-500") и несколько диапазонов не поддерживаются.
func ParseRange(header string, size int64) (domain.ByteRange, error) {
	unsatisfiable := &domain.RangeError{Header: header, Size: size}

	value, ok := strings.CutPrefix(strings.TrimSpace(header), domain.RangePrefix)
	if !ok || size <= 0 {
		return domain.ByteRange{}, unsatisfiable
	}

	parts := strings.Split(value, "-")
	if len(parts) != 2 {
		return domain.ByteRange{}, unsatisfiable
	}

	start, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil || start < 0 {
		return domain.ByteRange{}, unsatisfiable
	}

	end := size - 1
	if rawEnd := strings.TrimSpace(parts[1]); rawEnd != "" {
		parsed, parseErr := strconv.ParseInt(rawEnd, 10, 64)
		if parseErr != nil || parsed < 0 {
			return domain.ByteRange{}, unsatisfiable
		}
		end = min(parsed, end)
	}

	if start > end {
		return domain.ByteRange{}, unsatisfiable
	}

	return domain.ByteRange{Start: start, End: end}, nil
}
