package usecases

import (
	"errors"
	"fmt"
	"io/fs"
	"syscall"

	"filegate/internal/domain"
)

// classifyFSError приклеивает доменную ошибку к ошибке ФС, исходная цепочка сохраняется для логов.
func classifyFSError(err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %w", domain.ErrNotFound, err)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %w", domain.ErrPermissionDenied, err)
	case errors.Is(err, fs.ErrExist),
		errors.Is(err, syscall.EXDEV),
		errors.Is(err, syscall.ENOTDIR),
		errors.Is(err, syscall.ENOTEMPTY):
		return fmt.Errorf("%w: %w", domain.ErrConflict, err)
	default:
		return err
	}
}

// skipReason причина пропуска записи для клиента, без внутренних путей.
func skipReason(err error) string {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return "entry vanished during listing"
	case errors.Is(err, fs.ErrPermission):
		return "permission denied"
	default:
		return "metadata unavailable"
	}
}

// failReason то же самое для файлов при загрузке.
func failReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidName), errors.Is(err, domain.ErrNameTooLong):
		return "invalid file name"
	case errors.Is(err, domain.ErrPathTraversal):
		return "target escapes root directory"
	case errors.Is(err, errLinkTarget):
		return "target is a symbolic link"
	case errors.Is(err, fs.ErrPermission):
		return "permission denied"
	case isWriteError(err):
		return "write failed"
	case errors.Is(err, errPartRejected):
		return "could not create file"
	default:
		return "transfer interrupted"
	}
}
