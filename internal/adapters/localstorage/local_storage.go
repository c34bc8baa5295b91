package localstorage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/sirupsen/logrus"

	"filegate/internal/domain"
)

type LocalStorageService struct {
	root     domain.RootContext
	dirPerm  os.FileMode
	filePerm os.FileMode
}

func NewLocalStorageService(root domain.RootContext, dirPerm, filePerm os.FileMode) *LocalStorageService {
	return &LocalStorageService{
		root:     root,
		dirPerm:  dirPerm,
		filePerm: filePerm,
	}
}

func (s *LocalStorageService) Root() domain.RootContext {
	return s.root
}

// Lstat метаданные без перехода по симлинку.
func (s *LocalStorageService) Lstat(p domain.ResolvedPath) (domain.FileMeta, error) {
	info, err := os.Lstat(p.String())
	if err != nil {
		return domain.FileMeta{}, err
	}

	accessed, created := entryTimes(p.String(), info)
	return domain.FileMeta{
		Name:     info.Name(),
		Mode:     info.Mode(),
		Size:     info.Size(),
		Modified: info.ModTime(),
		Accessed: accessed,
		Created:  created,
	}, nil
}

// ReadDirectory имена в порядке, в котором их отдала ФС. Метаданные тут не читаются,
// чтобы одна битая запись не ломала весь листинг.
func (s *LocalStorageService) ReadDirectory(p domain.ResolvedPath) ([]string, error) {
	dir, err := os.Open(p.String())
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := dir.Close(); closeErr != nil {
			logrus.Warnf("Failed to close directory %s: %v", p.Name(), closeErr)
		}
	}()

	return dir.Readdirnames(-1)
}

func (s *LocalStorageService) Remove(p domain.ResolvedPath) error {
	info, err := os.Lstat(p.String())
	if err != nil {
		return err
	}
	if info.IsDir() {
		return os.RemoveAll(p.String())
	}
	return os.Remove(p.String())
}

// Move переименовывает файл или директорию. Существующую цель не перезаписываем,
// os.Rename на unix сделал бы это молча.
func (s *LocalStorageService) Move(src, dst domain.ResolvedPath) error {
	if _, err := os.Lstat(dst.String()); err == nil {
		return fs.ErrExist
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.Rename(src.String(), dst.String())
}

func (s *LocalStorageService) CreateDirectory(p domain.ResolvedPath) error {
	return os.MkdirAll(p.String(), s.dirPerm)
}

// CreateFile создаёт или обрезает файл назначения.
func (s *LocalStorageService) CreateFile(p domain.ResolvedPath) (*os.File, error) {
	f, err := os.OpenFile(p.String(), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, s.filePerm)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", p.Name(), err)
	}
	return f, nil
}

func (s *LocalStorageService) OpenFile(p domain.ResolvedPath) (*os.File, error) {
	return os.Open(p.String())
}
