package usecases

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/sirupsen/logrus"

	"filegate/internal/domain"
)

func (uc *FileManagementUseCase) folderDownload(dir domain.ResolvedPath) *domain.Download {
	name := dir.Name()
	if uc.root.IsRoot(dir) {
		name = domain.RootArchiveName
	}

	return &domain.Download{
		Name:        name + domain.ExtensionZip,
		ContentType: domain.MIMEZip,
		Archive: func(ctx context.Context, w io.Writer) error {
			return uc.writeZip(ctx, w, dir)
		},
	}
}

// shouldSkipEntry исключить скрытые файлы из zip архива, если так настроено.
func (uc *FileManagementUseCase) shouldSkipEntry(name string) bool {
	return uc.skipHidden && strings.HasPrefix(name, domain.HiddenFilePrefix)
}

// writeZip рекурсивно обхожу дерево директорий и пишу zip прямо в ответ.
// берутся только обычные файлы: по симлинкам не ходим, чтобы не вынести ничего из-за корня.
func (uc *FileManagementUseCase) writeZip(ctx context.Context, w io.Writer, dir domain.ResolvedPath) error {
	zipWriter := zip.NewWriter(w)

	buf := uc.getBuffer()
	defer uc.putBuffer(buf)

	walkErr := filepath.WalkDir(dir.String(), func(file string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if err != nil {
			if file == dir.String() {
				return err
			}
			logrus.Warnf("Skipping %s while archiving: %v", filepath.Base(file), err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if file == dir.String() {
			return nil
		}

		if uc.shouldSkipEntry(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}

		return uc.addFileToZip(ctx, zipWriter, dir, file, *buf)
	})

	closeErr := zipWriter.Close()
	if walkErr != nil {
		return fmt.Errorf("failed to create zip for folder '%s': %w", uc.root.Rel(dir), walkErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close zip writer: %w", closeErr)
	}
	return nil
}

// добавление файлов в zip архив. Путь ещё раз проходит через корень,
// файл, который исчез или стал недоступен, пропускается.
func (uc *FileManagementUseCase) addFileToZip(
	ctx context.Context,
	zipWriter *zip.Writer,
	dir domain.ResolvedPath,
	file string,
	buf []byte,
) error {
	rel, err := filepath.Rel(dir.String(), file)
	if err != nil {
		return fmt.Errorf("failed to get relative path: %w", err)
	}
	entryName := filepath.ToSlash(rel)

	resolved, err := uc.root.Resolve(path.Join(uc.root.Rel(dir), entryName))
	if err != nil {
		logrus.Warnf("Skipping %s while archiving: %v", entryName, err)
		return nil
	}

	src, err := uc.storage.OpenFile(resolved)
	if err != nil {
		logrus.Warnf("Skipping %s while archiving: %v", entryName, err)
		return nil
	}
	defer closeQuietly(src, entryName)

	info, err := src.Stat()
	if err != nil {
		logrus.Warnf("Skipping %s while archiving: %v", entryName, err)
		return nil
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("failed to build zip header: %w", err)
	}
	header.Name = entryName
	header.Method = zip.Deflate

	dst, err := zipWriter.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to create zip entry: %w", err)
	}

	if _, copyErr := CopyChunks(ctx, dst, src, buf); copyErr != nil {
		return fmt.Errorf("failed to copy file to zip: %w", copyErr)
	}

	return nil
}
