package usecases

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"filegate/internal/config"
	"filegate/internal/domain"
)

type FileManagementUseCase struct {
	storage    domain.FileStorage
	root       domain.RootContext
	chunkSize  int
	skipHidden bool
	buffers    sync.Pool
}

func NewFileManagementUseCase(storage domain.FileStorage, cfg *config.Config) *FileManagementUseCase {
	chunkSize := int(cfg.Transfer.ChunkBytes)
	uc := &FileManagementUseCase{
		storage:    storage,
		root:       storage.Root(),
		chunkSize:  chunkSize,
		skipHidden: cfg.Transfer.ZipSkipHidden,
	}
	uc.buffers.New = func() any {
		buf := make([]byte, chunkSize)
		return &buf
	}
	return uc
}

func (uc *FileManagementUseCase) getBuffer() *[]byte {
	return uc.buffers.Get().(*[]byte)
}

func (uc *FileManagementUseCase) putBuffer(buf *[]byte) {
	uc.buffers.Put(buf)
}

// Inspect одна запись для файла, дочерние записи для директории.
func (uc *FileManagementUseCase) Inspect(path string) (domain.Listing, error) {
	p, err := uc.root.Resolve(path)
	if err != nil {
		return domain.Listing{}, err
	}

	meta, err := uc.storage.Lstat(p)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("could not stat '%s': %w", path, classifyFSError(err))
	}

	switch {
	case meta.Mode.IsRegular(), domain.EntryTypeOf(meta.Mode) == domain.EntrySymlink:
		return domain.Listing{Entries: []domain.EntryRecord{uc.record(p, meta)}}, nil
	case meta.Mode.IsDir():
		return uc.listDirectory(path, p)
	default:
		return domain.Listing{}, fmt.Errorf("entry '%s' is neither file nor directory: %w", path, domain.ErrNotFound)
	}
}

// listDirectory листинг по возможности: запись, у которой не читаются метаданные,
// попадает в Skipped, а не роняет весь ответ.
func (uc *FileManagementUseCase) listDirectory(path string, dir domain.ResolvedPath) (domain.Listing, error) {
	names, err := uc.storage.ReadDirectory(dir)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("could not read directory '%s': %w", path, classifyFSError(err))
	}

	listing := domain.Listing{Entries: make([]domain.EntryRecord, 0, len(names))}
	for _, name := range names {
		child, childErr := uc.root.Child(dir, name)
		var meta domain.FileMeta
		if childErr == nil {
			meta, childErr = uc.storage.Lstat(child)
		}
		if childErr != nil {
			logrus.Warnf("Skipping entry %s in '%s': %v", name, path, childErr)
			listing.Skipped = append(listing.Skipped, domain.SkippedEntry{
				Name:   name,
				Reason: skipReason(childErr),
			})
			continue
		}
		listing.Entries = append(listing.Entries, uc.record(child, meta))
	}

	return listing, nil
}

func (uc *FileManagementUseCase) record(p domain.ResolvedPath, meta domain.FileMeta) domain.EntryRecord {
	rec := domain.EntryRecord{
		Name:     p.Name(),
		Path:     uc.root.Rel(p),
		Type:     domain.EntryTypeOf(meta.Mode),
		Modified: unixSeconds(meta.Modified),
		Accessed: unixSeconds(meta.Accessed),
		Created:  unixSeconds(meta.Created),
	}

	if parent, err := uc.root.Parent(p); err == nil {
		rec.ParentPath = uc.root.Rel(parent)
	}

	if meta.Mode.IsRegular() {
		size := meta.Size
		rec.Size = &size
	}

	return rec
}

func unixSeconds(t time.Time) int64 {
	if t.IsZero() || t.Unix() < 0 {
		return 0
	}
	return t.Unix()
}

func (uc *FileManagementUseCase) Delete(path string) error {
	p, err := uc.root.Resolve(path)
	if err != nil {
		return err
	}
	if uc.root.IsRoot(p) {
		return fmt.Errorf("could not delete '%s': %w", path, domain.ErrRootProtected)
	}

	if removeErr := uc.storage.Remove(p); removeErr != nil {
		return fmt.Errorf("could not delete file/folder '%s': %w", path, classifyFSError(removeErr))
	}
	return nil
}

// Rename только внутри той же директории: новое имя это голое имя, не путь.
func (uc *FileManagementUseCase) Rename(path, newName string) error {
	src, err := uc.root.Resolve(path)
	if err != nil {
		return err
	}

	parent, err := uc.root.Parent(src)
	if err != nil {
		return fmt.Errorf("could not rename '%s': %w", path, err)
	}

	if validateErr := uc.root.ValidateName(newName); validateErr != nil {
		return fmt.Errorf("could not rename '%s' to '%s': %w", path, newName, validateErr)
	}
	if newName == src.Name() {
		return nil
	}

	// занятость имени смотрим до канонизации: симлинк на сам источник тоже занятое имя.
	leaf, err := uc.root.Child(parent, newName)
	if err != nil {
		return fmt.Errorf("could not rename '%s' to '%s': %w", path, newName, err)
	}
	if _, statErr := uc.storage.Lstat(leaf); statErr == nil {
		return fmt.Errorf("could not rename '%s' to '%s': %w", path, newName, domain.ErrConflict)
	} else if !errors.Is(statErr, fs.ErrNotExist) {
		return fmt.Errorf("could not rename '%s' to '%s': %w", path, newName, classifyFSError(statErr))
	}

	dst, err := uc.root.ResolveChild(parent, newName)
	if err != nil {
		return fmt.Errorf("could not rename '%s' to '%s': %w", path, newName, err)
	}

	if moveErr := uc.storage.Move(src, dst); moveErr != nil {
		return fmt.Errorf("could not rename '%s' to '%s': %w", path, newName, classifyFSError(moveErr))
	}
	return nil
}

// CreateFolder идемпотентен: существующая директория это успех.
func (uc *FileManagementUseCase) CreateFolder(path string) error {
	p, err := uc.root.ResolveNew(path)
	if err != nil {
		return err
	}

	if createErr := uc.storage.CreateDirectory(p); createErr != nil {
		return fmt.Errorf("could not create folder '%s': %w", path, classifyFSError(createErr))
	}
	return nil
}

// Upload принимает части по одной. Ошибка записи одного файла не прерывает остальные,
// а ошибка чтения тела прерывает: дальше тело уже не разобрать.
func (uc *FileManagementUseCase) Upload(ctx context.Context, path string, parts domain.PartSource) (domain.UploadReport, error) {
	dir, err := uc.root.Resolve(path)
	if err != nil {
		return domain.UploadReport{}, err
	}

	meta, err := uc.storage.Lstat(dir)
	if err != nil {
		return domain.UploadReport{}, fmt.Errorf("could not stat '%s': %w", path, classifyFSError(err))
	}
	if !meta.Mode.IsDir() {
		return domain.UploadReport{}, fmt.Errorf("upload target '%s': %w", path, domain.ErrNotDirectory)
	}

	report := domain.UploadReport{
		Files:  []domain.UploadedFile{},
		Failed: []domain.FailedFile{},
	}

	buf := uc.getBuffer()
	defer uc.putBuffer(buf)

	for {
		part, partErr := parts.NextPart()
		if errors.Is(partErr, io.EOF) {
			break
		}
		if partErr != nil {
			logrus.Warnf("Upload to '%s' stopped, malformed body: %v", path, partErr)
			report.Failed = append(report.Failed, domain.FailedFile{Reason: "malformed multipart body"})
			break
		}

		rawName := part.FileName()
		if rawName == "" {
			logrus.Debugf("Upload to '%s': skipping part without file name", path)
			continue
		}

		name := sanitizeFileName(rawName)
		n, receiveErr := uc.receivePart(ctx, dir, name, part, *buf)
		if receiveErr != nil {
			logrus.WithFields(logrus.Fields{
				"operation": "upload",
				"path":      path,
				"file":      name,
			}).Errorf("Failed to save part: %v", receiveErr)
			report.Failed = append(report.Failed, domain.FailedFile{Name: name, Reason: failReason(receiveErr)})

			if !isWriteError(receiveErr) && !errors.Is(receiveErr, errPartRejected) {
				break
			}
			continue
		}

		report.Files = append(report.Files, domain.UploadedFile{Name: name, Size: n})
		report.TotalBytes += n
		logrus.WithFields(logrus.Fields{
			"operation": "upload",
			"path":      path,
			"file":      name,
			"size":      FormatBytes(n),
		}).Info("File saved")
	}

	report.Total = FormatBytes(report.TotalBytes)
	return report, nil
}

var (
	errPartRejected = errors.New("part rejected")
	errLinkTarget   = errors.New("target is a symbolic link")
)

func (uc *FileManagementUseCase) receivePart(
	ctx context.Context,
	dir domain.ResolvedPath,
	name string,
	part io.Reader,
	buf []byte,
) (int64, error) {
	target, err := uc.root.ResolveChild(dir, name)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", errPartRejected, err)
	}

	// по существующему симлинку не пишем, иначе перезапишется чужой файл.
	leaf, err := uc.root.Child(dir, name)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", errPartRejected, err)
	}
	if meta, statErr := uc.storage.Lstat(leaf); statErr == nil && meta.Mode&os.ModeSymlink != 0 {
		return 0, fmt.Errorf("%w: %w", errPartRejected, errLinkTarget)
	}

	f, err := uc.storage.CreateFile(target)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", errPartRejected, err)
	}

	n, copyErr := CopyChunks(ctx, bufio.NewWriterSize(f, len(buf)), part, buf)
	if closeErr := f.Close(); closeErr != nil && copyErr == nil {
		copyErr = &writeError{err: closeErr}
	}

	if copyErr != nil {
		// недописанный файл не оставляем.
		if removeErr := uc.storage.Remove(target); removeErr != nil {
			logrus.Warnf("Failed to remove partial file %s: %v", name, removeErr)
		}
		return n, copyErr
	}

	return n, nil
}

// sanitizeFileName от имени клиента остаётся только последний компонент,
// обратный слеш тоже считается разделителем.
func sanitizeFileName(raw string) string {
	name := path.Base(strings.ReplaceAll(raw, "\\", "/"))
	if name == domain.PathRoot || name == domain.PathCurrent {
		return domain.PathEmpty
	}
	return name
}

// OpenDownload готовит отдачу: для файла открытый и спозиционированный Body,
// для директории функция, которая пишет zip.
func (uc *FileManagementUseCase) OpenDownload(path, rangeHeader string) (*domain.Download, error) {
	p, err := uc.root.Resolve(path)
	if err != nil {
		return nil, err
	}

	meta, err := uc.storage.Lstat(p)
	if err != nil {
		return nil, fmt.Errorf("file not found at '%s': %w", path, classifyFSError(err))
	}

	if meta.Mode.IsDir() {
		return uc.folderDownload(p), nil
	}
	if !meta.Mode.IsRegular() {
		return nil, fmt.Errorf("'%s' is not a regular file: %w", path, domain.ErrUnsupportedOperation)
	}

	f, err := uc.storage.OpenFile(p)
	if err != nil {
		return nil, fmt.Errorf("could not open '%s': %w: %w", path, domain.ErrNotFound, err)
	}

	info, err := f.Stat()
	if err != nil {
		closeQuietly(f, p.Name())
		return nil, fmt.Errorf("failed to stat file at '%s': %w", path, err)
	}
	size := info.Size()

	rng := domain.ByteRange{Start: 0, End: size - 1}
	partial := false
	if rangeHeader != "" {
		rng, err = ParseRange(rangeHeader, size)
		if err != nil {
			closeQuietly(f, p.Name())
			return nil, err
		}
		partial = true
	}

	if rng.Start > 0 {
		if _, seekErr := f.Seek(rng.Start, io.SeekStart); seekErr != nil {
			closeQuietly(f, p.Name())
			return nil, fmt.Errorf("failed to seek '%s': %w", path, seekErr)
		}
	}

	// MIME по расширению, для корреткного скачивания файлов.
	contentType := mime.TypeByExtension(filepath.Ext(p.Name()))
	if contentType == domain.PathEmpty {
		contentType = domain.MIMEOctetStream
	}

	return &domain.Download{
		Name:        p.Name(),
		ContentType: contentType,
		Size:        size,
		Range:       rng,
		Partial:     partial,
		Body: &limitedReadCloser{
			Reader: io.LimitReader(f, rng.Len()),
			Closer: f,
		},
	}, nil
}

// Pump отдаёт тело загрузки в w через общий буфер.
func (uc *FileManagementUseCase) Pump(ctx context.Context, w io.Writer, r io.Reader) (int64, error) {
	buf := uc.getBuffer()
	defer uc.putBuffer(buf)
	return CopyChunks(ctx, w, r, *buf)
}

type limitedReadCloser struct {
	io.Reader
	io.Closer
}

func closeQuietly(c io.Closer, name string) {
	if err := c.Close(); err != nil {
		logrus.Warnf("Failed to close file %s: %v", name, err)
	}
}
