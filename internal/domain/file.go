package domain

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"
)

type EntryType string

const (
	EntryFile      EntryType = "file"
	EntryDirectory EntryType = "directory"
	EntrySymlink   EntryType = "symlink"
	EntryUnknown   EntryType = "unknown"
)

// EntryTypeOf определяет тип записи по режиму из lstat, симлинки не разыменовываются.
func EntryTypeOf(mode os.FileMode) EntryType {
	switch {
	case mode.IsRegular():
		return EntryFile
	case mode.IsDir():
		return EntryDirectory
	case mode&os.ModeSymlink != 0:
		return EntrySymlink
	default:
		return EntryUnknown
	}
}

// FileMeta метаданные записи как их видит хранилище.
// нулевое время означает, что ФС его не отдаёт.
type FileMeta struct {
	Name     string
	Mode     os.FileMode
	Size     int64
	Modified time.Time
	Accessed time.Time
	Created  time.Time
}

// EntryRecord информация о файле или директории, имена полей совместимы со старыми клиентами.
type EntryRecord struct {
	Name       string    `json:"ename"`
	ParentPath string    `json:"eppath"`
	Path       string    `json:"epath"`
	Type       EntryType `json:"etype"`
	Modified   int64     `json:"emodified"`
	Accessed   int64     `json:"eaccessed"`
	Created    int64     `json:"ecreated"`
	Size       *int64    `json:"esize,omitempty"`
}

type SkippedEntry struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// Listing результат просмотра: записи плюс то, что пришлось пропустить.
type Listing struct {
	Entries []EntryRecord
	Skipped []SkippedEntry
}

// ByteRange включительный диапазон байт, 0 <= Start <= End < size.
type ByteRange struct {
	Start int64
	End   int64
}

func (r ByteRange) Len() int64 {
	return r.End - r.Start + 1
}

func (r ByteRange) ContentRange(size int64) string {
	return fmt.Sprintf("%s %d-%d/%d", RangeUnitBytes, r.Start, r.End, size)
}

// UnsatisfiedContentRange значение Content-Range для ответа 416.
func UnsatisfiedContentRange(size int64) string {
	return fmt.Sprintf("%s */%d", RangeUnitBytes, size)
}

type UploadedFile struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

type FailedFile struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// UploadReport итог загрузки, ошибки по файлам не теряются.
type UploadReport struct {
	Files      []UploadedFile `json:"files"`
	Failed     []FailedFile   `json:"failed"`
	TotalBytes int64          `json:"total_bytes"`
	Total      string         `json:"total"`
}

// UploadPart одна часть multipart тела.
type UploadPart interface {
	io.Reader
	FileName() string
}

// PartSource отдаёт части по одной, io.EOF когда частей больше нет.
type PartSource interface {
	NextPart() (UploadPart, error)
}

// Download подготовленная отдача файла. Для директорий Body пустой, а Archive пишет zip.
type Download struct {
	Name        string
	ContentType string
	Size        int64
	Range       ByteRange
	Partial     bool
	Body        io.ReadCloser
	Archive     func(ctx context.Context, w io.Writer) error
}

// FileStorage для операций работы с файловым хранилищем.
// принимает только ResolvedPath, сырые пути клиента сюда не попадают.
type FileStorage interface {
	Root() RootContext
	Lstat(p ResolvedPath) (FileMeta, error)
	ReadDirectory(p ResolvedPath) ([]string, error)
	Remove(p ResolvedPath) error
	Move(src, dst ResolvedPath) error
	CreateDirectory(p ResolvedPath) error
	CreateFile(p ResolvedPath) (*os.File, error)
	OpenFile(p ResolvedPath) (*os.File, error)
}

// FileManagement для сценариев управления файлами.
type FileManagement interface {
	Inspect(path string) (Listing, error)
	Delete(path string) error
	Rename(path, newName string) error
	CreateFolder(path string) error
	Upload(ctx context.Context, path string, parts PartSource) (UploadReport, error)
	OpenDownload(path, rangeHeader string) (*Download, error)
	Pump(ctx context.Context, w io.Writer, r io.Reader) (int64, error)
}
