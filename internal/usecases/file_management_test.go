package usecases

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filegate/internal/adapters/localstorage"
	"filegate/internal/config"
	"filegate/internal/domain"
)

// mockFileStorage wraps the real local storage and lets a test break single calls.
type mockFileStorage struct {
	domain.FileStorage

	lstatFunc      func(p domain.ResolvedPath) (domain.FileMeta, error)
	createFileFunc func(p domain.ResolvedPath) (*os.File, error)
}

func (m *mockFileStorage) Lstat(p domain.ResolvedPath) (domain.FileMeta, error) {
	if m.lstatFunc != nil {
		return m.lstatFunc(p)
	}
	return m.FileStorage.Lstat(p)
}

func (m *mockFileStorage) CreateFile(p domain.ResolvedPath) (*os.File, error) {
	if m.createFileFunc != nil {
		return m.createFileFunc(p)
	}
	return m.FileStorage.CreateFile(p)
}

type fakePart struct {
	name string
	io.Reader
}

func (p fakePart) FileName() string {
	return p.name
}

// fakeSource hands out parts in order and then returns err (io.EOF when nil).
type fakeSource struct {
	parts []domain.UploadPart
	err   error
}

func (s *fakeSource) NextPart() (domain.UploadPart, error) {
	if len(s.parts) == 0 {
		if s.err != nil {
			return nil, s.err
		}
		return nil, io.EOF
	}
	part := s.parts[0]
	s.parts = s.parts[1:]
	return part, nil
}

func newTestUseCase(t *testing.T) (*FileManagementUseCase, *mockFileStorage, string) {
	t.Helper()

	cfg := config.Default()
	cfg.Transfer.ChunkBytes = 16

	root, err := domain.NewRootContext(t.TempDir(), cfg.File.MaxNameLength)
	require.NoError(t, err)

	storage := &mockFileStorage{
		FileStorage: localstorage.NewLocalStorageService(root, 0o755, 0o644),
	}
	return NewFileManagementUseCase(storage, cfg), storage, root.Dir()
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func entryNames(entries []domain.EntryRecord) []string {
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	sort.Strings(names)
	return names
}

func TestNewFileManagementUseCase(t *testing.T) {
	uc, storage, dir := newTestUseCase(t)

	assert.NotNil(t, uc)
	assert.Equal(t, storage, uc.storage)
	assert.Equal(t, dir, uc.root.Dir())
	assert.Equal(t, 16, uc.chunkSize)
	assert.True(t, uc.skipHidden)
	assert.Len(t, *uc.getBuffer(), 16)
}

func TestFileManagementUseCase_Inspect(t *testing.T) {
	uc, storage, dir := newTestUseCase(t)
	writeFile(t, filepath.Join(dir, "docs", "a.txt"), "hello")
	writeFile(t, filepath.Join(dir, "docs", "b.txt"), "world!")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "docs", "sub"), 0o755))
	require.NoError(t, os.Symlink(filepath.Join(dir, "docs", "a.txt"), filepath.Join(dir, "docs", "link")))

	t.Run("file", func(t *testing.T) {
		listing, err := uc.Inspect("docs/a.txt")
		require.NoError(t, err)
		require.Len(t, listing.Entries, 1)

		rec := listing.Entries[0]
		assert.Equal(t, "a.txt", rec.Name)
		assert.Equal(t, "docs/a.txt", rec.Path)
		assert.Equal(t, "docs", rec.ParentPath)
		assert.Equal(t, domain.EntryFile, rec.Type)
		require.NotNil(t, rec.Size)
		assert.Equal(t, int64(5), *rec.Size)
		assert.Greater(t, rec.Modified, int64(0))
	})

	t.Run("directory", func(t *testing.T) {
		listing, err := uc.Inspect("docs")
		require.NoError(t, err)

		assert.Equal(t, []string{"a.txt", "b.txt", "link", "sub"}, entryNames(listing.Entries))
		assert.Empty(t, listing.Skipped)

		types := map[string]domain.EntryType{}
		for _, e := range listing.Entries {
			types[e.Name] = e.Type
			assert.Equal(t, "docs", e.ParentPath)
			assert.Equal(t, "docs/"+e.Name, e.Path)
		}
		assert.Equal(t, domain.EntryDirectory, types["sub"])
		assert.Equal(t, domain.EntrySymlink, types["link"])
	})

	t.Run("root", func(t *testing.T) {
		listing, err := uc.Inspect("")
		require.NoError(t, err)
		require.Len(t, listing.Entries, 1)
		assert.Equal(t, "docs", listing.Entries[0].Path)
		assert.Equal(t, "", listing.Entries[0].ParentPath)
		assert.Nil(t, listing.Entries[0].Size)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := uc.Inspect("docs/missing")
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})

	t.Run("traversal", func(t *testing.T) {
		_, err := uc.Inspect("../../etc")
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrPathTraversal) || errors.Is(err, domain.ErrNotFound))
	})

	t.Run("unreadable entry is skipped", func(t *testing.T) {
		storage.lstatFunc = func(p domain.ResolvedPath) (domain.FileMeta, error) {
			if p.Name() == "b.txt" {
				return domain.FileMeta{}, &fs.PathError{Op: "lstat", Path: p.String(), Err: fs.ErrPermission}
			}
			return storage.FileStorage.Lstat(p)
		}
		defer func() { storage.lstatFunc = nil }()

		listing, err := uc.Inspect("docs")
		require.NoError(t, err)

		assert.Equal(t, []string{"a.txt", "link", "sub"}, entryNames(listing.Entries))
		require.Len(t, listing.Skipped, 1)
		assert.Equal(t, "b.txt", listing.Skipped[0].Name)
		assert.Equal(t, "permission denied", listing.Skipped[0].Reason)
	})
}

func TestFileManagementUseCase_Delete(t *testing.T) {
	uc, _, dir := newTestUseCase(t)

	t.Run("file", func(t *testing.T) {
		writeFile(t, filepath.Join(dir, "file.txt"), "x")

		require.NoError(t, uc.Delete("file.txt"))
		_, err := os.Stat(filepath.Join(dir, "file.txt"))
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("directory recursively", func(t *testing.T) {
		writeFile(t, filepath.Join(dir, "tree", "a", "b.txt"), "x")

		require.NoError(t, uc.Delete("tree"))
		_, err := os.Stat(filepath.Join(dir, "tree"))
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("missing twice", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			err := uc.Delete("ghost")
			assert.True(t, errors.Is(err, domain.ErrNotFound))
		}
	})

	t.Run("root is protected", func(t *testing.T) {
		err := uc.Delete(".")
		assert.True(t, errors.Is(err, domain.ErrRootProtected))
		_, statErr := os.Stat(dir)
		assert.NoError(t, statErr)
	})
}

func TestFileManagementUseCase_Rename(t *testing.T) {
	uc, _, dir := newTestUseCase(t)
	writeFile(t, filepath.Join(dir, "docs", "old.txt"), "content")
	writeFile(t, filepath.Join(dir, "docs", "taken.txt"), "taken")

	t.Run("success", func(t *testing.T) {
		require.NoError(t, uc.Rename("docs/old.txt", "new.txt"))

		data, err := os.ReadFile(filepath.Join(dir, "docs", "new.txt"))
		require.NoError(t, err)
		assert.Equal(t, "content", string(data))
	})

	t.Run("same name is a no-op", func(t *testing.T) {
		assert.NoError(t, uc.Rename("docs/new.txt", "new.txt"))
	})

	t.Run("separator rejected", func(t *testing.T) {
		for _, name := range []string{"../escaped.txt", "sub/new.txt", `..\escaped.txt`, ".."} {
			err := uc.Rename("docs/new.txt", name)
			assert.True(t, errors.Is(err, domain.ErrInvalidName), "name %q: %v", name, err)
		}
		_, err := os.Stat(filepath.Join(dir, "escaped.txt"))
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("destination exists", func(t *testing.T) {
		err := uc.Rename("docs/new.txt", "taken.txt")
		assert.True(t, errors.Is(err, domain.ErrConflict))

		data, readErr := os.ReadFile(filepath.Join(dir, "docs", "taken.txt"))
		require.NoError(t, readErr)
		assert.Equal(t, "taken", string(data))
	})

	t.Run("symlink to the source is an existing name", func(t *testing.T) {
		require.NoError(t, os.Symlink(filepath.Join(dir, "docs", "new.txt"), filepath.Join(dir, "docs", "alias.txt")))

		err := uc.Rename("docs/new.txt", "alias.txt")
		assert.True(t, errors.Is(err, domain.ErrConflict), "got %v", err)

		info, lstatErr := os.Lstat(filepath.Join(dir, "docs", "alias.txt"))
		require.NoError(t, lstatErr)
		assert.NotZero(t, info.Mode()&os.ModeSymlink)
		_, statErr := os.Stat(filepath.Join(dir, "docs", "new.txt"))
		assert.NoError(t, statErr)
	})

	t.Run("missing source", func(t *testing.T) {
		err := uc.Rename("docs/nope.txt", "x.txt")
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})

	t.Run("root", func(t *testing.T) {
		err := uc.Rename("", "x")
		assert.True(t, errors.Is(err, domain.ErrRootProtected))
	})
}

func TestFileManagementUseCase_CreateFolder(t *testing.T) {
	uc, _, dir := newTestUseCase(t)

	t.Run("nested and idempotent", func(t *testing.T) {
		require.NoError(t, uc.CreateFolder("a/b/c"))
		require.NoError(t, uc.CreateFolder("a/b/c"))

		info, err := os.Stat(filepath.Join(dir, "a", "b", "c"))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("outside root", func(t *testing.T) {
		err := uc.CreateFolder("../outside")
		assert.True(t, errors.Is(err, domain.ErrPathTraversal))
	})

	t.Run("file in the way", func(t *testing.T) {
		writeFile(t, filepath.Join(dir, "plain"), "x")

		err := uc.CreateFolder("plain/child")
		assert.True(t, errors.Is(err, domain.ErrConflict), "got %v", err)
	})
}

func TestFileManagementUseCase_Upload(t *testing.T) {
	ctx := context.Background()

	t.Run("multiple parts", func(t *testing.T) {
		uc, _, dir := newTestUseCase(t)
		require.NoError(t, os.Mkdir(filepath.Join(dir, "in"), 0o755))

		big := strings.Repeat("0123456789", 100)
		source := &fakeSource{parts: []domain.UploadPart{
			fakePart{name: "big.bin", Reader: strings.NewReader(big)},
			fakePart{name: "", Reader: strings.NewReader("form field")},
			fakePart{name: "../../evil.txt", Reader: strings.NewReader("evil")},
			fakePart{name: `C:\Users\me\win.txt`, Reader: strings.NewReader("win")},
		}}

		report, err := uc.Upload(ctx, "in", source)
		require.NoError(t, err)

		assert.Equal(t, []domain.UploadedFile{
			{Name: "big.bin", Size: int64(len(big))},
			{Name: "evil.txt", Size: 4},
			{Name: "win.txt", Size: 3},
		}, report.Files)
		assert.Empty(t, report.Failed)
		assert.Equal(t, int64(len(big)+7), report.TotalBytes)
		assert.Equal(t, FormatBytes(report.TotalBytes), report.Total)

		data, err := os.ReadFile(filepath.Join(dir, "in", "big.bin"))
		require.NoError(t, err)
		assert.Equal(t, big, string(data))

		_, err = os.Stat(filepath.Join(dir, "in", "evil.txt"))
		assert.NoError(t, err)
		_, err = os.Stat(filepath.Join(filepath.Dir(dir), "evil.txt"))
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("write failure skips only that part", func(t *testing.T) {
		uc, storage, dir := newTestUseCase(t)
		storage.createFileFunc = func(p domain.ResolvedPath) (*os.File, error) {
			if p.Name() != "bad.bin" {
				return storage.FileStorage.CreateFile(p)
			}
			f, err := storage.FileStorage.CreateFile(p)
			if err != nil {
				return nil, err
			}
			require.NoError(t, f.Close())
			return os.Open(p.String())
		}

		source := &fakeSource{parts: []domain.UploadPart{
			fakePart{name: "bad.bin", Reader: strings.NewReader("will not be written")},
			fakePart{name: "good.txt", Reader: strings.NewReader("ok")},
		}}

		report, err := uc.Upload(ctx, "", source)
		require.NoError(t, err)

		require.Len(t, report.Failed, 1)
		assert.Equal(t, domain.FailedFile{Name: "bad.bin", Reason: "write failed"}, report.Failed[0])
		assert.Equal(t, []domain.UploadedFile{{Name: "good.txt", Size: 2}}, report.Files)

		_, statErr := os.Stat(filepath.Join(dir, "bad.bin"))
		assert.True(t, os.IsNotExist(statErr))
	})

	t.Run("invalid name is reported", func(t *testing.T) {
		uc, _, _ := newTestUseCase(t)
		source := &fakeSource{parts: []domain.UploadPart{
			fakePart{name: "..", Reader: strings.NewReader("x")},
			fakePart{name: "fine.txt", Reader: strings.NewReader("x")},
		}}

		report, err := uc.Upload(ctx, "", source)
		require.NoError(t, err)
		require.Len(t, report.Failed, 1)
		assert.Equal(t, "invalid file name", report.Failed[0].Reason)
		assert.Len(t, report.Files, 1)
	})

	t.Run("existing symlink is not written through", func(t *testing.T) {
		uc, _, dir := newTestUseCase(t)
		writeFile(t, filepath.Join(dir, "sub", "y.txt"), "original")
		require.NoError(t, os.Symlink(filepath.Join(dir, "sub", "y.txt"), filepath.Join(dir, "x.txt")))

		source := &fakeSource{parts: []domain.UploadPart{
			fakePart{name: "x.txt", Reader: strings.NewReader("new")},
		}}

		report, err := uc.Upload(ctx, "", source)
		require.NoError(t, err)
		assert.Empty(t, report.Files)
		assert.Equal(t, []domain.FailedFile{{Name: "x.txt", Reason: "target is a symbolic link"}}, report.Failed)

		data, readErr := os.ReadFile(filepath.Join(dir, "sub", "y.txt"))
		require.NoError(t, readErr)
		assert.Equal(t, "original", string(data))
	})

	t.Run("broken body stops processing", func(t *testing.T) {
		uc, _, dir := newTestUseCase(t)
		source := &fakeSource{
			parts: []domain.UploadPart{
				fakePart{name: "first.txt", Reader: strings.NewReader("1")},
				fakePart{name: "cut.txt", Reader: io.MultiReader(strings.NewReader("partial"), &failingReader{})},
			},
			err: errors.New("multipart: NextPart: EOF"),
		}

		report, err := uc.Upload(ctx, "", source)
		require.NoError(t, err)
		assert.Equal(t, []domain.UploadedFile{{Name: "first.txt", Size: 1}}, report.Files)
		require.Len(t, report.Failed, 1)
		assert.Equal(t, "cut.txt", report.Failed[0].Name)

		_, statErr := os.Stat(filepath.Join(dir, "cut.txt"))
		assert.True(t, os.IsNotExist(statErr))
	})

	t.Run("target is a file", func(t *testing.T) {
		uc, _, dir := newTestUseCase(t)
		writeFile(t, filepath.Join(dir, "file.txt"), "x")

		_, err := uc.Upload(ctx, "file.txt", &fakeSource{})
		assert.True(t, errors.Is(err, domain.ErrNotDirectory))
	})

	t.Run("target missing", func(t *testing.T) {
		uc, _, _ := newTestUseCase(t)

		_, err := uc.Upload(ctx, "nope", &fakeSource{})
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, io.ErrUnexpectedEOF
}

func readDownload(t *testing.T, uc *FileManagementUseCase, d *domain.Download) string {
	t.Helper()

	defer d.Body.Close()
	var out bytes.Buffer
	_, err := uc.Pump(context.Background(), &out, d.Body)
	require.NoError(t, err)
	return out.String()
}

func TestFileManagementUseCase_OpenDownload(t *testing.T) {
	uc, _, dir := newTestUseCase(t)
	content := "0123456789abcdefghijklmnopqrstuvwxyz"
	writeFile(t, filepath.Join(dir, "data.txt"), content)
	writeFile(t, filepath.Join(dir, "empty"), "")

	t.Run("full file", func(t *testing.T) {
		d, err := uc.OpenDownload("data.txt", "")
		require.NoError(t, err)

		assert.False(t, d.Partial)
		assert.Equal(t, "data.txt", d.Name)
		assert.Equal(t, int64(len(content)), d.Size)
		assert.Equal(t, int64(len(content)), d.Range.Len())
		assert.True(t, strings.HasPrefix(d.ContentType, "text/plain"))
		assert.Equal(t, content, readDownload(t, uc, d))
	})

	t.Run("partial", func(t *testing.T) {
		d, err := uc.OpenDownload("data.txt", "bytes=10-19")
		require.NoError(t, err)

		assert.True(t, d.Partial)
		assert.Equal(t, domain.ByteRange{Start: 10, End: 19}, d.Range)
		assert.Equal(t, content[10:20], readDownload(t, uc, d))
	})

	t.Run("open ended", func(t *testing.T) {
		d, err := uc.OpenDownload("data.txt", "bytes=30-")
		require.NoError(t, err)
		assert.Equal(t, content[30:], readDownload(t, uc, d))
	})

	t.Run("unsatisfiable", func(t *testing.T) {
		_, err := uc.OpenDownload("data.txt", "bytes=100-")
		var rangeErr *domain.RangeError
		require.True(t, errors.As(err, &rangeErr))
		assert.Equal(t, int64(len(content)), rangeErr.Size)
	})

	t.Run("empty file", func(t *testing.T) {
		d, err := uc.OpenDownload("empty", "")
		require.NoError(t, err)
		assert.Equal(t, int64(0), d.Range.Len())
		assert.Equal(t, domain.MIMEOctetStream, d.ContentType)
		assert.Equal(t, "", readDownload(t, uc, d))
	})

	t.Run("missing", func(t *testing.T) {
		_, err := uc.OpenDownload("ghost.txt", "")
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})
}

func TestFileManagementUseCase_FolderDownload(t *testing.T) {
	uc, _, dir := newTestUseCase(t)
	writeFile(t, filepath.Join(dir, "pack", "a.txt"), "alpha")
	writeFile(t, filepath.Join(dir, "pack", "sub", "b.txt"), strings.Repeat("b", 100))
	writeFile(t, filepath.Join(dir, "pack", ".hidden"), "secret")
	outside := filepath.Join(t.TempDir(), "outside.txt")
	writeFile(t, outside, "outside")
	require.NoError(t, os.Symlink(outside, filepath.Join(dir, "pack", "link.txt")))

	d, err := uc.OpenDownload("pack", "bytes=0-1")
	require.NoError(t, err)
	require.NotNil(t, d.Archive)
	assert.Nil(t, d.Body)
	assert.Equal(t, "pack.zip", d.Name)
	assert.Equal(t, domain.MIMEZip, d.ContentType)

	var buf bytes.Buffer
	require.NoError(t, d.Archive(context.Background(), &buf))

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)

	contents := map[string]string{}
	for _, f := range zr.File {
		rc, openErr := f.Open()
		require.NoError(t, openErr)
		data, readErr := io.ReadAll(rc)
		require.NoError(t, readErr)
		require.NoError(t, rc.Close())
		contents[f.Name] = string(data)
	}

	assert.Equal(t, map[string]string{
		"a.txt":     "alpha",
		"sub/b.txt": strings.Repeat("b", 100),
	}, contents)

	t.Run("root archive name", func(t *testing.T) {
		d, err := uc.OpenDownload("", "")
		require.NoError(t, err)
		assert.Equal(t, "root.zip", d.Name)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, d.Archive(ctx, io.Discard), context.Canceled)
	})
}
