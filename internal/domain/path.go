package domain

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// RootContext неизменяемый корень раздачи. Создаётся один раз при старте и
// передаётся по значению всем, кому нужен, глобального состояния нет.
type RootContext struct {
	dir           string
	maxNameLength int
}

// ResolvedPath абсолютный путь, проверенный на нахождение внутри корня.
// создать его можно только через методы RootContext.
type ResolvedPath struct {
	abs string
}

func (p ResolvedPath) String() string {
	return p.abs
}

func (p ResolvedPath) Name() string {
	return filepath.Base(p.abs)
}

func (p ResolvedPath) IsZero() bool {
	return p.abs == PathEmpty
}

// NewRootContext канонизирует корень (абсолютный путь без симлинков) и проверяет, что это директория.
func NewRootContext(dir string, maxNameLength int) (RootContext, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return RootContext{}, fmt.Errorf("failed to resolve root '%s': %w", dir, err)
	}

	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return RootContext{}, fmt.Errorf("failed to canonicalize root '%s': %w", abs, err)
	}

	info, err := os.Stat(real)
	if err != nil {
		return RootContext{}, fmt.Errorf("failed to stat root '%s': %w", real, err)
	}
	if !info.IsDir() {
		return RootContext{}, fmt.Errorf("root '%s': %w", real, ErrNotDirectory)
	}

	return RootContext{dir: real, maxNameLength: maxNameLength}, nil
}

func (r RootContext) Dir() string {
	return r.dir
}

func (r RootContext) Path() ResolvedPath {
	return ResolvedPath{abs: r.dir}
}

func (r RootContext) IsRoot(p ResolvedPath) bool {
	return p.abs == r.dir
}

func (r RootContext) prefix() string {
	return strings.TrimSuffix(r.dir, string(filepath.Separator)) + string(filepath.Separator)
}

func (r RootContext) contains(abs string) bool {
	return abs == r.dir || strings.HasPrefix(abs, r.prefix())
}

func (r RootContext) join(rel string) string {
	return filepath.Join(r.dir, filepath.FromSlash(rel))
}

// Resolve превращает относительный путь клиента в существующий путь внутри корня.
// симлинки и ".." раскрываются до сравнения с корнем.
func (r RootContext) Resolve(rel string) (ResolvedPath, error) {
	real, err := filepath.EvalSymlinks(r.join(rel))
	if err != nil {
		return ResolvedPath{}, fmt.Errorf("could not resolve '%s': %w", rel, ErrNotFound)
	}

	if !r.contains(real) {
		return ResolvedPath{}, fmt.Errorf("path '%s' resolves outside root: %w", rel, ErrPathTraversal)
	}

	return ResolvedPath{abs: real}, nil
}

// ResolveNew для путей, которых ещё может не быть: канонизируем только
// существующую часть, дописываем хвост и снова проверяем префикс.
func (r RootContext) ResolveNew(rel string) (ResolvedPath, error) {
	existing := r.join(rel)
	var tail []string

	for {
		if _, err := os.Lstat(existing); err == nil {
			break
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			return ResolvedPath{}, fmt.Errorf("no existing ancestor for '%s': %w", rel, ErrNotFound)
		}
		tail = append([]string{filepath.Base(existing)}, tail...)
		existing = parent
	}

	for _, name := range tail {
		if r.maxNameLength > 0 && len(name) > r.maxNameLength {
			return ResolvedPath{}, fmt.Errorf("segment of '%s' too long (%d > %d): %w",
				rel, len(name), r.maxNameLength, ErrNameTooLong)
		}
	}

	real, err := filepath.EvalSymlinks(existing)
	if err != nil {
		return ResolvedPath{}, fmt.Errorf("could not resolve ancestor of '%s': %w", rel, ErrNotFound)
	}

	target := filepath.Join(append([]string{real}, tail...)...)
	if !r.contains(target) {
		return ResolvedPath{}, fmt.Errorf("path '%s' resolves outside root: %w", rel, ErrPathTraversal)
	}

	return ResolvedPath{abs: target}, nil
}

// ValidateName пропускает только голое имя: без разделителей и не "." / "..".
func (r RootContext) ValidateName(name string) error {
	switch name {
	case PathEmpty, PathCurrent, PathParent:
		return fmt.Errorf("name '%s': %w", name, ErrInvalidName)
	}

	if strings.ContainsAny(name, "/\\\x00") {
		return fmt.Errorf("name '%s' contains a path separator: %w", name, ErrInvalidName)
	}

	if r.maxNameLength > 0 && len(name) > r.maxNameLength {
		return fmt.Errorf("name too long (%d > %d): %w", len(name), r.maxNameLength, ErrNameTooLong)
	}

	return nil
}

// ResolveChild цель внутри уже проверенной директории (переименование, загрузка).
// если лист существует, он тоже канонизируется: симлинк наружу не пройдёт.
func (r RootContext) ResolveChild(dir ResolvedPath, name string) (ResolvedPath, error) {
	if err := r.ValidateName(name); err != nil {
		return ResolvedPath{}, err
	}

	joined := filepath.Join(dir.abs, name)
	if !r.contains(joined) {
		return ResolvedPath{}, fmt.Errorf("child '%s' outside root: %w", name, ErrPathTraversal)
	}

	if _, err := os.Lstat(joined); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ResolvedPath{abs: joined}, nil
		}
		return ResolvedPath{}, fmt.Errorf("could not stat child '%s': %w", name, err)
	}

	real, err := filepath.EvalSymlinks(joined)
	if err != nil {
		// битый симлинк: куда он ведёт, проверить нельзя.
		return ResolvedPath{}, fmt.Errorf("child '%s' is a dangling link: %w", name, ErrPathTraversal)
	}
	if !r.contains(real) {
		return ResolvedPath{}, fmt.Errorf("child '%s' resolves outside root: %w", name, ErrPathTraversal)
	}

	return ResolvedPath{abs: real}, nil
}

// Child запись из листинга директории. Путь не разыменовывается, годится только для lstat.
func (r RootContext) Child(dir ResolvedPath, name string) (ResolvedPath, error) {
	switch name {
	case PathEmpty, PathCurrent, PathParent:
		return ResolvedPath{}, fmt.Errorf("entry '%s': %w", name, ErrInvalidName)
	}
	if strings.ContainsRune(name, filepath.Separator) {
		return ResolvedPath{}, fmt.Errorf("entry '%s': %w", name, ErrInvalidName)
	}
	return ResolvedPath{abs: filepath.Join(dir.abs, name)}, nil
}

// Parent родитель пути, для корня родителя нет.
func (r RootContext) Parent(p ResolvedPath) (ResolvedPath, error) {
	if r.IsRoot(p) || !r.contains(p.abs) {
		return ResolvedPath{}, ErrRootProtected
	}
	return ResolvedPath{abs: filepath.Dir(p.abs)}, nil
}

// Rel путь относительно корня через "/". Если префикс не снимается, пустая строка.
func (r RootContext) Rel(p ResolvedPath) string {
	prefix := r.prefix()
	if !strings.HasPrefix(p.abs, prefix) {
		return PathEmpty
	}
	return filepath.ToSlash(strings.TrimPrefix(p.abs, prefix))
}
