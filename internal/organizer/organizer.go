// Package organizer names the local copies of remote files.
//
// Paths are built under a base directory as "{course dir}/{folder path}/{filename}", every component sanitised.
// A name that already exists on disk, or was handed out earlier in the same pass, gets a "_N" suffix before its
// extension.
package organizer

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"github.com/desertthunder/cvsync/internal/models"
)

// MaxNameLength caps a sanitised path component, extension included.
const MaxNameLength = 200

var invalidChars = regexp.MustCompile(`[/\\:*?"<>|]`)

// Organizer resolves local paths against an [afero.Fs].
type Organizer struct {
	fs   afero.Fs
	base string

	mu       sync.Mutex
	reserved map[string]struct{}
}

// New creates an [Organizer] rooted at base.
func New(fsys afero.Fs, base string) *Organizer {
	return &Organizer{fs: fsys, base: base, reserved: make(map[string]struct{})}
}

// Base returns the root directory.
func (o *Organizer) Base() string { return o.base }

// CourseDir returns the directory of a course: "{code} - {name} ({term})", sanitised, under the base directory.
func (o *Organizer) CourseDir(c models.Course) string {
	return filepath.Join(o.base, Sanitize(fmt.Sprintf("%s - %s (%s)", c.Code, c.Name, c.Term)))
}

// ResolvePath returns a collision-free path for filename inside folderPath of courseDir and reserves it.
//
// folderPath is slash-separated; empty segments are dropped.
func (o *Organizer) ResolvePath(courseDir, folderPath, filename string) (string, error) {
	dir := courseDir
	for _, part := range strings.Split(folderPath, "/") {
		if part == "" {
			continue
		}
		dir = filepath.Join(dir, Sanitize(part))
	}

	name := Sanitize(filename)
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	o.mu.Lock()
	defer o.mu.Unlock()

	candidate := filepath.Join(dir, name)
	for n := 1; ; n++ {
		taken, err := o.taken(candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			break
		}
		candidate = filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, n, ext))
	}

	o.reserved[candidate] = struct{}{}
	return candidate, nil
}

// Reserve marks path as in use without checking the filesystem.
func (o *Organizer) Reserve(path string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.reserved[path] = struct{}{}
}

// Reset forgets every reservation.
func (o *Organizer) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	clear(o.reserved)
}

// Relative returns path relative to the base directory, or path itself when it lies elsewhere.
func (o *Organizer) Relative(path string) string {
	rel, err := filepath.Rel(o.base, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return rel
}

func (o *Organizer) taken(path string) (bool, error) {
	if _, ok := o.reserved[path]; ok {
		return true, nil
	}
	_, err := o.fs.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("failed to stat %s: %w", path, err)
	}
}

// Sanitize makes name safe as a single path component.
//
// Reserved characters become underscores, leading and trailing dots and spaces are trimmed and the result is
// capped at [MaxNameLength] runes keeping the extension. An empty result becomes "unnamed".
func Sanitize(name string) string {
	name = invalidChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, ". ")

	if r := []rune(name); len(r) > MaxNameLength {
		ext := []rune(filepath.Ext(name))
		if len(ext) >= MaxNameLength {
			ext = nil
		}
		stem := r[:len(r)-len(ext)]
		name = string(stem[:MaxNameLength-len(ext)]) + string(ext)
	}

	if name == "" {
		return "unnamed"
	}
	return name
}
