// Package loader reads broker configuration sources into generic maps.
//
// File sources understand YAML and TOML; EnvLoader overlays environment
// variables. The maps are combined with Merge and decoded by the config
// package.
package loader

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFormat is returned for files with an unknown extension.
var ErrUnsupportedFormat = errors.New("unsupported config format")

// Source yields one configuration layer. A source that does not exist
// yields a nil map and no error.
type Source interface {
	Load() (map[string]any, error)
}

// File is a Source backed by a file that can also be read from another
// path.
type File interface {
	Source
	LoadFrom(path string) (map[string]any, error)
}

// FileSystem is the file access the file sources need.
type FileSystem interface {
	ReadFile(path string) ([]byte, error)
}

// Disk reads files from the operating system.
type Disk struct{}

// ReadFile implements FileSystem.
func (Disk) ReadFile(path string) ([]byte, error) { return os.ReadFile(path) }

// ForPath picks the file source from the extension of path. A nil fsys
// reads from Disk.
func ForPath(fsys FileSystem, path string) (File, error) {
	if fsys == nil {
		fsys = Disk{}
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return NewYAMLLoaderWithFS(fsys, path), nil
	case ".toml":
		return NewTOMLLoaderWithFS(fsys, path), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, path)
	}
}

// ParseError is a syntax error in a configuration file. Line and Column
// are 1-based and zero when unknown.
type ParseError struct {
	Path    string
	Line    int
	Column  int
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	pos := e.Path
	switch {
	case e.Line > 0 && e.Column > 0:
		pos = fmt.Sprintf("%s:%d:%d", e.Path, e.Line, e.Column)
	case e.Line > 0:
		pos = fmt.Sprintf("%s:%d", e.Path, e.Line)
	}
	return pos + ": " + e.Message
}

func (e *ParseError) Unwrap() error { return e.Err }

// Merge combines layers into a new map, later layers winning. Nested maps
// merge key by key; any other value replaces what was there. The layers
// are not modified.
func Merge(layers ...map[string]any) map[string]any {
	out := make(map[string]any)
	for _, layer := range layers {
		for key, val := range layer {
			next, nextIsMap := val.(map[string]any)
			prev, prevIsMap := out[key].(map[string]any)
			switch {
			case nextIsMap && prevIsMap:
				out[key] = Merge(prev, next)
			case nextIsMap:
				out[key] = Merge(next)
			default:
				out[key] = val
			}
		}
	}
	return out
}

// fileSource reads one file and hands its bytes to parse.
type fileSource struct {
	fs    FileSystem
	path  string
	parse func(source string, data []byte) (map[string]any, error)
}

// Load implements Source.
func (f *fileSource) Load() (map[string]any, error) {
	return f.LoadFrom(f.path)
}

// LoadFrom reads path instead of the configured file.
func (f *fileSource) LoadFrom(path string) (map[string]any, error) {
	data, err := readFile(f.fs, path)
	if err != nil || data == nil {
		return nil, err
	}
	return f.parse(path, data)
}

// readAll drains r for the LoadFromReader methods.
func readAll(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return data, nil
}

// readFile returns a nil slice for a missing file.
func readFile(fsys FileSystem, path string) ([]byte, error) {
	data, err := fsys.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return data, nil
}
