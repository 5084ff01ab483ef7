package loader

import (
	"errors"
	"io"

	"github.com/pelletier/go-toml/v2"
)

// TOMLLoader reads a TOML configuration file.
type TOMLLoader struct{ fileSource }

// NewTOMLLoader reads path from Disk.
func NewTOMLLoader(path string) *TOMLLoader {
	return NewTOMLLoaderWithFS(Disk{}, path)
}

// NewTOMLLoaderWithFS reads path from fsys.
func NewTOMLLoaderWithFS(fsys FileSystem, path string) *TOMLLoader {
	return &TOMLLoader{fileSource{fs: fsys, path: path, parse: parseTOML}}
}

// LoadFromReader parses everything r yields. It needs no file system, so
// the zero TOMLLoader works.
func (l *TOMLLoader) LoadFromReader(r io.Reader) (map[string]any, error) {
	data, err := readAll(r)
	if err != nil {
		return nil, err
	}
	return parseTOML("<reader>", data)
}

// parseTOML decodes a TOML document. go-toml reports the exact position
// of decode errors.
func parseTOML(source string, data []byte) (map[string]any, error) {
	var out map[string]any
	err := toml.Unmarshal(data, &out)
	if err == nil {
		return out, nil
	}
	perr := &ParseError{Path: source, Message: err.Error(), Err: err}
	var derr *toml.DecodeError
	if errors.As(err, &derr) {
		perr.Line, perr.Column = derr.Position()
	}
	return nil, perr
}
