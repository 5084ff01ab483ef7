package loader

import (
	"io"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"
)

// YAMLLoader reads a YAML configuration file.
type YAMLLoader struct{ fileSource }

// NewYAMLLoader reads path from Disk.
func NewYAMLLoader(path string) *YAMLLoader {
	return NewYAMLLoaderWithFS(Disk{}, path)
}

// NewYAMLLoaderWithFS reads path from fsys.
func NewYAMLLoaderWithFS(fsys FileSystem, path string) *YAMLLoader {
	return &YAMLLoader{fileSource{fs: fsys, path: path, parse: parseYAML}}
}

// LoadFromReader parses everything r yields. It needs no file system, so
// the zero YAMLLoader works.
func (l *YAMLLoader) LoadFromReader(r io.Reader) (map[string]any, error) {
	data, err := readAll(r)
	if err != nil {
		return nil, err
	}
	return parseYAML("<reader>", data)
}

// yamlLine finds the line yaml.v3 embeds in its error messages.
var yamlLine = regexp.MustCompile(`line (\d+)`)

func parseYAML(source string, data []byte) (map[string]any, error) {
	var out map[string]any
	err := yaml.Unmarshal(data, &out)
	if err == nil {
		return out, nil
	}
	perr := &ParseError{Path: source, Message: err.Error(), Err: err}
	if m := yamlLine.FindStringSubmatch(err.Error()); m != nil {
		perr.Line, _ = strconv.Atoi(m[1])
	}
	return nil, perr
}
