package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// Errors returned while reading a manifest.
var (
	// ErrUnsupportedFormat is returned for unknown file extensions.
	ErrUnsupportedFormat = errors.New("unsupported manifest format")

	// ErrInvalid is wrapped by every validation failure.
	ErrInvalid = errors.New("invalid manifest")
)

// Format is the encoding of a manifest document.
type Format string

// Supported formats.
const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatOf returns the format implied by the extension of path.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, path)
	}
}

// Manifest is a declaration document.
type Manifest struct {
	Types []TypeSpec `yaml:"types" toml:"types"`
}

// TypeSpec declares the events of one Go type.
type TypeSpec struct {
	// Type is the reflect string of the registered type, e.g. "*app.Clock".
	Type string `yaml:"type" toml:"type"`

	Publications  []PublicationSpec  `yaml:"publications,omitempty" toml:"publications,omitempty"`
	Subscriptions []SubscriptionSpec `yaml:"subscriptions,omitempty" toml:"subscriptions,omitempty"`
}

// PublicationSpec binds an event field to a topic.
type PublicationSpec struct {
	Topic string `yaml:"topic" toml:"topic"`

	// Event is the name of an exported broker.Event field.
	Event string `yaml:"event" toml:"event"`

	// Restriction is "unrestricted" (default) or "synchronous-only".
	Restriction string `yaml:"restriction,omitempty" toml:"restriction,omitempty"`

	Matchers []MatcherSpec `yaml:"matchers,omitempty" toml:"matchers,omitempty"`
}

// SubscriptionSpec binds a method to a topic.
type SubscriptionSpec struct {
	Topic string `yaml:"topic" toml:"topic"`

	// Method is the name of a method with the subscriber signature.
	Method string `yaml:"method" toml:"method"`

	// Handler is one of inline (default), background, ui, ui-async, pool.
	Handler string `yaml:"handler,omitempty" toml:"handler,omitempty"`

	Matchers []MatcherSpec `yaml:"matchers,omitempty" toml:"matchers,omitempty"`
}

// MatcherSpec selects a matcher. Exactly one of Name, Script and Field is
// set; Equals and Exists qualify Field. Timeout, a duration such as
// "50ms", bounds a Script evaluation.
type MatcherSpec struct {
	Name    string `yaml:"name,omitempty" toml:"name,omitempty"`
	Script  string `yaml:"script,omitempty" toml:"script,omitempty"`
	Timeout string `yaml:"timeout,omitempty" toml:"timeout,omitempty"`
	Field   string `yaml:"field,omitempty" toml:"field,omitempty"`
	Equals  string `yaml:"equals,omitempty" toml:"equals,omitempty"`
	Exists  bool   `yaml:"exists,omitempty" toml:"exists,omitempty"`
}

// Load reads and validates the manifest at path.
func Load(path string) (*Manifest, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest %s: %w", path, err)
	}
	m, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	return m, nil
}

// Parse decodes and validates a manifest. Unknown keys are rejected.
func Parse(data []byte, format Format) (*Manifest, error) {
	var m Manifest
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&m); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("decoding yaml: %w", err)
		}
	case FormatTOML:
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&m); err != nil {
			return nil, fmt.Errorf("decoding toml: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Marshal encodes the manifest in the given format.
func (m *Manifest) Marshal(format Format) ([]byte, error) {
	switch format {
	case FormatYAML:
		return yaml.Marshal(m)
	case FormatTOML:
		return toml.Marshal(m)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// Validate reports every structural problem of the manifest. It compiles
// matcher scripts but does not resolve types, fields or methods, which
// happens at inspection.
func (m *Manifest) Validate() error {
	var errs error
	invalid := func(where, format string, args ...any) {
		errs = multierr.Append(errs, fmt.Errorf("%w: %s: %s", ErrInvalid, where, fmt.Sprintf(format, args...)))
	}

	seen := make(map[string]bool, len(m.Types))
	for i, ts := range m.Types {
		where := fmt.Sprintf("types[%d]", i)
		if ts.Type == "" {
			invalid(where, "type is required")
		} else if seen[ts.Type] {
			invalid(where, "type %q declared twice", ts.Type)
		}
		seen[ts.Type] = true

		for j, ps := range ts.Publications {
			pw := fmt.Sprintf("%s.publications[%d]", where, j)
			if ps.Topic == "" {
				invalid(pw, "topic is required")
			}
			if ps.Event == "" {
				invalid(pw, "event is required")
			}
			if _, err := restrictionOf(ps.Restriction); err != nil {
				invalid(pw, "%v", err)
			}
			validateMatchers(pw, ps.Matchers, invalid)
		}

		for j, ss := range ts.Subscriptions {
			sw := fmt.Sprintf("%s.subscriptions[%d]", where, j)
			if ss.Topic == "" {
				invalid(sw, "topic is required")
			}
			if ss.Method == "" {
				invalid(sw, "method is required")
			}
			if !knownHandler(ss.Handler) {
				invalid(sw, "unknown handler %q", ss.Handler)
			}
			validateMatchers(sw, ss.Matchers, invalid)
		}
	}
	return errs
}

func validateMatchers(where string, specs []MatcherSpec, invalid func(string, string, ...any)) {
	for k, ms := range specs {
		if _, err := ms.Build(); err != nil {
			invalid(fmt.Sprintf("%s.matchers[%d]", where, k), "%v", err)
		}
	}
}
