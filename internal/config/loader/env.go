package loader

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultEnvPrefix is the prefix of the broker environment variables.
const DefaultEnvPrefix = "EVENTBROKER_"

// EnvLoader overlays variables named PREFIX_SECTION_SETTING. The
// setting words are joined in camel case, so EVENTBROKER_POOL_QUEUE_SIZE
// sets pool.queueSize. Aliases map other names to a path.
type EnvLoader struct {
	prefix  string
	aliases map[string]string // name without prefix -> config path
}

// EnvOption configures an EnvLoader.
type EnvOption func(*EnvLoader)

// WithAlias maps the variable prefix+name to path.
func WithAlias(name, path string) EnvOption {
	return func(l *EnvLoader) {
		l.aliases[name] = path
	}
}

// NewEnvLoader creates a loader for variables starting with prefix,
// which includes the trailing underscore.
func NewEnvLoader(prefix string, opts ...EnvOption) *EnvLoader {
	l := &EnvLoader{
		prefix: prefix,
		aliases: map[string]string{
			"LOG_LEVEL":        "logging.level",
			"LOG_DEVELOPMENT":  "logging.development",
			"MANIFEST":         "manifest.path",
			"MANIFEST_WATCH":   "manifest.watch",
			"WORKERS":          "pool.workers",
			"SHUTDOWN_TIMEOUT": "shutdownTimeout",
		},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load implements Source. A variable set to the empty string is kept.
func (l *EnvLoader) Load() (map[string]any, error) {
	out := make(map[string]any)
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, l.prefix) {
			continue
		}
		key := strings.TrimPrefix(name, l.prefix)
		if key == "" {
			continue
		}
		path, aliased := l.aliases[key]
		if !aliased {
			path = keyToPath(key)
		}
		setByPath(out, strings.Split(path, "."), parseValue(value))
	}
	return out, nil
}

// keyToPath turns POOL_QUEUE_SIZE into pool.queueSize.
func keyToPath(key string) string {
	section, rest, _ := strings.Cut(strings.ToLower(key), "_")
	if rest == "" {
		return section
	}
	var b strings.Builder
	for i, word := range strings.Split(rest, "_") {
		if word == "" {
			continue
		}
		if i > 0 && b.Len() > 0 {
			word = strings.ToUpper(word[:1]) + word[1:]
		}
		b.WriteString(word)
	}
	return section + "." + b.String()
}

// parseValue picks the most specific type for an environment value.
// Only words are booleans, so "1" stays a number. Durations come back as
// normalized strings for the YAML decoder.
func parseValue(s string) any {
	switch strings.ToLower(s) {
	case "":
		return s
	case "true", "yes", "on":
		return true
	case "false", "no", "off":
		return false
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && strings.Contains(s, ".") {
		return f
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d.String()
	}
	if s[0] == '[' || s[0] == '{' {
		var v any
		if json.Unmarshal([]byte(s), &v) == nil {
			return v
		}
	}
	return s
}

func setByPath(m map[string]any, keys []string, value any) {
	if len(keys) == 1 {
		m[keys[0]] = value
		return
	}
	child, ok := m[keys[0]].(map[string]any)
	if !ok {
		child = make(map[string]any)
		m[keys[0]] = child
	}
	setByPath(child, keys[1:], value)
}
