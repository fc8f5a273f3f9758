package loader

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
)

// DefaultEnvPrefix prefixes every docsync environment variable.
const DefaultEnvPrefix = "DOCSYNC_"

// EnvLoader reads configuration from environment variables.
//
// A variable listed in the mapping sets the mapped path. Any other
// variable carrying the prefix is converted by name:
// DOCSYNC_GIT_MIN_VERSION sets git.minVersion.
type EnvLoader struct {
	prefix  string
	mapping map[string]string
	environ func() []string
}

// NewEnvLoader creates a loader with the default short names.
func NewEnvLoader(prefix string) *EnvLoader {
	return NewEnvLoaderWithMapping(prefix, defaultEnvMapping())
}

// NewEnvLoaderWithMapping creates a loader with its own short names.
func NewEnvLoaderWithMapping(prefix string, mapping map[string]string) *EnvLoader {
	return &EnvLoader{prefix: prefix, mapping: mapping, environ: os.Environ}
}

func defaultEnvMapping() map[string]string {
	return map[string]string{
		"DOCSYNC_GIT":        "git.executable",
		"DOCSYNC_ASKPASS":    "git.askPass",
		"DOCSYNC_LOG_LEVEL":  "logging.level",
		"DOCSYNC_LOG_FORMAT": "logging.format",
		"DOCSYNC_CACHE":      "cache.path",
	}
}

// AddMapping maps envVar onto configPath.
func (l *EnvLoader) AddMapping(envVar, configPath string) {
	if l.mapping == nil {
		l.mapping = make(map[string]string)
	}
	l.mapping[envVar] = configPath
}

// Load returns the settings found in the environment, or nil when there
// are none. Empty values count as set.
func (l *EnvLoader) Load() (map[string]any, error) {
	var config map[string]any
	for _, kv := range l.environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, l.prefix) {
			continue
		}
		path, mapped := l.mapping[name]
		if !mapped {
			path = l.envToPath(name)
		}
		if path == "" {
			continue
		}
		if config == nil {
			config = make(map[string]any)
		}
		setByPath(config, path, parseValue(value))
	}
	return config, nil
}

// envToPath converts DOCSYNC_REPOSITORY_POLL_INTERVAL to
// repository.pollInterval.
func (l *EnvLoader) envToPath(env string) string {
	name := strings.TrimPrefix(env, l.prefix)
	parts := strings.Split(strings.ToLower(name), "_")
	if len(parts) == 0 || parts[0] == "" {
		return ""
	}
	if len(parts) == 1 {
		return parts[0]
	}

	var setting strings.Builder
	setting.WriteString(parts[1])
	for _, part := range parts[2:] {
		if part == "" {
			continue
		}
		setting.WriteString(strings.ToUpper(part[:1]))
		setting.WriteString(part[1:])
	}
	return parts[0] + "." + setting.String()
}

// parseValue guesses the type of an environment value. Durations stay
// strings; the typed getters parse them.
func parseValue(s string) any {
	switch strings.ToLower(s) {
	case "true", "yes", "on":
		return true
	case "false", "no", "off":
		return false
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if strings.HasPrefix(s, "[") || strings.HasPrefix(s, "{") {
		var v any
		if err := json.Unmarshal([]byte(s), &v); err == nil {
			return v
		}
	}
	return s
}

func setByPath(data map[string]any, path string, value any) {
	parts := strings.Split(path, ".")
	current := data
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			next = make(map[string]any)
			current[part] = next
		}
		current = next
	}
	current[parts[len(parts)-1]] = value
}
