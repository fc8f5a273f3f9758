package config

import (
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/dshills/docsync/internal/locator"
)

// Section accessor methods return snapshot structs. Mutating the returned
// struct does not modify the underlying configuration.

// GitConfig holds the backend settings.
type GitConfig struct {
	// Executable is the git binary, looked up on PATH when relative.
	Executable string

	// MinVersion is the oldest backend version accepted.
	MinVersion string

	// AskPass is the credential helper program. Setting it routes every
	// command through the askpass launcher.
	AskPass string

	// ExecPath is the backend's helper directory.
	ExecPath string

	AuthorName  string
	AuthorEmail string
}

// ProcessConfig holds subprocess settings.
type ProcessConfig struct {
	// MaxOutput is the number of bytes retained per output stream.
	MaxOutput int
}

// RepositoryConfig holds working copy settings.
type RepositoryConfig struct {
	// PollInterval is how often branch watchers poll HEAD. Zero disables them.
	PollInterval time.Duration

	// PullSource is the remote Pull integrates from.
	PullSource string

	// ConflictPolicy is "manual", "ours" or "theirs".
	ConflictPolicy string
}

// LocatorConfig holds locator normalization settings.
type LocatorConfig struct {
	DefaultHost string
	DefaultPath string

	// Schemes maps application schemes onto transport schemes.
	Schemes map[string]string
}

// Options converts the settings for the locator package.
func (l LocatorConfig) Options() locator.Options {
	return locator.Options{
		DefaultHost: l.DefaultHost,
		DefaultPath: l.DefaultPath,
		Schemes:     maps.Clone(l.Schemes),
	}
}

// FoldersConfig holds the parent folders of new clones.
type FoldersConfig struct {
	Documents string
	Templates string
	Modules   string

	// Shallow lists the partitions cloned without history.
	Shallow []string
}

// ByPartition returns the folders keyed by partition, omitting empty ones.
func (f FoldersConfig) ByPartition() map[locator.Partition]string {
	out := make(map[locator.Partition]string, 3)
	for p, dir := range map[locator.Partition]string{
		locator.Document: f.Documents,
		locator.Template: f.Templates,
		locator.Module:   f.Modules,
	} {
		if dir != "" {
			out[p] = dir
		}
	}
	return out
}

// CacheConfig holds locator cache settings.
type CacheConfig struct {
	// Path is the SQLite file. An empty path keeps the cache in memory.
	Path string

	// CleanupOnFailure lists the partitions whose failed clones are removed.
	CleanupOnFailure []string
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is a zerolog level name.
	Level string

	// Format is "console" or "json".
	Format string
}

// Git returns the backend settings.
func (c *Config) Git() GitConfig {
	return GitConfig{
		Executable:  c.getStringOr("git.executable", "git"),
		MinVersion:  c.getStringOr("git.minVersion", "2.20.0"),
		AskPass:     c.getStringOr("git.askPass", ""),
		ExecPath:    c.getStringOr("git.execPath", ""),
		AuthorName:  c.getStringOr("git.authorName", ""),
		AuthorEmail: c.getStringOr("git.authorEmail", ""),
	}
}

// Process returns the subprocess settings.
func (c *Config) Process() ProcessConfig {
	return ProcessConfig{
		MaxOutput: c.getIntOr("process.maxOutput", 1<<20),
	}
}

// Repository returns the working copy settings.
func (c *Config) Repository() RepositoryConfig {
	return RepositoryConfig{
		PollInterval:   c.getDurationOr("repository.pollInterval", 2*time.Second),
		PullSource:     c.getStringOr("repository.pullSource", ""),
		ConflictPolicy: c.getStringOr("repository.conflictPolicy", "manual"),
	}
}

// Locator returns the locator normalization settings.
func (c *Config) Locator() LocatorConfig {
	return LocatorConfig{
		DefaultHost: c.getStringOr("locator.defaultHost", ""),
		DefaultPath: c.getStringOr("locator.defaultPath", ""),
		Schemes:     c.getStringMapOr("locator.schemes", locator.DefaultSchemes()),
	}
}

// Folders returns the clone destination settings.
func (c *Config) Folders() FoldersConfig {
	return FoldersConfig{
		Documents: c.getStringOr("folders.documents", ""),
		Templates: c.getStringOr("folders.templates", ""),
		Modules:   c.getStringOr("folders.modules", ""),
		Shallow:   c.getStringSliceOr("folders.shallow", nil),
	}
}

// Cache returns the locator cache settings.
func (c *Config) Cache() CacheConfig {
	return CacheConfig{
		Path:             c.getStringOr("cache.path", ""),
		CleanupOnFailure: c.getStringSliceOr("cache.cleanupOnFailure", []string{"module"}),
	}
}

// Logging returns the logging settings.
func (c *Config) Logging() LoggingConfig {
	return LoggingConfig{
		Level:  c.getStringOr("logging.level", "info"),
		Format: c.getStringOr("logging.format", "console"),
	}
}

// PartitionSet parses a list of partition names. The result is never nil,
// so an empty list selects no partition.
func PartitionSet(names []string) (map[locator.Partition]bool, error) {
	set := make(map[locator.Partition]bool, len(names))
	for _, name := range names {
		p, err := locator.ParsePartition(name)
		if err != nil {
			return nil, err
		}
		set[p] = true
	}
	return set, nil
}

// Validate checks the settings that have a fixed set of values. Type
// errors recorded by the accessors are reported too.
func (c *Config) Validate() error {
	var errs []error

	if policy := c.Repository().ConflictPolicy; !oneOf(policy, "manual", "ours", "theirs") {
		errs = append(errs, &ValidationError{Path: "repository.conflictPolicy", Message: "must be manual, ours or theirs", Value: policy})
	}
	if format := c.Logging().Format; !oneOf(format, "console", "json") {
		errs = append(errs, &ValidationError{Path: "logging.format", Message: "must be console or json", Value: format})
	}
	if n := c.Process().MaxOutput; n <= 0 {
		errs = append(errs, &ValidationError{Path: "process.maxOutput", Message: "must be positive", Value: n})
	}
	if d := c.Repository().PollInterval; d < 0 {
		errs = append(errs, &ValidationError{Path: "repository.pollInterval", Message: "must not be negative", Value: d})
	}
	if _, err := PartitionSet(c.Cache().CleanupOnFailure); err != nil {
		errs = append(errs, &ValidationError{Path: "cache.cleanupOnFailure", Message: err.Error(), Value: c.Cache().CleanupOnFailure})
	}
	if _, err := PartitionSet(c.Folders().Shallow); err != nil {
		errs = append(errs, &ValidationError{Path: "folders.shallow", Message: err.Error(), Value: c.Folders().Shallow})
	}
	if c.Git().Executable == "" {
		errs = append(errs, &ValidationError{Path: "git.executable", Message: "must not be empty", Value: ""})
	}

	for path, err := range c.ConfigErrors() {
		errs = append(errs, fmt.Errorf("%s: %w", path, err))
	}
	return errors.Join(errs...)
}

func oneOf(s string, allowed ...string) bool {
	for _, a := range allowed {
		if strings.EqualFold(s, a) {
			return true
		}
	}
	return false
}

// The getXOr helpers only return the default silently for
// ErrSettingNotFound. Type errors are recorded for ConfigErrors.

func (c *Config) getStringOr(path string, defaultValue string) string {
	v, err := c.GetString(path)
	if err != nil {
		if !errors.Is(err, ErrSettingNotFound) {
			c.recordConfigError(path, err)
		}
		return defaultValue
	}
	return v
}

func (c *Config) getIntOr(path string, defaultValue int) int {
	v, err := c.GetInt(path)
	if err != nil {
		if !errors.Is(err, ErrSettingNotFound) {
			c.recordConfigError(path, err)
		}
		return defaultValue
	}
	return v
}

func (c *Config) getDurationOr(path string, defaultValue time.Duration) time.Duration {
	v, err := c.GetDuration(path)
	if err != nil {
		if !errors.Is(err, ErrSettingNotFound) {
			c.recordConfigError(path, err)
		}
		return defaultValue
	}
	return v
}

func (c *Config) getStringSliceOr(path string, defaultValue []string) []string {
	v, err := c.GetStringSlice(path)
	if err != nil {
		if !errors.Is(err, ErrSettingNotFound) {
			c.recordConfigError(path, err)
		}
		return append([]string(nil), defaultValue...)
	}
	return v
}

func (c *Config) getStringMapOr(path string, defaultValue map[string]string) map[string]string {
	v, err := c.GetStringMap(path)
	if err != nil {
		if !errors.Is(err, ErrSettingNotFound) {
			c.recordConfigError(path, err)
		}
		return maps.Clone(defaultValue)
	}
	return v
}

// recordConfigError keeps the first error seen for path.
func (c *Config) recordConfigError(path string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.configErrors == nil {
		c.configErrors = make(map[string]error)
	}
	if _, exists := c.configErrors[path]; !exists {
		c.configErrors[path] = err
	}
}

// ConfigErrors returns the type errors met by the section accessors.
func (c *Config) ConfigErrors() map[string]error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.configErrors == nil {
		return nil
	}
	return maps.Clone(c.configErrors)
}
