// Package config loads docsync settings.
//
// Settings are merged from three sources, later ones winning:
//
//  1. built-in defaults
//  2. the TOML file (by default $XDG_CONFIG_HOME/docsync/config.toml)
//  3. DOCSYNC_* environment variables
//
// Values are addressed by dot-separated paths such as "git.executable".
// The typed section accessors (Git, Repository, Folders, ...) never fail:
// a value of the wrong type falls back to the default and is recorded in
// ConfigErrors. Validate reports values that parse but make no sense.
//
//	cfg := config.New(config.WithFile(path))
//	if err := cfg.Load(ctx); err != nil {
//	    return err
//	}
//	folders := cfg.Folders()
package config
