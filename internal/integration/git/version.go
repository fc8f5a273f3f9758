package git

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/dshills/docsync/internal/integration/process"
)

// Version is a git release number.
type Version struct {
	Major, Minor, Patch int
}

var versionPattern = regexp.MustCompile(`(\d+)\.(\d+)(?:\.(\d+))?`)

// ParseVersion extracts the first version number from s, e.g. from
// "git version 2.39.2 (Apple Git-143)".
func ParseVersion(s string) (Version, error) {
	m := versionPattern.FindStringSubmatch(s)
	if m == nil {
		return Version{}, fmt.Errorf("no version in %q", s)
	}
	var v Version
	v.Major, _ = strconv.Atoi(m[1])
	v.Minor, _ = strconv.Atoi(m[2])
	if m[3] != "" {
		v.Patch, _ = strconv.Atoi(m[3])
	}
	return v, nil
}

// Less reports whether v is older than o.
func (v Version) Less(o Version) bool {
	if v.Major != o.Major {
		return v.Major < o.Major
	}
	if v.Minor != o.Minor {
		return v.Minor < o.Minor
	}
	return v.Patch < o.Patch
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// CheckBackend runs "executable --version" and compares the result against
// min. It fails with ErrBackendUnavailable when git cannot be run and with
// ErrBackendTooOld when it is older than min. An empty min accepts any version.
func CheckBackend(ctx context.Context, launcher process.Launcher, executable, min string) (Version, error) {
	if executable == "" {
		executable = "git"
	}
	if launcher == nil {
		launcher = process.PlainLauncher{}
	}

	p := process.New(process.Command{Name: executable, Args: []string{"--version"}}, process.WithLauncher(launcher))
	res, err := p.Run(ctx)
	if err != nil {
		return Version{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	v, err := ParseVersion(res.Stdout)
	if err != nil {
		return Version{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	if min == "" {
		return v, nil
	}
	want, err := ParseVersion(min)
	if err != nil {
		return v, fmt.Errorf("minimum version: %w", err)
	}
	if v.Less(want) {
		return v, fmt.Errorf("%w: have %s, need %s", ErrBackendTooOld, v, want)
	}
	return v, nil
}
