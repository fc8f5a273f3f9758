// Package locator parses document locators and normalizes them into the
// repository URIs the backend clones from.
//
// A locator has the form
//
//	scheme://host[:port]/path[?d=<file>][&r=<rev>][&t|&m]
//
// d names the document inside the project, r the revision (a branch name
// or commit id, "master" when absent) and t or m mark the locator as a
// template or module instead of a plain document. A scheme-less string or
// a file:// URL is local and never touches the network.
package locator

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

// DefaultRevision is checked out when the locator does not name one.
const DefaultRevision = "master"

var (
	// ErrEmpty is returned for an empty locator string.
	ErrEmpty = errors.New("empty locator")

	// ErrInvalid is returned when a locator cannot be parsed.
	ErrInvalid = errors.New("invalid locator")
)

// Partition selects the cache namespace and default destination folder.
type Partition int

const (
	// Document is a plain document project.
	Document Partition = iota
	// Template is a project used as a starting point for new documents.
	Template
	// Module is an installable library project.
	Module
)

// Partitions lists every partition in order.
var Partitions = []Partition{Document, Template, Module}

var partitionNames = [...]string{"document", "template", "module"}

func (p Partition) String() string {
	if int(p) >= 0 && int(p) < len(partitionNames) {
		return partitionNames[p]
	}
	return fmt.Sprintf("partition(%d)", int(p))
}

// ParsePartition parses a partition name.
func ParsePartition(s string) (Partition, error) {
	for i, name := range partitionNames {
		if strings.EqualFold(s, name) {
			return Partition(i), nil
		}
	}
	return Document, fmt.Errorf("unknown partition %q", s)
}

// Options control how remote locators are normalized.
type Options struct {
	// DefaultHost is used when a locator omits the host.
	DefaultHost string

	// DefaultPath is prepended to the path of a locator that omits the host.
	DefaultPath string

	// Schemes maps application schemes onto backend transport schemes.
	Schemes map[string]string
}

// DefaultSchemes maps the application schemes onto git transports.
func DefaultSchemes() map[string]string {
	return map[string]string{
		"tao":  "git",
		"taos": "ssh",
	}
}

// DefaultOptions returns options with the default scheme table.
func DefaultOptions() Options {
	return Options{Schemes: DefaultSchemes()}
}

// Locator is a parsed document locator.
type Locator struct {
	// Raw is the string the locator was parsed from.
	Raw string

	// Document is the file inside the project, from the d parameter.
	Document string

	// Revision is the branch or commit to check out, from the r parameter.
	Revision string

	// Partition is Template for t, Module for m and Document otherwise.
	Partition Partition

	url   *url.URL
	local string
}

// scpLike matches the user@host:path shorthand ssh remotes use.
var scpLike = regexp.MustCompile(`^(?:([\w.+-]+)@)?([\w.-]+\.[\w.-]+|localhost):([^/].*)$`)

// Parse parses raw. A string naming an existing path is local without
// further interpretation.
func Parse(raw string) (*Locator, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrEmpty
	}

	if _, err := os.Stat(raw); err == nil {
		return &Locator{Raw: raw, Revision: DefaultRevision, local: filepath.Clean(raw)}, nil
	}

	text := raw
	if !strings.Contains(raw, "://") {
		if m := scpLike.FindStringSubmatch(raw); m != nil {
			text = "ssh://" + m[2] + "/" + m[3]
			if m[1] != "" {
				text = "ssh://" + m[1] + "@" + m[2] + "/" + m[3]
			}
		}
	}

	u, err := url.Parse(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	l := &Locator{Raw: raw}
	l.applyQuery(u.Query())

	switch {
	case u.Scheme == "" || len(u.Scheme) == 1:
		// No scheme, or a drive letter.
		local := raw
		if i := strings.IndexByte(local, '?'); i >= 0 && len(u.Scheme) != 1 {
			local = local[:i]
		}
		l.local = filepath.Clean(local)
	case strings.EqualFold(u.Scheme, "file"):
		l.local = filepath.Clean(filepath.FromSlash(u.Path))
	default:
		u.Scheme = strings.ToLower(u.Scheme)
		l.url = u
	}

	if l.local == "." {
		return nil, fmt.Errorf("%w: %q has no path", ErrInvalid, raw)
	}
	return l, nil
}

func (l *Locator) applyQuery(q url.Values) {
	l.Document = q.Get("d")
	l.Revision = q.Get("r")
	if l.Revision == "" {
		l.Revision = DefaultRevision
	}
	switch {
	case q.Has("m"):
		l.Partition = Module
	case q.Has("t"):
		l.Partition = Template
	}
}

// IsLocal reports whether the locator names a path on this machine.
func (l *Locator) IsLocal() bool {
	return l.url == nil
}

// LocalPath returns the project path of a local locator, or "".
func (l *Locator) LocalPath() string {
	return l.local
}

// DocumentPath joins the document name onto project.
func (l *Locator) DocumentPath(project string) string {
	if l.Document == "" {
		return project
	}
	return filepath.Join(project, filepath.FromSlash(l.Document))
}

// RepoURI returns the URI the backend clones from: the query is stripped,
// the scheme translated and a missing host replaced by the default host
// and path. Local locators return their path.
func (l *Locator) RepoURI(opts Options) string {
	if l.url == nil {
		return l.local
	}

	u := *l.url
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	u.RawFragment = ""

	if transport, ok := opts.Schemes[u.Scheme]; ok {
		u.Scheme = transport
	}

	p := u.Path
	if u.Opaque != "" {
		p = u.Opaque
		u.Opaque = ""
	}
	if u.Host == "" && opts.DefaultHost != "" {
		u.Host = opts.DefaultHost
		p = path.Join("/", opts.DefaultPath, p)
	}
	if p != "" && !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	u.Path = strings.TrimRight(p, "/")
	u.RawPath = ""
	u.Host = strings.ToLower(u.Host)

	return u.String()
}

// CacheKey is the percent-encoded RepoURI used as the cache key.
func (l *Locator) CacheKey(opts Options) string {
	return url.QueryEscape(l.RepoURI(opts))
}

// ProjectName is the last path segment of the project without a .git
// suffix, used as the default clone folder name.
func (l *Locator) ProjectName() string {
	var p string
	if l.url == nil {
		p = filepath.ToSlash(l.local)
	} else if l.url.Opaque != "" {
		p = l.url.Opaque
	} else {
		p = l.url.Path
	}

	name := path.Base(strings.TrimRight(p, "/"))
	name = strings.TrimSuffix(name, ".git")
	if name == "" || name == "." || name == "/" {
		if l.url != nil && l.url.Hostname() != "" {
			return l.url.Hostname()
		}
		return "project"
	}
	return name
}

func (l *Locator) String() string {
	return l.Raw
}

var commitID = regexp.MustCompile(`^[0-9a-fA-F]{7,40}$`)

// IsCommitID reports whether rev looks like an abbreviated or full commit
// id rather than a branch name.
func IsCommitID(rev string) bool {
	return commitID.MatchString(rev)
}
