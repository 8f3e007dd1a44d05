// Package location describes where a dataset file or directory lives. A
// Location is either a path on a local or networked filesystem, or a logical
// path inside the remote archive. Downstream code switches on the kind rather
// than inspecting path prefixes.
package location

import (
	"path"
	"path/filepath"
	"strings"
)

// ArchiveSentinel is the rendered prefix for archive locations. It is only used
// when a Location has to be shown as a string (logs, status messages) or when
// parsing a string that came from an older component.
const ArchiveSentinel = `\\MyEMSL`

type Kind int

const (
	KindNone Kind = iota
	KindLocal
	KindArchive
)

func (k Kind) String() string {
	switch k {
	case KindLocal:
		return "local"
	case KindArchive:
		return "archive"
	default:
		return "none"
	}
}

type Location struct {
	kind    Kind
	path    string
	dataset string
	subdir  string
}

// Local returns a filesystem location.
func Local(p string) Location {
	return Location{kind: KindLocal, path: p}
}

// Archive returns a location inside the remote archive for the given dataset.
// subdir is relative to the dataset and may be empty.
func Archive(dataset, subdir string) Location {
	return Location{kind: KindArchive, dataset: dataset, subdir: cleanSubdir(subdir)}
}

// Parse converts a string produced by Location.String back into a Location.
// Anything that doesn't start with the archive sentinel is a local path.
func Parse(s string) Location {
	if s == "" {
		return Location{}
	}

	if !IsArchivePath(s) {
		return Local(s)
	}

	rest := strings.TrimPrefix(s[len(ArchiveSentinel):], `\`)
	rest = strings.TrimPrefix(rest, "/")
	rest = strings.ReplaceAll(rest, `\`, "/")
	if rest == "" {
		return Archive("", "")
	}

	parts := strings.SplitN(rest, "/", 2)
	if len(parts) == 1 {
		return Archive(parts[0], "")
	}

	return Archive(parts[0], parts[1])
}

// IsArchivePath reports whether s is a rendered archive location.
func IsArchivePath(s string) bool {
	return len(s) >= len(ArchiveSentinel) && strings.EqualFold(s[:len(ArchiveSentinel)], ArchiveSentinel)
}

func (l Location) Kind() Kind { return l.kind }

func (l Location) IsZero() bool { return l.kind == KindNone }

func (l Location) IsLocal() bool { return l.kind == KindLocal }

func (l Location) IsArchive() bool { return l.kind == KindArchive }

// Path is the filesystem path for local locations and the empty string
// otherwise.
func (l Location) Path() string {
	if l.kind != KindLocal {
		return ""
	}

	return l.path
}

func (l Location) Dataset() string { return l.dataset }

func (l Location) Subdir() string { return l.subdir }

// Join appends path elements. For local locations this is filepath.Join, for
// archive locations the elements extend the subdirectory.
func (l Location) Join(elem ...string) Location {
	switch l.kind {
	case KindLocal:
		return Local(filepath.Join(append([]string{l.path}, elem...)...))
	case KindArchive:
		parts := append([]string{l.subdir}, elem...)
		return Archive(l.dataset, path.Join(parts...))
	default:
		return l
	}
}

// Base returns the last element of the location.
func (l Location) Base() string {
	switch l.kind {
	case KindLocal:
		return filepath.Base(l.path)
	case KindArchive:
		if l.subdir != "" {
			return path.Base(l.subdir)
		}
		return l.dataset
	default:
		return ""
	}
}

func (l Location) String() string {
	switch l.kind {
	case KindLocal:
		return l.path
	case KindArchive:
		s := ArchiveSentinel
		if l.dataset != "" {
			s += `\` + l.dataset
		}
		if l.subdir != "" {
			s += `\` + strings.ReplaceAll(l.subdir, "/", `\`)
		}
		return s
	default:
		return ""
	}
}

// Equal compares two locations. Local paths are compared after cleaning.
func (l Location) Equal(other Location) bool {
	if l.kind != other.kind {
		return false
	}

	switch l.kind {
	case KindLocal:
		return filepath.Clean(l.path) == filepath.Clean(other.path)
	case KindArchive:
		return strings.EqualFold(l.dataset, other.dataset) && strings.EqualFold(l.subdir, other.subdir)
	default:
		return true
	}
}

func cleanSubdir(subdir string) string {
	subdir = strings.ReplaceAll(subdir, `\`, "/")
	subdir = strings.Trim(subdir, "/")
	if subdir == "" {
		return ""
	}

	return path.Clean(subdir)
}
