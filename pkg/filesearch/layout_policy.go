package filesearch

import (
	"strings"

	"github.com/materials-commons/dsstage/pkg/location"
)

// SearchDir is one directory FindDataFile looks in: Root/DatasetFolder/Subdir.
// DatasetFolder is empty for directories that sit directly below the root.
type SearchDir struct {
	Root          location.Location
	DatasetFolder string
	Subdir        string
}

func (d SearchDir) Location() location.Location {
	if d.Root.IsArchive() {
		// Archive roots already name the dataset.
		return d.Root.Join(d.Subdir)
	}

	return d.Root.Join(d.DatasetFolder, d.Subdir)
}

// LayoutPolicy adds tool specific places to look for a file. Expand is called
// for every search directory and returns extra directories to check after it.
type LayoutPolicy interface {
	Expand(toolName string, dir SearchDir) []SearchDir
}

// StagingDirectoryPolicy handles tools whose input comes from a staging
// directory written directly below the storage root instead of below the
// dataset directory.
type StagingDirectoryPolicy struct {
	ToolPrefix string
	Marker     string
}

func (p StagingDirectoryPolicy) Expand(toolName string, dir SearchDir) []SearchDir {
	if !hasPrefixFold(toolName, p.ToolPrefix) || dir.Root.IsArchive() || dir.DatasetFolder == "" {
		return nil
	}

	if !strings.Contains(strings.ToLower(dir.Subdir), strings.ToLower(p.Marker)) {
		return nil
	}

	return []SearchDir{{Root: dir.Root, Subdir: dir.Subdir}}
}

// TxtSubdirectoryPolicy handles tools that write their results into a txt
// directory below the results directory.
type TxtSubdirectoryPolicy struct {
	ToolPrefix string
}

func (p TxtSubdirectoryPolicy) Expand(toolName string, dir SearchDir) []SearchDir {
	if !hasPrefixFold(toolName, p.ToolPrefix) || dir.Subdir == "" {
		return nil
	}

	txt := dir
	txt.Subdir = dir.Subdir + "/txt"
	return []SearchDir{txt}
}

// DefaultLayoutPolicies are the policies a FileSearch uses unless told
// otherwise.
func DefaultLayoutPolicies() []LayoutPolicy {
	return []LayoutPolicy{
		StagingDirectoryPolicy{ToolPrefix: "MaxQuant", Marker: "_Staging"},
		TxtSubdirectoryPolicy{ToolPrefix: "MaxQuant"},
	}
}

func hasPrefixFold(s, prefix string) bool {
	return prefix != "" && len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
