// Package archive talks to the remote content-addressed dataset archive. Files
// are found through a metadata query and fetched later in batches through a
// DownloadQueue, since the archive has a high per-request overhead.
package archive

import (
	"errors"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

var ErrNotFound = errors.New("not found in archive")

// FileDescriptor describes one object stored in the archive.
type FileDescriptor struct {
	FileID        int64     `json:"file_id"`
	FileName      string    `json:"file_name"`
	RelativePath  string    `json:"relative_path"`
	DatasetName   string    `json:"dataset_name"`
	TransactionID int64     `json:"transaction_id"`
	IsDirectory   bool      `json:"is_directory"`
	Size          int64     `json:"size"`
	SHA1          string    `json:"sha1"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// PathWithinDataset is the file's path relative to the dataset directory,
// using forward slashes.
func (fd FileDescriptor) PathWithinDataset() string {
	if fd.RelativePath == "" {
		return fd.FileName
	}

	return path.Join(fd.RelativePath, fd.FileName)
}

// Client is the metadata query and download API of the archive.
type Client interface {
	// FindFiles returns the files in datasetName whose name matches
	// namePattern. subdirPattern restricts the match to files under a
	// matching subdirectory; empty means the top level of the dataset. With
	// recurse set, files anywhere below the matching directory are returned.
	FindFiles(namePattern, subdirPattern, datasetName string, recurse bool) ([]FileDescriptor, error)

	// Download writes the content of the file to w.
	Download(fd FileDescriptor, w io.Writer) error
}

// Matches applies the FindFiles matching rules to a single descriptor. Names
// are compared case-insensitively.
func Matches(fd FileDescriptor, namePattern, subdirPattern string, recurse bool) bool {
	if fd.IsDirectory {
		return false
	}

	if namePattern == "" {
		namePattern = "*"
	}

	if !matchFold(namePattern, fd.FileName) {
		return false
	}

	relPath := strings.Trim(strings.ReplaceAll(fd.RelativePath, `\`, "/"), "/")
	subdirPattern = strings.Trim(strings.ReplaceAll(subdirPattern, `\`, "/"), "/")

	switch {
	case subdirPattern == "" && !recurse:
		return relPath == ""
	case subdirPattern == "":
		return true
	case relPath == "":
		return false
	case !recurse:
		return matchFold(subdirPattern, relPath)
	}

	// Recursive: some leading portion of the relative path must match.
	segments := strings.Split(relPath, "/")
	for i := 1; i <= len(segments); i++ {
		if matchFold(subdirPattern, strings.Join(segments[:i], "/")) {
			return true
		}
	}

	return false
}

func matchFold(pattern, name string) bool {
	matched, err := doublestar.Match(strings.ToLower(pattern), strings.ToLower(name))
	return err == nil && matched
}

// FileIDs returns the distinct IDs of fds in ascending order.
func FileIDs(fds []FileDescriptor) []int64 {
	seen := make(map[int64]bool, len(fds))
	ids := make([]int64, 0, len(fds))
	for _, fd := range fds {
		if seen[fd.FileID] {
			continue
		}
		seen[fd.FileID] = true
		ids = append(ids, fd.FileID)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return ids
}

// Newest returns the descriptor with the highest file ID. The archive assigns
// IDs in increasing order, so this is the most recently stored version.
func Newest(fds []FileDescriptor) (FileDescriptor, bool) {
	if len(fds) == 0 {
		return FileDescriptor{}, false
	}

	newest := fds[0]
	for _, fd := range fds[1:] {
		if fd.FileID > newest.FileID {
			newest = fd
		}
	}

	return newest, true
}

// HighestTransaction returns the descriptor from the most recent upload
// transaction. Ties are broken by file ID.
func HighestTransaction(fds []FileDescriptor) (FileDescriptor, bool) {
	if len(fds) == 0 {
		return FileDescriptor{}, false
	}

	best := fds[0]
	for _, fd := range fds[1:] {
		if fd.TransactionID > best.TransactionID ||
			(fd.TransactionID == best.TransactionID && fd.FileID > best.FileID) {
			best = fd
		}
	}

	return best, true
}
