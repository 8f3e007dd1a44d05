package filecopy

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// HydrateStoragePathInfo replaces the StoragePathInfo file at infoPath with a
// copy of the file or directory it references and returns the local path. The
// reference is only removed once the copy is complete.
func (c *Copier) HydrateStoragePathInfo(infoPath string) (string, bool) {
	if !strings.HasSuffix(infoPath, StoragePathInfoSuffix) {
		c.log.Errorf("%s is not a StoragePathInfo file", infoPath)
		return "", false
	}

	source, err := c.ReadStoragePathInfo(infoPath)
	if err != nil {
		c.log.WithError(err).Errorf("Error reading %s", infoPath)
		return "", false
	}

	if source == "" {
		c.log.Errorf("%s does not name a source path", infoPath)
		return "", false
	}

	dest := strings.TrimSuffix(infoPath, StoragePathInfoSuffix)
	entry := c.log.WithField("source", source)

	if isDir, _ := afero.DirExists(c.fs, source); isDir {
		if _, err := c.CopyDirectory(source, dest, "", false); err != nil {
			entry.WithError(err).Errorf("Error copying directory to %s", dest)
			return "", false
		}
	} else if !c.CopyFileWithRetry(source, dest, false, DefaultMaxCopyAttempts) {
		return "", false
	}

	if err := c.fs.Remove(infoPath); err != nil && !os.IsNotExist(err) {
		entry.WithError(err).Warnf("Unable to remove %s", infoPath)
	}

	entry.Infof("Replaced storage path reference with %s", dest)

	return dest, true
}

// HydrateDirectory hydrates every StoragePathInfo file directly inside dir and
// returns the local paths it created. It keeps going after a failure and
// returns false if any reference could not be replaced.
func (c *Copier) HydrateDirectory(dir string) ([]string, bool) {
	infoPaths, err := afero.Glob(c.fs, filepath.Join(dir, "*"+StoragePathInfoSuffix))
	if err != nil {
		c.log.WithError(err).Errorf("Error listing storage path references in %s", dir)
		return nil, false
	}

	var hydrated []string
	success := true
	for _, infoPath := range infoPaths {
		dest, ok := c.HydrateStoragePathInfo(infoPath)
		if !ok {
			success = false
			continue
		}

		hydrated = append(hydrated, dest)
	}

	return hydrated, success
}
