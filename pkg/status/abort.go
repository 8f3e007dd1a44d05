package status

import (
	"path/filepath"

	"github.com/spf13/afero"
)

// AbortProcessingFileName is created by an operator to stop a manager between
// job steps.
const AbortProcessingFileName = "AbortProcessingNow.txt"

// CheckForAbortProcessingFile reports whether the abort file exists in dir.
func CheckForAbortProcessingFile(fs afero.Fs, dir string) bool {
	exists, err := afero.Exists(fs, filepath.Join(dir, AbortProcessingFileName))
	return err == nil && exists
}
