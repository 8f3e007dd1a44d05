// Package filecopy stages single files and directories from a resolved
// location into a local work directory. Local sources are copied with retry,
// archive sources are queued for a later batch download, and callers that only
// need to know where a file lives can ask for a StoragePathInfo reference
// instead of the bytes.
package filecopy

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/bmatcuk/doublestar/v4"
	pkgerrors "github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/materials-commons/dsstage/pkg/archive"
	"github.com/materials-commons/dsstage/pkg/fsprobe"
	"github.com/materials-commons/dsstage/pkg/location"
)

// StoragePathInfoSuffix is appended to the destination file name when a lazy
// reference is written instead of the file.
const StoragePathInfoSuffix = "_StoragePathInfo.txt"

const (
	DefaultMaxCopyAttempts = 3
	copyHoldoff            = 15 * time.Second
)

var ErrDestinationExists = errors.New("destination file already exists")

// StagedFile describes the outcome of a copy request.
type StagedFile struct {
	Source          location.Location
	DestinationPath string

	// IsLazyReference is true when only a StoragePathInfo file was written.
	IsLazyReference bool

	// Queued is true when the file is in the archive download queue and will
	// only exist at DestinationPath after the queue is flushed.
	Queued bool
}

// InfoFilePath is the StoragePathInfo file written for a lazy reference.
func (s StagedFile) InfoFilePath() string {
	return s.DestinationPath + StoragePathInfoSuffix
}

// CopyOptions controls a single CopyToWorkDir call. The zero value logs a
// missing source at debug level; use DefaultCopyOptions for the usual
// behaviour.
type CopyOptions struct {
	NotFoundSeverity  log.Level
	LazyReferenceOnly bool
	MaxCopyAttempts   int
	NoOverwrite       bool
}

func DefaultCopyOptions() CopyOptions {
	return CopyOptions{
		NotFoundSeverity: log.ErrorLevel,
		MaxCopyAttempts:  DefaultMaxCopyAttempts,
	}
}

// Events bracket the actual byte copy so the host can tell the time spent
// waiting for shared storage apart from the time spent copying. Either field
// may be nil.
type Events struct {
	ResetTimestampForQueueWaitTime func()
	CopyWithLocksComplete          func(startTime time.Time, destPath string)
}

type Copier struct {
	fs         afero.Fs
	checker    *fsprobe.Checker
	queue      *archive.DownloadQueue
	log        log.Interface
	debugLevel int
	sleep      func(time.Duration)
	events     Events

	copyFile func(src, dst string, overwrite bool) error
}

type CopierOptionFN func(*Copier)

func NewCopier(fs afero.Fs, optFNs ...CopierOptionFN) *Copier {
	c := &Copier{
		fs:    fs,
		log:   log.Log,
		sleep: time.Sleep,
	}

	c.copyFile = c.copyFileContent

	for _, optfn := range optFNs {
		optfn(c)
	}

	if c.checker == nil {
		c.checker = fsprobe.NewChecker(fs,
			fsprobe.WithLogger(c.log),
			fsprobe.WithDebugLevel(c.debugLevel),
			fsprobe.WithSleeper(c.sleep))
	}

	return c
}

func WithLogger(l log.Interface) CopierOptionFN {
	return func(c *Copier) {
		c.log = l
	}
}

func WithDebugLevel(level int) CopierOptionFN {
	return func(c *Copier) {
		c.debugLevel = level
	}
}

func WithSleeper(sleep func(time.Duration)) CopierOptionFN {
	return func(c *Copier) {
		c.sleep = sleep
	}
}

func WithChecker(checker *fsprobe.Checker) CopierOptionFN {
	return func(c *Copier) {
		c.checker = checker
	}
}

// WithDownloadQueue sets the queue archive sources are added to. Without one,
// copying from the archive fails.
func WithDownloadQueue(q *archive.DownloadQueue) CopierOptionFN {
	return func(c *Copier) {
		c.queue = q
	}
}

func WithEvents(events Events) CopierOptionFN {
	return func(c *Copier) {
		c.events = events
	}
}

func (c *Copier) Fs() afero.Fs {
	return c.fs
}

func (c *Copier) Checker() *fsprobe.Checker {
	return c.checker
}

func (c *Copier) DownloadQueue() *archive.DownloadQueue {
	return c.queue
}

// CopyToWorkDir stages fileName from source into targetDir.
func (c *Copier) CopyToWorkDir(fileName string, source location.Location, targetDir string, opts CopyOptions) (StagedFile, bool) {
	return c.stage(fileName, fileName, source, targetDir, opts)
}

// CopyToWorkDirWithRename is CopyToWorkDir, but the local copy is named after
// the dataset, keeping the source file's extension.
func (c *Copier) CopyToWorkDirWithRename(datasetName, fileName string, source location.Location, targetDir string, opts CopyOptions) (StagedFile, bool) {
	return c.stage(fileName, datasetName+filepath.Ext(fileName), source, targetDir, opts)
}

func (c *Copier) stage(fileName, destName string, source location.Location, targetDir string, opts CopyOptions) (StagedFile, bool) {
	switch {
	case source.IsArchive():
		return c.enqueueFromArchive(fileName, destName, source, targetDir)
	case source.IsLocal():
		src := filepath.Join(source.Path(), fileName)
		return c.copyLocal(src, filepath.Join(targetDir, destName), opts)
	default:
		c.log.Errorf("No source directory given for %s", fileName)
		return StagedFile{}, false
	}
}

func (c *Copier) enqueueFromArchive(fileName, destName string, source location.Location, targetDir string) (StagedFile, bool) {
	staged := StagedFile{
		Source:          source.Join(fileName),
		DestinationPath: filepath.Join(targetDir, destName),
		Queued:          true,
	}

	if c.queue == nil {
		c.log.Errorf("Cannot retrieve %s; no archive download queue configured", staged.Source)
		return staged, false
	}

	localName := destName
	if localName == fileName {
		localName = ""
	}

	if !c.queue.EnqueueFileAs(source.Dataset(), source.Subdir(), fileName, localName) {
		return staged, false
	}

	if c.debugLevel >= 2 {
		c.log.Debugf("Queued %s for download from the archive", staged.Source)
	}

	return staged, true
}

func (c *Copier) copyLocal(src, dest string, opts CopyOptions) (StagedFile, bool) {
	staged := StagedFile{Source: location.Local(src), DestinationPath: dest}

	// A missing source is reported separately from a failed copy, so only
	// probe once here.
	if !c.checker.FileExists(src, fsprobe.RetryPolicy{MaxAttempts: 1, HoldoffSeconds: 1}) {
		logAt(c.log.WithField("path", src), opts.NotFoundSeverity, "File not found")
		return staged, false
	}

	if opts.LazyReferenceOnly {
		if _, err := c.WriteStoragePathInfo(src, dest); err != nil {
			c.log.WithError(err).Errorf("Error creating storage path info file for %s", src)
			return staged, false
		}

		staged.IsLazyReference = true
		return staged, true
	}

	if c.debugLevel >= 3 {
		c.log.Debugf("Copying file %s to %s", src, dest)
	}

	if c.events.ResetTimestampForQueueWaitTime != nil {
		c.events.ResetTimestampForQueueWaitTime()
	}

	start := time.Now()
	if !c.CopyFileWithRetry(src, dest, !opts.NoOverwrite, opts.MaxCopyAttempts) {
		return staged, false
	}

	if c.events.CopyWithLocksComplete != nil {
		c.events.CopyWithLocksComplete(start, dest)
	}

	return staged, true
}

// WriteStoragePathInfo writes <destPath>_StoragePathInfo.txt holding
// sourcePath and returns the path of the info file. destPath itself is not
// created.
func (c *Copier) WriteStoragePathInfo(sourcePath, destPath string) (string, error) {
	infoPath := destPath + StoragePathInfoSuffix

	if err := c.fs.MkdirAll(filepath.Dir(infoPath), 0755); err != nil {
		return "", err
	}

	if err := afero.WriteFile(c.fs, infoPath, []byte(sourcePath+"\n"), 0644); err != nil {
		return "", err
	}

	return infoPath, nil
}

// ReadStoragePathInfo returns the source path recorded in a StoragePathInfo
// file.
func (c *Copier) ReadStoragePathInfo(infoPath string) (string, error) {
	content, err := afero.ReadFile(c.fs, infoPath)
	if err != nil {
		return "", err
	}

	return strings.TrimRight(string(content), "\r\n"), nil
}

// CopyFileWithRetry copies src to dst, making up to maxAttempts attempts with
// a 15 second wait between them. When overwrite is false and dst already
// exists, it gives up after the first failure.
func (c *Copier) CopyFileWithRetry(src, dst string, overwrite bool, maxAttempts int) bool {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := c.copyFile(src, dst, overwrite)
		if err == nil {
			return true
		}

		entry := c.log.WithError(err).WithField("attempt", attempt).WithField("max_attempts", maxAttempts)

		if !overwrite && c.destinationExists(dst) {
			entry.Errorf("Cannot copy %s; destination %s exists and overwrite is disabled", src, dst)
			return false
		}

		if attempt == maxAttempts {
			entry.Errorf("Error copying %s to %s", src, dst)
			break
		}

		entry.Warnf("Error copying %s to %s, waiting %s before retrying", src, dst, copyHoldoff)
		c.sleep(copyHoldoff)
	}

	return false
}

func (c *Copier) destinationExists(path string) bool {
	_, err := c.fs.Stat(path)
	return err == nil
}

func (c *Copier) copyFileContent(src, dst string, overwrite bool) error {
	if !overwrite && c.destinationExists(dst) {
		return pkgerrors.Wrap(ErrDestinationExists, dst)
	}

	in, err := c.fs.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	fi, err := in.Stat()
	if err != nil {
		return err
	}

	if err := c.fs.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	out, err := c.fs.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	_, err = io.Copy(out, in)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		_ = c.fs.Remove(dst)
		return err
	}

	_ = c.fs.Chtimes(dst, fi.ModTime(), fi.ModTime())

	return nil
}

// CopyDirectory copies the tree at srcDir to destDir. When fileFilter is set,
// only files whose name matches it are copied. It returns the number of files
// copied.
func (c *Copier) CopyDirectory(srcDir, destDir, fileFilter string, overwrite bool) (int, error) {
	if !c.checker.DirectoryExists(srcDir, fsprobe.SingleAttempt(true)) {
		return 0, pkgerrors.Errorf("source directory %s not found", srcDir)
	}

	filter := strings.ToLower(fileFilter)
	copied := 0

	err := afero.Walk(c.fs, srcDir, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}

		target := filepath.Join(destDir, rel)
		if info.IsDir() {
			return c.fs.MkdirAll(target, 0755)
		}

		if filter != "" {
			if matched, _ := doublestar.Match(filter, strings.ToLower(info.Name())); !matched {
				return nil
			}
		}

		if err := c.copyFile(path, target, overwrite); err != nil {
			return pkgerrors.Wrapf(err, "copying %s", path)
		}

		copied++
		return nil
	})

	if err != nil {
		return copied, err
	}

	c.log.WithField("files", copied).Debugf("Copied directory %s to %s", srcDir, destDir)

	return copied, nil
}

func logAt(entry log.Interface, level log.Level, msg string) {
	switch level {
	case log.DebugLevel:
		entry.Debug(msg)
	case log.InfoLevel:
		entry.Info(msg)
	case log.WarnLevel:
		entry.Warn(msg)
	default:
		entry.Error(msg)
	}
}
