// Package filesearch retrieves the files an analysis step needs: instrument
// data, cached derived spectra files, MASIC statistics, concatenated spectra
// and Bruker imaging sections. It decides where to look with dirsearch and
// stages files with filecopy.
//
// Not finding a file is routine and is reported through the boolean results
// and the log. Methods only return errors for problems a caller can act on.
package filesearch

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/spf13/afero"

	"github.com/materials-commons/dsstage/pkg/archive"
	"github.com/materials-commons/dsstage/pkg/compress"
	"github.com/materials-commons/dsstage/pkg/config"
	"github.com/materials-commons/dsstage/pkg/dirsearch"
	"github.com/materials-commons/dsstage/pkg/filecopy"
	"github.com/materials-commons/dsstage/pkg/fsprobe"
	"github.com/materials-commons/dsstage/pkg/hashcheck"
	"github.com/materials-commons/dsstage/pkg/location"
)

var ErrNotFound = errors.New("file not found")

// Attempts per storage tier when resolving instrument data.
const defaultMaxAttempts = 3

// FoundFile is a file located by FindDataFile.
type FoundFile struct {
	Dir      location.Location
	FileName string

	// ArchiveFile is the newest matching archive entry when Dir is in the
	// archive.
	ArchiveFile archive.FileDescriptor
}

func (f FoundFile) Location() location.Location {
	return f.Dir.Join(f.FileName)
}

// FindOptions adjusts FindDataFile.
type FindOptions struct {
	// SkipArchive leaves the archive out of the search. A miss is then only
	// a warning.
	SkipArchive bool

	// Quiet turns off the not found message.
	Quiet bool
}

type FileSearch struct {
	params      config.ParamSource
	searcher    *dirsearch.Searcher
	copier      *filecopy.Copier
	compressor  compress.Compressor
	validator   *hashcheck.Validator
	deleteQueue *fsprobe.DeleteQueue
	policies    []LayoutPolicy
	fs          afero.Fs
	log         log.Interface
	debugLevel  int
	workDir     string
	now         func() time.Time
}

type FileSearchOptionFN func(*FileSearch)

func NewFileSearch(params config.ParamSource, searcher *dirsearch.Searcher, copier *filecopy.Copier, optFNs ...FileSearchOptionFN) *FileSearch {
	s := &FileSearch{
		params:   params,
		searcher: searcher,
		copier:   copier,
		policies: DefaultLayoutPolicies(),
		fs:       copier.Fs(),
		log:      log.Log,
		workDir:  params.GetManagerParam(config.KeyWorkDir, ""),
		now:      time.Now,
	}

	for _, optfn := range optFNs {
		optfn(s)
	}

	if s.compressor == nil {
		s.compressor = compress.NewTools(s.fs, s.log)
	}

	if s.validator == nil {
		s.validator = hashcheck.NewValidator(s.fs, hashcheck.WithLogger(s.log))
	}

	if s.deleteQueue == nil {
		s.deleteQueue = fsprobe.NewDeleteQueue(s.fs, fsprobe.WithDeleteQueueLogger(s.log))
	}

	return s
}

func WithLogger(l log.Interface) FileSearchOptionFN {
	return func(s *FileSearch) {
		s.log = l
	}
}

// WithClock sets the time used to name dated cache directories.
func WithClock(now func() time.Time) FileSearchOptionFN {
	return func(s *FileSearch) {
		s.now = now
	}
}

func WithDebugLevel(level int) FileSearchOptionFN {
	return func(s *FileSearch) {
		s.debugLevel = level
	}
}

func WithWorkDir(dir string) FileSearchOptionFN {
	return func(s *FileSearch) {
		s.workDir = dir
	}
}

func WithLayoutPolicies(policies ...LayoutPolicy) FileSearchOptionFN {
	return func(s *FileSearch) {
		s.policies = policies
	}
}

func WithCompressor(c compress.Compressor) FileSearchOptionFN {
	return func(s *FileSearch) {
		s.compressor = c
	}
}

func WithValidator(v *hashcheck.Validator) FileSearchOptionFN {
	return func(s *FileSearch) {
		s.validator = v
	}
}

func WithDeleteQueue(q *fsprobe.DeleteQueue) FileSearchOptionFN {
	return func(s *FileSearch) {
		s.deleteQueue = q
	}
}

func (s *FileSearch) WorkDir() string {
	return s.workDir
}

func (s *FileSearch) datasetName() string {
	return s.params.GetParam(config.KeyDatasetName)
}

func (s *FileSearch) datasetFolderName() string {
	return s.searcher.DatasetFolderName(s.datasetName())
}

func (s *FileSearch) toolName() string {
	return s.params.GetParam(config.KeyToolName)
}

func (s *FileSearch) storagePathInfoOnly() bool {
	return s.params.GetJobParameterBool(config.SectionJobParameters, config.KeyStoragePathInfoOnly, false)
}

// resultsFolders returns the input folder followed by the shared results
// folders, last declared first.
func (s *FileSearch) resultsFolders() []string {
	var folders []string
	if input := strings.TrimSpace(s.params.GetParam(config.KeyInputFolderName)); input != "" {
		folders = append(folders, input)
	}

	shared := SplitList(s.params.GetParam(config.KeySharedResultsFolders))
	for i := len(shared) - 1; i >= 0; i-- {
		if !containsFold(folders, shared[i]) {
			folders = append(folders, shared[i])
		}
	}

	return folders
}

// SearchDirs returns the directories FindDataFile checks, in order.
func (s *FileSearch) SearchDirs(opts FindOptions) []SearchDir {
	folderName := s.datasetFolderName()
	subdirs := append(s.resultsFolders(), "")

	var roots []location.Location
	addRoot := func(path string) {
		if path != "" {
			roots = append(roots, location.Local(path))
		}
	}

	addRoot(s.params.GetParam(config.KeyTransferDirectoryPath))
	addRoot(s.params.GetParam(config.KeyDatasetStoragePath))
	if !opts.SkipArchive && !s.searcher.ArchiveSearchDisabled() {
		roots = append(roots, location.Archive(s.datasetName(), ""))
	}
	if s.params.GetManagerParamBool(config.KeyArchiveAvailable, false) {
		addRoot(s.params.GetParam(config.KeyDatasetArchivePath))
	}

	toolName := s.toolName()
	var dirs []SearchDir
	for _, root := range roots {
		for _, subdir := range subdirs {
			dir := SearchDir{Root: root, DatasetFolder: folderName, Subdir: subdir}
			dirs = append(dirs, dir)
			for _, policy := range s.policies {
				dirs = append(dirs, policy.Expand(toolName, dir)...)
			}
		}
	}

	// Aggregation jobs keep their inputs in the data package directory.
	if pkgPath := s.params.GetParam(config.KeyDataPackagePath); pkgPath != "" {
		for _, subdir := range subdirs {
			dirs = append(dirs, SearchDir{Root: location.Local(pkgPath), Subdir: subdir})
		}
	}

	return dirs
}

// FindDataFile returns the first search directory that holds fileName, which
// may contain wildcards.
func (s *FileSearch) FindDataFile(fileName string, opts FindOptions) (FoundFile, bool) {
	for _, dir := range s.SearchDirs(opts) {
		found, ok, err := s.checkSearchDir(dir, fileName)
		if err != nil {
			s.log.WithError(err).WithField("dir", dir.Location().String()).Warnf("Error looking for %s", fileName)
			continue
		}

		if ok {
			if s.debugLevel >= 2 {
				s.log.Debugf("Found %s in %s", found.FileName, found.Dir)
			}
			return found, true
		}
	}

	if !opts.Quiet {
		msg := fmt.Sprintf("Data file not found: %s", fileName)
		entry := s.log.WithField("dataset", s.datasetName())
		if opts.SkipArchive || s.searcher.ArchiveSearchDisabled() {
			entry.Warn(msg)
		} else {
			entry.Error(msg)
		}
	}

	return FoundFile{}, false
}

func (s *FileSearch) checkSearchDir(dir SearchDir, fileName string) (FoundFile, bool, error) {
	loc := dir.Location()

	if loc.IsArchive() {
		client := s.searcher.ArchiveClient()
		fds, err := client.FindFiles(fileName, loc.Subdir(), loc.Dataset(), false)
		if err != nil {
			return FoundFile{}, false, err
		}

		newest, ok := archive.Newest(fds)
		if !ok {
			return FoundFile{}, false, nil
		}

		return FoundFile{Dir: loc, FileName: newest.FileName, ArchiveFile: newest}, true, nil
	}

	checker := s.copier.Checker()
	if !checker.DirectoryExists(loc.Path(), fsprobe.SingleAttempt(false)) {
		return FoundFile{}, false, nil
	}

	if !strings.ContainsAny(fileName, "*?[") {
		if checker.FileExists(filepath.Join(loc.Path(), fileName), fsprobe.SingleAttempt(false)) {
			return FoundFile{Dir: loc, FileName: fileName}, true, nil
		}
		return FoundFile{}, false, nil
	}

	matches, err := dirsearch.ListMatching(s.fs, loc.Path(), fileName, false)
	if err != nil || len(matches) == 0 {
		return FoundFile{}, false, err
	}

	return FoundFile{Dir: loc, FileName: matches[0].Name()}, true, nil
}

// RetrieveFile finds fileName and stages it in the work directory. With unzip
// set, .zip and .gz files are extracted there too; archive files are
// downloaded first so that can happen.
func (s *FileSearch) RetrieveFile(fileName string, unzip bool) bool {
	found, ok := s.FindDataFile(fileName, FindOptions{})
	if !ok {
		return false
	}

	opts := filecopy.DefaultCopyOptions()
	staged, ok := s.copier.CopyToWorkDir(found.FileName, found.Dir, s.workDir, opts)
	if !ok {
		return false
	}

	if !unzip {
		return true
	}

	if staged.Queued && !s.ProcessArchiveDownloadQueue() {
		return false
	}

	return s.extract(staged.DestinationPath)
}

func (s *FileSearch) extract(path string) bool {
	lower := strings.ToLower(path)

	switch {
	case strings.HasSuffix(lower, ".zip"):
		if _, err := s.compressor.Unzip(path, s.workDir, ""); err != nil {
			s.log.WithError(err).Errorf("Error unzipping %s", path)
			return false
		}
	case strings.HasSuffix(lower, ".gz"):
		if _, err := s.compressor.GUnzip(path, s.workDir); err != nil {
			s.log.WithError(err).Errorf("Error decompressing %s", path)
			return false
		}
	}

	return true
}

// ProcessArchiveDownloadQueue downloads everything queued from the archive
// into the work directory.
func (s *FileSearch) ProcessArchiveDownloadQueue() bool {
	q := s.copier.DownloadQueue()
	if q == nil || q.Len() == 0 {
		return true
	}

	return q.Flush(s.workDir, archive.LayoutFlat)
}

// RetrieveDtaFiles stages the dataset's concatenated spectra file and unzips
// it to <dataset>_dta.txt.
func (s *FileSearch) RetrieveDtaFiles() bool {
	dataset := s.datasetName()
	zipName := dataset + "_dta.zip"

	if !s.RetrieveFile(zipName, true) {
		return false
	}

	txtPath := filepath.Join(s.workDir, dataset+"_dta.txt")
	if exists, _ := afero.Exists(s.fs, txtPath); !exists {
		s.log.Errorf("%s did not contain %s", zipName, filepath.Base(txtPath))
		return false
	}

	return true
}

// HydrateWorkDir replaces the StoragePathInfo references in the work
// directory with copies of the files they point to.
func (s *FileSearch) HydrateWorkDir() bool {
	hydrated, ok := s.copier.HydrateDirectory(s.workDir)
	if len(hydrated) != 0 {
		s.log.WithField("files", len(hydrated)).Info("Replaced storage path references")
	}

	return ok
}

// ZipDtaFiles zips <dataset>_dta.txt in the work directory to
// <dataset>_dta.zip, the form RetrieveDtaFiles expects to find in storage, and
// returns the zip path. The text file is removed once the zip is written.
func (s *FileSearch) ZipDtaFiles() (string, bool) {
	dataset := s.datasetName()
	txtPath := filepath.Join(s.workDir, dataset+"_dta.txt")
	zipPath := filepath.Join(s.workDir, dataset+"_dta.zip")

	if exists, _ := afero.Exists(s.fs, txtPath); !exists {
		s.log.Errorf("Concatenated spectra file %s not found", txtPath)
		return "", false
	}

	if err := s.compressor.Zip(txtPath, zipPath); err != nil {
		s.log.WithError(err).Errorf("Error zipping %s", txtPath)
		return "", false
	}

	s.deleteQueue.Delete(txtPath)

	return zipPath, true
}

// SplitList splits a comma separated parameter value, dropping blanks.
func SplitList(value string) []string {
	var result []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			result = append(result, item)
		}
	}

	return result
}

func containsFold(list []string, s string) bool {
	for _, item := range list {
		if strings.EqualFold(item, s) {
			return true
		}
	}

	return false
}
