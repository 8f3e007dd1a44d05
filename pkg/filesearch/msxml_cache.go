package filesearch

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/materials-commons/dsstage/pkg/config"
	"github.com/materials-commons/dsstage/pkg/filecopy"
	"github.com/materials-commons/dsstage/pkg/hashcheck"
	"github.com/materials-commons/dsstage/pkg/location"
)

// Cached spectra file extensions.
const (
	ExtMzML  = ".mzML"
	ExtMzXML = ".mzXML"
	ExtPbf   = ".pbf"
)

const defaultCacheRecheckDays = 1

var jobNumberSuffix = regexp.MustCompile(`_\d+$`)

// CacheToolDirs returns the cache directory names for the job's input and
// shared results folders: the folder name without its trailing job number,
// so MSXML_Gen_1_194_12345 is cached under MSXML_Gen_1_194.
func (s *FileSearch) CacheToolDirs() []string {
	var dirs []string
	for _, folder := range s.resultsFolders() {
		if !jobNumberSuffix.MatchString(folder) {
			continue
		}

		dir := jobNumberSuffix.ReplaceAllString(folder, "")
		if !containsFold(dirs, dir) {
			dirs = append(dirs, dir)
		}
	}

	return dirs
}

// FindMsXmlFileForJobInCache looks for <dataset><ext> or <dataset><ext>.gz in
// the cache directory of the tool that produced the job's input. The cache
// keeps files in dated subdirectories, so the whole tool directory is
// searched and the newest file wins.
func (s *FileSearch) FindMsXmlFileForJobInCache(ext string) (string, error) {
	cacheRoot := s.params.GetManagerParam(config.KeyMSXMLCacheFolderPath, "")
	if cacheRoot == "" {
		return "", errors.Errorf("%s is not defined", config.KeyMSXMLCacheFolderPath)
	}

	toolDirs := s.CacheToolDirs()
	if len(toolDirs) == 0 {
		return "", errors.Wrapf(ErrNotFound, "job has no input folder to derive the %s cache directory from", ext)
	}

	dataset := s.datasetName()
	wanted := []string{strings.ToLower(dataset + ext), strings.ToLower(dataset + ext + ".gz")}

	for _, toolDir := range toolDirs {
		dir := filepath.Join(cacheRoot, toolDir)
		if exists, _ := afero.DirExists(s.fs, dir); !exists {
			continue
		}

		var newestPath string
		var newestTime time.Time
		err := afero.Walk(s.fs, dir, func(path string, info os.FileInfo, walkErr error) error {
			if walkErr != nil || info.IsDir() {
				return walkErr
			}

			name := strings.ToLower(info.Name())
			if (name == wanted[0] || name == wanted[1]) && (newestPath == "" || info.ModTime().After(newestTime)) {
				newestPath = path
				newestTime = info.ModTime()
			}

			return nil
		})

		if err != nil {
			return "", errors.Wrapf(err, "searching %s", dir)
		}

		if newestPath != "" {
			return newestPath, nil
		}
	}

	return "", errors.Wrapf(ErrNotFound, "%s%s not in the cache for %s", dataset, ext, strings.Join(toolDirs, ", "))
}

// RetrieveCachedMSXMLFile stages the job's cached spectra file in the work
// directory and returns its local path. A file found in the cache is only used
// if it agrees with its hashcheck file; a mismatch deletes both so the file
// gets regenerated. When the cache has no file, the dataset directories are
// searched instead. With gunzip set, a .gz file is decompressed.
func (s *FileSearch) RetrieveCachedMSXMLFile(ext string, gunzip bool) (string, bool) {
	cachedPath, err := s.FindMsXmlFileForJobInCache(ext)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.log.Info(err.Error())
		} else {
			s.log.WithError(err).Warn("Unable to search the spectra file cache")
		}

		return s.retrieveMsXmlFromDatasetDirs(ext, gunzip)
	}

	if !s.validateCachedFile(cachedPath) {
		return "", false
	}

	staged, ok := s.copier.CopyToWorkDir(filepath.Base(cachedPath), location.Local(filepath.Dir(cachedPath)), s.workDir, filecopy.DefaultCopyOptions())
	if !ok {
		return "", false
	}

	return s.maybeGunzip(staged.DestinationPath, gunzip)
}

// CacheMSXMLFile stores a derived spectra file from the work directory in the
// cache so later jobs can reuse it. The file goes in a dated subdirectory of
// toolDir, or of the job's first cache tool directory when toolDir is empty,
// is gzipped if it isn't already, and gets a fresh hashcheck file. It returns
// the cached path.
func (s *FileSearch) CacheMSXMLFile(localPath, toolDir string) (string, bool) {
	cacheRoot := s.params.GetManagerParam(config.KeyMSXMLCacheFolderPath, "")
	if cacheRoot == "" {
		s.log.Errorf("Cannot cache %s; %s is not defined", localPath, config.KeyMSXMLCacheFolderPath)
		return "", false
	}

	if toolDir == "" {
		toolDirs := s.CacheToolDirs()
		if len(toolDirs) == 0 {
			s.log.Errorf("Cannot cache %s; the job has no input folder to name the cache directory after", localPath)
			return "", false
		}

		toolDir = toolDirs[0]
	}

	now := s.now()
	targetDir := filepath.Join(cacheRoot, toolDir, fmt.Sprintf("%d_%d", now.Year(), (int(now.Month())-1)/3+1))
	if err := s.fs.MkdirAll(targetDir, 0755); err != nil {
		s.log.WithError(err).Errorf("Error creating cache directory %s", targetDir)
		return "", false
	}

	var cachedPath string
	if strings.HasSuffix(strings.ToLower(localPath), ".gz") {
		cachedPath = filepath.Join(targetDir, filepath.Base(localPath))
		if !s.copier.CopyFileWithRetry(localPath, cachedPath, true, filecopy.DefaultMaxCopyAttempts) {
			return "", false
		}
	} else {
		var err error
		if cachedPath, err = s.compressor.GZip(localPath, targetDir); err != nil {
			s.log.WithError(err).Errorf("Error compressing %s into the cache", localPath)
			return "", false
		}
	}

	if _, err := s.validator.CreateSidecar(cachedPath, hashcheck.MD5); err != nil {
		s.log.WithError(err).Errorf("Error writing hashcheck file for %s", cachedPath)
		s.deleteQueue.Delete(cachedPath)
		return "", false
	}

	s.log.WithField("path", cachedPath).Info("Cached spectra file")

	return cachedPath, true
}

func (s *FileSearch) retrieveMsXmlFromDatasetDirs(ext string, gunzip bool) (string, bool) {
	dataset := s.datasetName()

	found, ok := s.FindDataFile(dataset+ext+".gz", FindOptions{Quiet: true})
	if !ok {
		found, ok = s.FindDataFile(dataset+ext, FindOptions{})
	}

	if !ok {
		return "", false
	}

	staged, ok := s.copier.CopyToWorkDir(found.FileName, found.Dir, s.workDir, filecopy.DefaultCopyOptions())
	if !ok {
		return "", false
	}

	if staged.Queued && !s.ProcessArchiveDownloadQueue() {
		return "", false
	}

	return s.maybeGunzip(staged.DestinationPath, gunzip)
}

func (s *FileSearch) maybeGunzip(path string, gunzip bool) (string, bool) {
	if !gunzip || !strings.HasSuffix(strings.ToLower(path), ".gz") {
		return path, true
	}

	outPath, err := s.compressor.GUnzip(path, s.workDir)
	if err != nil {
		s.log.WithError(err).Errorf("Error decompressing %s", path)
		return "", false
	}

	return outPath, true
}

// validateCachedFile checks a cached file against its hashcheck file. A
// missing hashcheck file is treated as a cache miss and nothing is deleted.
func (s *FileSearch) validateCachedFile(path string) bool {
	sidecar := hashcheck.SidecarPath(path)
	recheckDays := s.params.GetJobParameterInt(config.SectionJobParameters, config.KeyMSXMLCacheRecheckDays, defaultCacheRecheckDays)

	v := s.validator.Validate(path, sidecar, hashcheck.MD5, recheckDays)
	entry := s.log.WithField("path", path)

	switch {
	case v.IsValid:
		if v.Rehashed && s.debugLevel >= 1 {
			entry.Debug("Cached file verified against its hashcheck file")
		}
		return true

	case errors.Is(v.Err, hashcheck.ErrSidecarMissing):
		entry.Info("Cached file has no hashcheck file; it will be regenerated")
		return false

	case v.IsMismatch():
		entry.WithError(v.Err).Error("Cached file does not match its hashcheck file; deleting it")
		s.deleteQueue.Delete(path)
		s.deleteQueue.Delete(sidecar)
		return false

	default:
		entry.WithError(v.Err).Warn("Unable to validate cached file")
		return false
	}
}
