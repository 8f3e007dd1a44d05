package filesearch

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/materials-commons/dsstage/pkg/config"
	"github.com/materials-commons/dsstage/pkg/dirsearch"
	"github.com/materials-commons/dsstage/pkg/filecopy"
	"github.com/materials-commons/dsstage/pkg/fsprobe"
	"github.com/materials-commons/dsstage/pkg/location"
)

// Imaging section zips are named like 0_R00X329Y309.zip, or 0_R00X329.zip for
// a whole column.
var (
	imagingSectionXY = regexp.MustCompile(`(?i)R(\d+)X(\d+)Y(\d+)`)
	imagingSectionX  = regexp.MustCompile(`(?i)R(\d+)X(\d+)`)
)

// ParseImagingSectionX returns the X coordinate in an imaging section name.
func ParseImagingSectionX(name string) (int, bool) {
	m := imagingSectionXY.FindStringSubmatch(name)
	if m == nil {
		m = imagingSectionX.FindStringSubmatch(name)
	}

	if m == nil {
		return 0, false
	}

	x, err := strconv.Atoi(m[2])
	if err != nil {
		return 0, false
	}

	return x, true
}

// SectionRange limits which imaging sections are extracted. A negative bound
// is open.
type SectionRange struct {
	StartX int
	EndX   int
}

func (r SectionRange) IsOpen() bool {
	return r.StartX < 0 && r.EndX < 0
}

// Includes reports whether the section named name is in range. Names without
// a coordinate are always included.
func (r SectionRange) Includes(name string) bool {
	if r.IsOpen() {
		return true
	}

	x, ok := ParseImagingSectionX(name)
	if !ok {
		return true
	}

	return (r.StartX < 0 || x >= r.StartX) && (r.EndX < 0 || x <= r.EndX)
}

func (s *FileSearch) imagingSectionRange() SectionRange {
	return SectionRange{
		StartX: s.params.GetJobParameterInt(config.SectionJobParameters, config.KeyMALDIImagingStartSectionX, -1),
		EndX:   s.params.GetJobParameterInt(config.SectionJobParameters, config.KeyMALDIImagingEndSectionX, -1),
	}
}

// RetrieveBrukerMALDIImagingFolders extracts a Bruker imaging dataset into
// <ChameleonCachedDataFolder>/<dataset>. Cached data for other datasets is
// removed first, the .mis sequence file is copied to the work directory and
// each section zip in range is extracted unless its files are already there.
// With unzipOverNetwork unset each zip is copied to the work directory before
// it is extracted. Retrieving imaging data from the archive is not supported.
func (s *FileSearch) RetrieveBrukerMALDIImagingFolders(unzipOverNetwork bool) bool {
	dataset := s.datasetName()

	cacheRoot := s.params.GetManagerParam(config.KeyChameleonCachedDataFolder, "")
	if cacheRoot == "" {
		s.log.Errorf("%s is not defined; cannot extract imaging data", config.KeyChameleonCachedDataFolder)
		return false
	}

	targetDir := filepath.Join(cacheRoot, dataset)
	if err := s.fs.MkdirAll(targetDir, 0755); err != nil {
		s.log.WithError(err).Errorf("Unable to create %s", targetDir)
		return false
	}

	s.cleanImagingCache(cacheRoot, dataset)

	resolved := s.searcher.Resolve(dirsearch.Request{
		FileNamePattern:        "*.zip",
		MaxAttempts:            defaultMaxAttempts,
		LogIfMissing:           true,
		IsInstrumentDataLookup: true,
	})

	switch {
	case !resolved.Found:
		s.log.WithField("dataset", dataset).Error(resolved.NotFoundMessage)
		return false
	case resolved.BestPath.IsArchive():
		s.log.WithField("dataset", dataset).Error("Bruker imaging data cannot be retrieved from the archive")
		return false
	}

	datasetDir := resolved.BestPath.Path()
	if !s.copySequenceFile(datasetDir) {
		return false
	}

	zips, err := dirsearch.ListMatching(s.fs, datasetDir, "*.zip", false)
	if err != nil {
		s.log.WithError(err).Errorf("Unable to list zip files in %s", datasetDir)
		return false
	}

	sections := s.imagingSectionRange()
	extracted := 0
	success := true

	for _, zip := range zips {
		if !sections.Includes(zip.Name()) {
			if s.debugLevel >= 2 {
				s.log.Debugf("Skipping %s; outside of section range %d to %d", zip.Name(), sections.StartX, sections.EndX)
			}
			continue
		}

		zipPath := filepath.Join(datasetDir, zip.Name())
		if s.zipAlreadyExtracted(zipPath, targetDir) {
			s.log.Infof("Contents of %s already extracted to %s", zip.Name(), targetDir)
			extracted++
			continue
		}

		if !s.extractImagingSection(zipPath, targetDir, unzipOverNetwork) {
			success = false
			break
		}

		extracted++
	}

	if err := s.deleteQueue.Drain(fsprobe.DefaultDrainTimeout); err != nil {
		s.log.WithError(err).Warn("Unable to delete local copies of imaging zip files")
	}

	if !success {
		return false
	}

	if extracted == 0 {
		s.log.WithField("dataset", dataset).Errorf("No imaging section zips in %s matched section range %d to %d", datasetDir, sections.StartX, sections.EndX)
		return false
	}

	return true
}

// cleanImagingCache removes data cached for other datasets.
func (s *FileSearch) cleanImagingCache(cacheRoot, dataset string) {
	dirs, err := dirsearch.ListMatching(s.fs, cacheRoot, "*", true)
	if err != nil {
		s.log.WithError(err).Warnf("Unable to list %s", cacheRoot)
		return
	}

	for _, dir := range dirs {
		if strings.EqualFold(dir.Name(), dataset) {
			continue
		}

		path := filepath.Join(cacheRoot, dir.Name())
		s.log.Infof("Removing cached imaging data %s", path)
		if err := s.fs.RemoveAll(path); err != nil {
			s.log.WithError(err).Warnf("Unable to remove %s", path)
		}
	}
}

func (s *FileSearch) copySequenceFile(datasetDir string) bool {
	misFiles, err := dirsearch.ListMatching(s.fs, datasetDir, "*.mis", false)
	switch {
	case err != nil:
		s.log.WithError(err).Errorf("Unable to list %s", datasetDir)
		return false
	case len(misFiles) == 0:
		s.log.Errorf("Imaging sequence (.mis) file not found in %s", datasetDir)
		return false
	case len(misFiles) > 1:
		s.log.Errorf("Found %d .mis files in %s; expected one", len(misFiles), datasetDir)
		return false
	}

	_, ok := s.copier.CopyToWorkDir(misFiles[0].Name(), location.Local(datasetDir), s.workDir, filecopy.DefaultCopyOptions())
	return ok
}

// zipAlreadyExtracted is true when every file in the zip exists in targetDir
// with the same size.
func (s *FileSearch) zipAlreadyExtracted(zipPath, targetDir string) bool {
	entries, err := s.compressor.ListZipEntries(zipPath)
	if err != nil || len(entries) == 0 {
		return false
	}

	for _, entry := range entries {
		if entry.IsDir {
			continue
		}

		fi, err := s.fs.Stat(filepath.Join(targetDir, filepath.FromSlash(entry.Name)))
		if err != nil || fi.Size() != entry.Size {
			return false
		}
	}

	return true
}

func (s *FileSearch) extractImagingSection(zipPath, targetDir string, unzipOverNetwork bool) bool {
	source := zipPath
	if !unzipOverNetwork {
		source = filepath.Join(s.workDir, filepath.Base(zipPath))
		if !s.copier.CopyFileWithRetry(zipPath, source, true, filecopy.DefaultMaxCopyAttempts) {
			return false
		}
	}

	_, err := s.compressor.Unzip(source, targetDir, "")

	if !unzipOverNetwork {
		// The handle on the local copy may not be released yet; a failed
		// delete is retried when the queue is drained.
		s.deleteQueue.Delete(source)
	}

	if err != nil {
		s.log.WithError(err).Errorf("Error extracting %s to %s", zipPath, targetDir)
		return false
	}

	return true
}
