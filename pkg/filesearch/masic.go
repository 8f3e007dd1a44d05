package filesearch

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/apex/log"

	"github.com/materials-commons/dsstage/pkg/archive"
	"github.com/materials-commons/dsstage/pkg/dirsearch"
	"github.com/materials-commons/dsstage/pkg/filecopy"
	"github.com/materials-commons/dsstage/pkg/location"
)

// MASIC result file suffixes. The file names are <dataset><suffix>.
const (
	SuffixScanStats    = "_ScanStats.txt"
	SuffixScanStatsEx  = "_ScanStatsEx.txt"
	SuffixSICStats     = "_SICstats.txt"
	SuffixReporterIons = "_ReporterIons.txt"
)

const sicDirPattern = "SIC*"

// StatsRequest selects the MASIC files to retrieve.
type StatsRequest struct {
	Suffixes []string

	// NonCriticalSuffixes lists files that may be missing. A file is
	// non-critical when its name ends with one of these.
	NonCriticalSuffixes []string

	StoragePathInfoOnly bool
}

// DefaultStatsRequest asks for the scan stats files, and the SIC stats file
// when includeSICStats is set.
func DefaultStatsRequest(includeSICStats bool) StatsRequest {
	req := StatsRequest{Suffixes: []string{SuffixScanStats, SuffixScanStatsEx}}
	if includeSICStats {
		req.Suffixes = append(req.Suffixes, SuffixSICStats)
	}

	return req
}

func (r StatsRequest) isNonCritical(fileName string) bool {
	lower := strings.ToLower(fileName)
	for _, suffix := range r.NonCriticalSuffixes {
		if suffix != "" && strings.HasSuffix(lower, strings.ToLower(suffix)) {
			return true
		}
	}

	return false
}

// RetrieveScanAndSICStatsFiles copies the requested MASIC files for the
// dataset into the work directory. The dataset may have several SIC
// directories; the one whose ScanStats file is newest is used, or in the
// archive the one from the latest upload. A missing file that isn't
// non-critical stops the retrieval; files already copied are left in place.
func (s *FileSearch) RetrieveScanAndSICStatsFiles(req StatsRequest) bool {
	dataset := s.datasetName()

	sicDir, ok := s.findSICDirectory(dataset)
	if !ok {
		return false
	}

	if s.debugLevel >= 1 {
		s.log.Debugf("Using MASIC results in %s", sicDir)
	}

	for _, suffix := range req.Suffixes {
		fileName := dataset + suffix
		nonCritical := req.isNonCritical(fileName)

		opts := filecopy.DefaultCopyOptions()
		opts.LazyReferenceOnly = req.StoragePathInfoOnly && sicDir.IsLocal()
		if nonCritical {
			opts.NotFoundSeverity = log.DebugLevel
		}

		if _, copied := s.copier.CopyToWorkDir(fileName, sicDir, s.workDir, opts); copied {
			continue
		}

		if nonCritical {
			s.log.WithField("dir", sicDir.String()).Infof("Optional MASIC file %s not found", fileName)
			continue
		}

		s.log.WithField("dir", sicDir.String()).Errorf("MASIC file %s not found", fileName)
		return false
	}

	return true
}

// findSICDirectory returns the SIC directory to copy MASIC files from.
func (s *FileSearch) findSICDirectory(dataset string) (location.Location, bool) {
	scanStatsName := dataset + SuffixScanStats

	resolved := s.searcher.Resolve(dirsearch.Request{
		DirNamePattern: sicDirPattern,
		MaxAttempts:    1,
		LogIfMissing:   true,
	})

	if !resolved.Found {
		s.log.WithField("dataset", dataset).Error("No MASIC results directory found")
		return location.Location{}, false
	}

	if resolved.BestPath.IsArchive() {
		fds, err := s.searcher.ArchiveClient().FindFiles(scanStatsName, sicDirPattern, dataset, false)
		if err != nil {
			s.log.WithError(err).Errorf("Error looking for %s in the archive", scanStatsName)
			return location.Location{}, false
		}

		best, ok := archive.HighestTransaction(fds)
		if !ok {
			s.log.Errorf("%s not found in any SIC directory in the archive", scanStatsName)
			return location.Location{}, false
		}

		return location.Archive(dataset, best.RelativePath), true
	}

	datasetDir := resolved.BestPath.Path()
	dirs, err := dirsearch.ListMatching(s.fs, datasetDir, sicDirPattern, true)
	if err != nil || len(dirs) == 0 {
		s.log.WithError(err).Errorf("No SIC directories in %s", datasetDir)
		return location.Location{}, false
	}

	var bestDir string
	var bestTime time.Time
	for _, dir := range dirs {
		fi, err := s.fs.Stat(filepath.Join(datasetDir, dir.Name(), scanStatsName))
		if err != nil {
			continue
		}

		if bestDir == "" || fi.ModTime().After(bestTime) {
			bestDir = dir.Name()
			bestTime = fi.ModTime()
		}
	}

	if bestDir == "" {
		// No ScanStats file anywhere; the last directory is the most recent
		// job. The copy will report what is missing.
		bestDir = dirs[len(dirs)-1].Name()
	}

	return location.Local(filepath.Join(datasetDir, bestDir)), true
}
