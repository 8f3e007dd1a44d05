// Package dirsearch finds the directory that holds a dataset's files. Storage
// is searched tier by tier: primary storage, the remote archive, the long-term
// archive and finally the transfer directory. The first tier that has the
// requested file or subdirectory wins.
package dirsearch

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/apex/log"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"

	"github.com/materials-commons/dsstage/pkg/archive"
	"github.com/materials-commons/dsstage/pkg/config"
	"github.com/materials-commons/dsstage/pkg/fsprobe"
	"github.com/materials-commons/dsstage/pkg/location"
)

// AnyDotDDirectory as a directory pattern matches instrument directories with
// a .d extension. Directory patterns ending in .d match recursively in the
// archive.
const AnyDotDDirectory = "*.d"

// Request describes what to look for. FileNamePattern and DirNamePattern may
// contain wildcards; either or both may be empty.
type Request struct {
	// DatasetName overrides the dataset named in the job parameters.
	DatasetName string

	FileNamePattern string
	DirNamePattern  string
	MaxAttempts     int
	LogIfMissing    bool

	// IsInstrumentDataLookup marks a search for raw instrument data, which
	// can skip primary storage once the data was purged from it.
	IsInstrumentDataLookup bool

	// AssumeUnpurged asks for the path where the data is expected to be.
	// Only primary storage and the transfer directory are checked, once, and
	// a miss isn't reported as a warning.
	AssumeUnpurged bool
}

// CandidatePath is one location to probe.
type CandidatePath struct {
	Location      location.Location
	WarnIfMissing bool
}

// ResolvedLocation is the result of Resolve. When nothing matched, BestPath is
// still set to the first candidate so callers have somewhere to report.
type ResolvedLocation struct {
	BestPath        location.Location
	Found           bool
	NotFoundMessage string

	// ArchiveFileIDs is only set when BestPath is in the archive and files
	// matched. Sorted ascending without duplicates.
	ArchiveFileIDs []int64
	ArchiveFiles   []archive.FileDescriptor

	// ArchiveExcluded is true when the archive tier was left out of the
	// search on purpose.
	ArchiveExcluded bool
}

// NewestArchiveFileID returns the highest matching archive file ID.
func (r ResolvedLocation) NewestArchiveFileID() (int64, bool) {
	if len(r.ArchiveFileIDs) == 0 {
		return 0, false
	}

	return r.ArchiveFileIDs[len(r.ArchiveFileIDs)-1], true
}

type Searcher struct {
	params     config.ParamSource
	checker    *fsprobe.Checker
	archive    archive.Client
	log        log.Interface
	debugLevel int
}

type SearcherOptionFN func(*Searcher)

// NewSearcher creates a Searcher. client may be nil, in which case the
// archive tier is never searched.
func NewSearcher(params config.ParamSource, checker *fsprobe.Checker, client archive.Client, optFNs ...SearcherOptionFN) *Searcher {
	s := &Searcher{
		params:  params,
		checker: checker,
		archive: client,
		log:     log.Log,
	}

	for _, optfn := range optFNs {
		optfn(s)
	}

	return s
}

func WithLogger(l log.Interface) SearcherOptionFN {
	return func(s *Searcher) {
		s.log = l
	}
}

func WithDebugLevel(level int) SearcherOptionFN {
	return func(s *Searcher) {
		s.debugLevel = level
	}
}

func (s *Searcher) fs() afero.Fs {
	return s.checker.Fs()
}

// DatasetName is the dataset searched for when a Request doesn't name one.
func (s *Searcher) DatasetName() string {
	return s.params.GetParam(config.KeyDatasetName)
}

// DatasetFolderName is the dataset's directory name, which is usually but not
// always the dataset name.
func (s *Searcher) DatasetFolderName(datasetName string) string {
	folder := s.params.GetParam(config.KeyDatasetFolderName)
	if folder == "" {
		return datasetName
	}

	return folder
}

// ArchiveClient is the archive the Searcher queries, or nil.
func (s *Searcher) ArchiveClient() archive.Client {
	return s.archive
}

// ArchiveSearchDisabled is true when the archive tier is never searched.
func (s *Searcher) ArchiveSearchDisabled() bool {
	return s.archive == nil || s.params.GetManagerParamBool(config.KeyDisableArchiveSearch, false)
}

// names returns the dataset name and directory name to search for. A request
// that names its own dataset is searched under that name only.
func (s *Searcher) names(req Request) (string, string) {
	if req.DatasetName != "" {
		return req.DatasetName, req.DatasetName
	}

	datasetName := s.DatasetName()
	return datasetName, s.DatasetFolderName(datasetName)
}

// Candidates returns the locations Resolve probes, in order.
func (s *Searcher) Candidates(req Request) []CandidatePath {
	datasetName, folderName := s.names(req)

	var candidates []CandidatePath
	addLocal := func(parent string, warn bool) {
		if parent == "" {
			return
		}

		candidates = append(candidates, CandidatePath{Location: location.Local(filepath.Join(parent, folderName)), WarnIfMissing: warn})
		if !strings.EqualFold(folderName, datasetName) {
			candidates = append(candidates, CandidatePath{Location: location.Local(filepath.Join(parent, datasetName)), WarnIfMissing: warn})
		}
	}

	purged := s.params.GetJobParameterBool(config.SectionJobParameters, config.KeyInstrumentDataPurged, false)
	if !(req.IsInstrumentDataLookup && purged && !req.AssumeUnpurged) {
		addLocal(s.params.GetParam(config.KeyDatasetStoragePath), true)
	}

	archiveDisabled := s.ArchiveSearchDisabled()
	if !archiveDisabled && !req.AssumeUnpurged {
		candidates = append(candidates, CandidatePath{Location: location.Archive(datasetName, ""), WarnIfMissing: true})
	}

	archiveAvailable := s.params.GetManagerParamBool(config.KeyArchiveAvailable, false)
	if (archiveAvailable || archiveDisabled) && !req.AssumeUnpurged {
		addLocal(s.params.GetParam(config.KeyDatasetArchivePath), false)
	}

	addLocal(s.params.GetParam(config.KeyTransferDirectoryPath), false)

	return candidates
}

// Resolve walks the candidates in order and returns the first that has what
// the request asks for. A failure on one candidate never stops the search.
func (s *Searcher) Resolve(req Request) (result ResolvedLocation) {
	if req.AssumeUnpurged {
		req.MaxAttempts = 1
		req.LogIfMissing = false
	}

	datasetName := req.DatasetName
	if datasetName == "" {
		datasetName = s.DatasetName()
	}

	defer func() {
		if r := recover(); r != nil {
			result.Found = false
			result.ArchiveFileIDs = nil
			result.ArchiveFiles = nil
			result.NotFoundMessage = fmt.Sprintf("Error looking for data directory of %s: %v", datasetName, r)
			s.log.WithField("dataset", datasetName).Error(result.NotFoundMessage)
		}
	}()

	candidates := s.Candidates(req)
	req.DatasetName, _ = s.names(req)
	result.ArchiveExcluded = s.ArchiveSearchDisabled() || req.AssumeUnpurged

	if len(candidates) == 0 {
		result.NotFoundMessage = fmt.Sprintf("No storage locations are defined for dataset %s", req.DatasetName)
		s.log.Warn(result.NotFoundMessage)
		return result
	}

	result.BestPath = candidates[0].Location

	for _, candidate := range candidates {
		if s.debugLevel >= 2 {
			s.log.Debugf("Looking for %s", describe(req, candidate.Location))
		}

		match, err := s.evaluate(req, candidate)
		if err != nil {
			s.log.WithError(err).WithField("candidate", candidate.Location.String()).Warn("Error checking candidate directory")
			continue
		}

		if match == nil {
			continue
		}

		result.BestPath = match.location
		result.Found = true
		if match.location.IsArchive() {
			result.ArchiveFiles = match.files
			result.ArchiveFileIDs = archive.FileIDs(match.files)
		}

		if s.debugLevel >= 1 {
			s.log.Debugf("Data directory for %s is %s", req.DatasetName, result.BestPath)
		}

		return result
	}

	result.NotFoundMessage = notFoundMessage(req)
	entry := s.log.WithField("dataset", req.DatasetName).WithField("best_path", result.BestPath.String())
	switch {
	case req.AssumeUnpurged:
		entry.Info(result.NotFoundMessage)
	case req.LogIfMissing:
		entry.Warn(result.NotFoundMessage)
	}

	return result
}

type candidateMatch struct {
	location location.Location
	files    []archive.FileDescriptor
}

func (s *Searcher) evaluate(req Request, candidate CandidatePath) (match *candidateMatch, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("checking %s: %v", candidate.Location, r)
		}
	}()

	if candidate.Location.IsArchive() {
		return s.evaluateArchive(req, candidate.Location)
	}

	return s.evaluateLocal(req, candidate)
}

func (s *Searcher) evaluateArchive(req Request, candidate location.Location) (*candidateMatch, error) {
	// Instrument directories hold their files in nested subdirectories.
	recurse := strings.HasSuffix(strings.ToLower(req.DirNamePattern), ".d")

	namePattern := req.FileNamePattern
	if namePattern == "" {
		namePattern = "*"
	}

	fds, err := s.archive.FindFiles(namePattern, req.DirNamePattern, candidate.Dataset(), recurse)
	if err != nil {
		return nil, err
	}

	if len(fds) == 0 {
		return nil, nil
	}

	loc := candidate
	if req.FileNamePattern != "" && req.DirNamePattern != "" {
		newest, _ := archive.Newest(fds)
		loc = location.Archive(candidate.Dataset(), matchedSubdir(newest, req.DirNamePattern))
	}

	return &candidateMatch{location: loc, files: fds}, nil
}

// matchedSubdir returns the shortest leading part of fd's relative path that
// matches dirPattern.
func matchedSubdir(fd archive.FileDescriptor, dirPattern string) string {
	if !hasWildcard(dirPattern) {
		return dirPattern
	}

	relPath := strings.Trim(strings.ReplaceAll(fd.RelativePath, `\`, "/"), "/")
	segments := strings.Split(relPath, "/")
	for i := 1; i <= len(segments); i++ {
		prefix := strings.Join(segments[:i], "/")
		if matchFold(dirPattern, prefix) {
			return prefix
		}
	}

	return relPath
}

func (s *Searcher) evaluateLocal(req Request, candidate CandidatePath) (*candidateMatch, error) {
	dir := candidate.Location.Path()
	policy := fsprobe.RetryPolicy{
		MaxAttempts:  req.MaxAttempts,
		LogOnFailure: req.LogIfMissing && candidate.WarnIfMissing && s.debugLevel >= 2,
	}

	if !s.checker.DirectoryExists(dir, policy) {
		return nil, nil
	}

	matchDir := dir
	checkSubdir := req.DirNamePattern != ""

	if req.FileNamePattern != "" {
		found, err := s.fileMatches(dir, req.FileNamePattern, policy)
		if err != nil {
			return nil, err
		}

		// A literal file may sit one level down in the requested subdirectory.
		if !found && req.DirNamePattern != "" && !hasWildcard(req.FileNamePattern) && !hasWildcard(req.DirNamePattern) {
			nested := filepath.Join(dir, req.DirNamePattern)
			found, err = s.fileMatches(nested, req.FileNamePattern, policy)
			if err != nil {
				return nil, err
			}

			if found {
				matchDir = nested
				checkSubdir = false
			}
		}

		if !found {
			return nil, nil
		}
	}

	if checkSubdir {
		found, err := s.subdirMatches(dir, req.DirNamePattern, policy)
		if err != nil || !found {
			return nil, err
		}
	}

	return &candidateMatch{location: location.Local(matchDir)}, nil
}

func (s *Searcher) fileMatches(dir, pattern string, policy fsprobe.RetryPolicy) (bool, error) {
	if !hasWildcard(pattern) {
		return s.checker.FileExists(filepath.Join(dir, pattern), policy), nil
	}

	matches, err := ListMatching(s.fs(), dir, pattern, false)
	return len(matches) > 0, err
}

func (s *Searcher) subdirMatches(dir, pattern string, policy fsprobe.RetryPolicy) (bool, error) {
	if !hasWildcard(pattern) {
		return s.checker.DirectoryExists(filepath.Join(dir, pattern), policy), nil
	}

	matches, err := ListMatching(s.fs(), dir, pattern, true)
	return len(matches) > 0, err
}

// ListMatching returns the entries directly in dir whose names match pattern,
// ignoring case. With wantDirs set only directories are returned, otherwise
// only files. The result is sorted by name.
func ListMatching(fs afero.Fs, dir, pattern string, wantDirs bool) ([]os.FileInfo, error) {
	entries, err := afero.ReadDir(fs, dir)
	switch {
	case os.IsNotExist(err):
		return nil, nil
	case err != nil:
		return nil, err
	}

	var matches []os.FileInfo
	for _, entry := range entries {
		if entry.IsDir() != wantDirs {
			continue
		}

		if matchFold(pattern, entry.Name()) {
			matches = append(matches, entry)
		}
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Name() < matches[j].Name() })

	return matches, nil
}

func hasWildcard(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[")
}

func matchFold(pattern, name string) bool {
	matched, err := doublestar.Match(strings.ToLower(pattern), strings.ToLower(name))
	return err == nil && matched
}

func describe(req Request, loc location.Location) string {
	switch {
	case req.FileNamePattern != "" && req.DirNamePattern != "":
		return fmt.Sprintf("%s in %s under %s", req.FileNamePattern, req.DirNamePattern, loc)
	case req.FileNamePattern != "":
		return fmt.Sprintf("%s in %s", req.FileNamePattern, loc)
	case req.DirNamePattern != "":
		return fmt.Sprintf("directory %s in %s", req.DirNamePattern, loc)
	default:
		return loc.String()
	}
}

func notFoundMessage(req Request) string {
	switch {
	case req.FileNamePattern != "" && req.DirNamePattern != "":
		return fmt.Sprintf("Data file %s not found in a %s subdirectory for dataset %s", req.FileNamePattern, req.DirNamePattern, req.DatasetName)
	case req.FileNamePattern != "":
		return fmt.Sprintf("Data file %s not found for dataset %s", req.FileNamePattern, req.DatasetName)
	case req.DirNamePattern != "":
		return fmt.Sprintf("Subdirectory %s not found for dataset %s", req.DirNamePattern, req.DatasetName)
	default:
		return fmt.Sprintf("Data directory not found for dataset %s", req.DatasetName)
	}
}
