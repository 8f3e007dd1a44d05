package filesearch

import (
	"path/filepath"
	"strings"

	"github.com/materials-commons/dsstage/pkg/archive"
	"github.com/materials-commons/dsstage/pkg/config"
	"github.com/materials-commons/dsstage/pkg/dirsearch"
	"github.com/materials-commons/dsstage/pkg/filecopy"
	"github.com/materials-commons/dsstage/pkg/location"
)

// RawDataType names how an instrument stores a dataset's spectra.
type RawDataType string

const (
	RawDataTypeThermoRaw          RawDataType = "dot_raw_files"
	RawDataTypeWiff               RawDataType = "dot_wiff_files"
	RawDataTypeUIMF               RawDataType = "dot_uimf_files"
	RawDataTypeMzML               RawDataType = "dot_mzml_files"
	RawDataTypeDotDFolders        RawDataType = "dot_d_folders"
	RawDataTypeBrukerMALDIImaging RawDataType = "bruker_maldi_imaging"
)

func (t RawDataType) fileExtension() string {
	switch t {
	case RawDataTypeThermoRaw:
		return ".raw"
	case RawDataTypeWiff:
		return ".wiff"
	case RawDataTypeUIMF:
		return ".uimf"
	case RawDataTypeMzML:
		return ".mzML"
	default:
		return ""
	}
}

// RawDataTypeFromParams returns the job's raw data type.
func RawDataTypeFromParams(params config.ParamSource) RawDataType {
	return RawDataType(strings.ToLower(params.GetParam(config.KeyRawDataType)))
}

// RetrieveSpectra stages the dataset's instrument data into the work
// directory. When the job asks for storage path info only, files get a
// StoragePathInfo reference instead of a copy.
func (s *FileSearch) RetrieveSpectra(rawDataType RawDataType) bool {
	dataset := s.datasetName()

	switch rawDataType {
	case RawDataTypeThermoRaw, RawDataTypeUIMF, RawDataTypeMzML:
		return s.retrieveDatasetFile(dataset+rawDataType.fileExtension(), false)

	case RawDataTypeWiff:
		if !s.retrieveDatasetFile(dataset+".wiff", false) {
			return false
		}

		// Older instruments don't write a scan file.
		s.retrieveDatasetFile(dataset+".wiff.scan", true)
		return true

	case RawDataTypeDotDFolders:
		return s.retrieveDotDFolder(dataset + ".d")

	case RawDataTypeBrukerMALDIImaging:
		copyLocally := s.params.GetJobParameterBool(config.SectionJobParameters, config.KeyCopyImagingZipsLocally, false)
		return s.RetrieveBrukerMALDIImagingFolders(!copyLocally)

	default:
		s.log.Errorf("Unsupported raw data type %q for dataset %s", string(rawDataType), dataset)
		return false
	}
}

// retrieveDatasetFile resolves the instrument data directory and stages one
// file from it.
func (s *FileSearch) retrieveDatasetFile(fileName string, optional bool) bool {
	resolved := s.searcher.Resolve(dirsearch.Request{
		FileNamePattern:        fileName,
		MaxAttempts:            defaultMaxAttempts,
		LogIfMissing:           !optional,
		IsInstrumentDataLookup: true,
	})

	if !resolved.Found {
		if !optional {
			s.log.WithField("dataset", s.datasetName()).Error(resolved.NotFoundMessage)
		}
		return false
	}

	opts := filecopy.DefaultCopyOptions()
	opts.LazyReferenceOnly = s.storagePathInfoOnly() && resolved.BestPath.IsLocal()

	_, ok := s.copier.CopyToWorkDir(fileName, resolved.BestPath, s.workDir, opts)
	return ok
}

func (s *FileSearch) retrieveDotDFolder(dirName string) bool {
	resolved := s.searcher.Resolve(dirsearch.Request{
		DirNamePattern:         dirName,
		MaxAttempts:            defaultMaxAttempts,
		LogIfMissing:           true,
		IsInstrumentDataLookup: true,
	})

	if !resolved.Found {
		s.log.WithField("dataset", s.datasetName()).Error(resolved.NotFoundMessage)
		return false
	}

	if resolved.BestPath.IsArchive() {
		return s.retrieveArchiveDirectory(resolved.BestPath, dirName)
	}

	src := filepath.Join(resolved.BestPath.Path(), dirName)
	dest := filepath.Join(s.workDir, dirName)

	if s.storagePathInfoOnly() {
		if _, err := s.copier.WriteStoragePathInfo(src, dest); err != nil {
			s.log.WithError(err).Errorf("Error creating storage path info file for %s", src)
			return false
		}
		return true
	}

	if _, err := s.copier.CopyDirectory(src, dest, "", true); err != nil {
		s.log.WithError(err).Errorf("Error copying %s to %s", src, dest)
		return false
	}

	return true
}

// retrieveArchiveDirectory downloads every file below dirName, keeping the
// directory structure.
func (s *FileSearch) retrieveArchiveDirectory(datasetDir location.Location, dirName string) bool {
	q := s.copier.DownloadQueue()
	if q == nil {
		s.log.Errorf("Cannot retrieve %s from the archive; no download queue configured", dirName)
		return false
	}

	fds, err := q.Client().FindFiles("*", dirName, datasetDir.Dataset(), true)
	if err != nil {
		s.log.WithError(err).Errorf("Error listing %s in the archive", dirName)
		return false
	}

	if len(fds) == 0 {
		s.log.Errorf("No files found in %s in the archive", datasetDir.Join(dirName))
		return false
	}

	for _, fd := range fds {
		q.Enqueue(fd)
	}

	return q.Flush(s.workDir, archive.LayoutKeepSubdirectories)
}
