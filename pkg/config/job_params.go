package config

import (
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/subosito/gotenv"
)

// Job parameter sections.
const (
	SectionJobParameters  = "JobParameters"
	SectionStepParameters = "StepParameters"
)

// Job parameter keys read by the staging code, all in the JobParameters
// section.
const (
	KeyDatasetName               = "DatasetName"
	KeyDatasetFolderName         = "DatasetFolderName"
	KeyDatasetStoragePath        = "DatasetStoragePath"
	KeyDatasetArchivePath        = "DatasetArchivePath"
	KeyTransferDirectoryPath     = "TransferDirectoryPath"
	KeyInstrumentDataPurged      = "InstrumentDataPurged"
	KeyInputFolderName           = "InputFolderName"
	KeySharedResultsFolders      = "SharedResultsFolders"
	KeyToolName                  = "ToolName"
	KeyRawDataType               = "RawDataType"
	KeyDataPackagePath           = "DataPackagePath"
	KeyStoragePathInfoOnly       = "StoragePathInfoOnly"
	KeyMSXMLCacheRecheckDays     = "MSXMLCacheRecheckDays"
	KeyMALDIImagingStartSectionX = "MALDI_Imaging_StartSectionX"
	KeyMALDIImagingEndSectionX   = "MALDI_Imaging_EndSectionX"
	KeyCopyImagingZipsLocally    = "CopyImagingZipsLocally"
	KeyJob                       = "Job"
	KeyStep                      = "Step"
)

// JobParams holds the parameters of one job step, grouped into sections. Keys
// are matched without regard to case. A JobParams is safe for concurrent use.
type JobParams struct {
	mu       sync.RWMutex
	sections map[string]map[string]string
	order    []string
}

func NewJobParams() *JobParams {
	return &JobParams{sections: make(map[string]map[string]string)}
}

// NewJobParamsFromMap builds parameters from "Section.Key" -> value entries.
// Keys without a section go into JobParameters.
func NewJobParamsFromMap(entries map[string]string) *JobParams {
	p := NewJobParams()

	// Sort so section order doesn't depend on map iteration.
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		section, key := splitSectionKey(k)
		p.Set(section, key, entries[k])
	}

	return p
}

// LoadJobParams reads a dotenv style file whose keys are "Section.Key".
func LoadJobParams(path string) (*JobParams, error) {
	expanded, err := ExpandPath(path)
	if err != nil {
		return nil, err
	}

	env, err := gotenv.Read(expanded)
	if err != nil {
		return nil, errors.Wrapf(err, "reading job parameters from %s", path)
	}

	return NewJobParamsFromMap(env), nil
}

func splitSectionKey(k string) (string, string) {
	i := strings.Index(k, ".")
	if i < 0 {
		return SectionJobParameters, k
	}

	return k[:i], k[i+1:]
}

// Set stores a value, creating the section when needed.
func (p *JobParams) Set(section, key, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	sectionKey := strings.ToLower(section)
	values, ok := p.sections[sectionKey]
	if !ok {
		values = make(map[string]string)
		p.sections[sectionKey] = values
		p.order = append(p.order, sectionKey)
	}

	values[strings.ToLower(key)] = value
}

// Lookup returns the value of key in section and whether it was present.
func (p *JobParams) Lookup(section, key string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	values, ok := p.sections[strings.ToLower(section)]
	if !ok {
		return "", false
	}

	val, ok := values[strings.ToLower(key)]
	return val, ok
}

// GetParam searches every section for key, JobParameters first, and returns
// the empty string when it is not set anywhere.
func (p *JobParams) GetParam(key string) string {
	if val, ok := p.Lookup(SectionJobParameters, key); ok {
		return val
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	lowerKey := strings.ToLower(key)
	for _, section := range p.order {
		if val, ok := p.sections[section][lowerKey]; ok {
			return val
		}
	}

	return ""
}

func (p *JobParams) GetJobParameter(section, key, defaultValue string) string {
	val, ok := p.Lookup(section, key)
	if !ok || val == "" {
		return defaultValue
	}

	return val
}

func (p *JobParams) GetJobParameterBool(section, key string, defaultValue bool) bool {
	val, _ := p.Lookup(section, key)
	return parseBool(val, defaultValue)
}

func (p *JobParams) GetJobParameterInt(section, key string, defaultValue int) int {
	val, ok := p.Lookup(section, key)
	if !ok {
		return defaultValue
	}

	intVal, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil {
		return defaultValue
	}

	return intVal
}
