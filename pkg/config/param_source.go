package config

// Manager setting keys.
const (
	KeyWorkDir                   = "WorkDir"
	KeyArchiveAvailable          = "ArchiveAvailable"
	KeyDisableArchiveSearch      = "DisableArchiveSearch"
	KeyMSXMLCacheFolderPath      = "MSXMLCacheFolderPath"
	KeyChameleonCachedDataFolder = "ChameleonCachedDataFolder"
	KeyArchiveBaseURL            = "ArchiveBaseURL"
	KeyStatusBrokerURL           = "StatusBrokerURL"
	KeyManagerName               = "ManagerName"
	KeyManagerDir                = "ManagerDir"
	KeyArchiveAuthToken          = "ArchiveAuthToken"
	KeyStatusDBPath              = "StatusDBPath"
	KeyDebugLevel                = "DebugLevel"
	KeyJobLogLevel               = "JobLogLevel"
)

// ParamSource is the read-only view of job and manager parameters that the
// staging components are built with.
type ParamSource interface {
	// GetParam looks a job parameter up in every section.
	GetParam(key string) string
	GetJobParameter(section, key, defaultValue string) string
	GetJobParameterBool(section, key string, defaultValue bool) bool
	GetJobParameterInt(section, key string, defaultValue int) int

	GetManagerParam(key, defaultValue string) string
	GetManagerParamBool(key string, defaultValue bool) bool
}

// Snapshot combines the parameters of one job step with the manager settings.
type Snapshot struct {
	Job     *JobParams
	Manager Configer
}

func NewSnapshot(job *JobParams, manager Configer) *Snapshot {
	if job == nil {
		job = NewJobParams()
	}

	if manager == nil {
		manager = NewMapConfig(nil)
	}

	return &Snapshot{Job: job, Manager: manager}
}

func (s *Snapshot) GetParam(key string) string {
	return s.Job.GetParam(key)
}

func (s *Snapshot) GetJobParameter(section, key, defaultValue string) string {
	return s.Job.GetJobParameter(section, key, defaultValue)
}

func (s *Snapshot) GetJobParameterBool(section, key string, defaultValue bool) bool {
	return s.Job.GetJobParameterBool(section, key, defaultValue)
}

func (s *Snapshot) GetJobParameterInt(section, key string, defaultValue int) int {
	return s.Job.GetJobParameterInt(section, key, defaultValue)
}

func (s *Snapshot) GetManagerParam(key, defaultValue string) string {
	return s.Manager.GetKeyWithDefault(key, defaultValue)
}

func (s *Snapshot) GetManagerParamBool(key string, defaultValue bool) bool {
	return s.Manager.GetBoolKeyWithDefault(key, defaultValue)
}
