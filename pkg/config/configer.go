package config

// Configer holds manager level settings: where the work directory is, which
// storage tiers are reachable and how to reach the archive and status broker.
type Configer interface {
	LoadFromPath(path string) error
	Load() error
	GetKey(key string) string
	MustGetKey(key string) string
	GetKeyWithDefault(key, defaultValue string) string
	GetIntKey(key string) int
	MustGetIntKey(key string) int
	GetIntKeyWithDefault(key string, defaultValue int) int
	GetBoolKeyWithDefault(key string, defaultValue bool) bool
}
