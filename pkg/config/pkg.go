package config

// The process-wide manager settings. Only cmd code reads these; the staging
// packages are handed a ParamSource instead.
var configer Configer = NewDotenvConfig("~/.dsstage.env")

func SetConfig(c Configer) {
	configer = c
}

func GetConfig() Configer {
	return configer
}

func GetKey(key string) string {
	return configer.GetKey(key)
}

func GetKeyWithDefault(key, defaultValue string) string {
	return configer.GetKeyWithDefault(key, defaultValue)
}

func GetIntKeyWithDefault(key string, defaultValue int) int {
	return configer.GetIntKeyWithDefault(key, defaultValue)
}
