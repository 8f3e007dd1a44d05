package config

import (
	"os"

	"github.com/subosito/gotenv"
)

// DotenvConfig reads manager settings from the process environment after
// loading them from a dotenv file. Variables already set in the environment
// win over the file.
type DotenvConfig struct {
	keyReader
	DotenvPath string
}

func NewDotenvConfig(path string) *DotenvConfig {
	return &DotenvConfig{keyReader: keyReader{lookup: os.LookupEnv}, DotenvPath: path}
}

func (c *DotenvConfig) LoadFromPath(path string) error {
	c.DotenvPath = path
	return c.Load()
}

func (c *DotenvConfig) Load() error {
	path, err := ExpandPath(c.DotenvPath)
	if err != nil {
		return err
	}

	return gotenv.Load(path)
}
