package config

import (
	"strconv"
	"strings"

	"github.com/mitchellh/go-homedir"
)

// ExpandPath replaces a leading ~ with the user's home directory.
func ExpandPath(path string) (string, error) {
	return homedir.Expand(path)
}

// parseBool accepts the usual strconv forms plus yes/no, which is how older
// job parameter files spell flags.
func parseBool(val string, defaultValue bool) bool {
	val = strings.TrimSpace(val)
	if val == "" {
		return defaultValue
	}

	switch strings.ToLower(val) {
	case "yes", "y", "on":
		return true
	case "no", "n", "off":
		return false
	}

	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultValue
	}

	return b
}
