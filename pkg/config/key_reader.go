package config

import (
	"strconv"
	"strings"

	"github.com/apex/log"
)

// keyReader implements the typed Configer getters over a raw lookup. Values
// are trimmed and an empty value counts as unset.
type keyReader struct {
	lookup func(key string) (string, bool)
}

func (r keyReader) GetKey(key string) string {
	val, ok := r.lookup(key)
	if !ok {
		return ""
	}

	return strings.TrimSpace(val)
}

func (r keyReader) MustGetKey(key string) string {
	val := r.GetKey(key)
	if val == "" {
		log.Fatalf("No such required manager setting: '%s'", key)
	}

	return val
}

func (r keyReader) GetKeyWithDefault(key, defaultValue string) string {
	if val := r.GetKey(key); val != "" {
		return val
	}

	return defaultValue
}

func (r keyReader) GetIntKey(key string) int {
	return r.GetIntKeyWithDefault(key, 0)
}

func (r keyReader) MustGetIntKey(key string) int {
	intVal, err := strconv.Atoi(r.GetKey(key))
	if err != nil {
		log.Fatalf("Manager setting either doesn't exist or isn't an int: '%s': %s", key, err)
	}

	return intVal
}

func (r keyReader) GetIntKeyWithDefault(key string, defaultValue int) int {
	intVal, err := strconv.Atoi(r.GetKey(key))
	if err != nil {
		return defaultValue
	}

	return intVal
}

func (r keyReader) GetBoolKeyWithDefault(key string, defaultValue bool) bool {
	return parseBool(r.GetKey(key), defaultValue)
}
