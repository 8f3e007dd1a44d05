package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMapConfig(t *testing.T) {
	c := NewMapConfig(map[string]string{
		KeyWorkDir:          " /work ",
		KeyArchiveAvailable: "yes",
		KeyDebugLevel:       "2",
		"Holdoff":           "soon",
	})

	tests := []struct {
		name     string
		got      interface{}
		expected interface{}
	}{
		{name: "trimmed", got: c.GetKey(KeyWorkDir), expected: "/work"},
		{name: "case insensitive", got: c.GetKey("workdir"), expected: "/work"},
		{name: "missing", got: c.GetKey(KeyManagerDir), expected: ""},
		{name: "default", got: c.GetKeyWithDefault(KeyManagerDir, "."), expected: "."},
		{name: "bool", got: c.GetBoolKeyWithDefault(KeyArchiveAvailable, false), expected: true},
		{name: "bool default", got: c.GetBoolKeyWithDefault(KeyDisableArchiveSearch, true), expected: true},
		{name: "int", got: c.GetIntKeyWithDefault(KeyDebugLevel, 1), expected: 2},
		{name: "bad int", got: c.GetIntKeyWithDefault("Holdoff", 5), expected: 5},
		{name: "missing int", got: c.GetIntKey(KeyDebugLevel + "X"), expected: 0},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require.Equal(t, test.expected, test.got)
		})
	}
}

func TestMapConfig_LoadFromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manager.env")
	require.NoError(t, os.WriteFile(path, []byte("WorkDir=/work/Pub-12-1\nArchiveBaseURL=https://archive.example.org\n"), 0644))

	c := NewMapConfig(map[string]string{KeyWorkDir: "/work", KeyManagerName: "Pub-12-1"})
	require.NoError(t, c.LoadFromPath(path))
	require.Equal(t, "/work/Pub-12-1", c.GetKey(KeyWorkDir))
	require.Equal(t, "https://archive.example.org", c.GetKey(KeyArchiveBaseURL))
	require.Equal(t, "Pub-12-1", c.GetKey(KeyManagerName))

	require.NoError(t, os.WriteFile(path, []byte("WorkDir=/work/Pub-12-2\n"), 0644))
	require.NoError(t, c.Load())
	require.Equal(t, "/work/Pub-12-2", c.GetKey(KeyWorkDir))

	require.Error(t, c.LoadFromPath(filepath.Join(t.TempDir(), "missing.env")))
}

func TestDotenvConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dsstage.env")
	require.NoError(t, os.WriteFile(path, []byte("DSSTAGE_CONFIG_TEST_DIR=/from/file\nDSSTAGE_CONFIG_TEST_LEVEL=3\n"), 0644))
	t.Setenv("DSSTAGE_CONFIG_TEST_DIR", "/from/env")
	t.Cleanup(func() { _ = os.Unsetenv("DSSTAGE_CONFIG_TEST_LEVEL") })

	c := NewDotenvConfig(path)
	require.NoError(t, c.Load())
	require.Equal(t, "/from/env", c.GetKey("DSSTAGE_CONFIG_TEST_DIR"))
	require.Equal(t, 3, c.GetIntKeyWithDefault("DSSTAGE_CONFIG_TEST_LEVEL", 1))
}
