package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadJobParams(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "JobParams.env")
	content := `# step 3 of job 1234
JobParameters.DatasetName=QC_Mam_19_01_a
JobParameters.DatasetStoragePath=\\proto-7\QExactHF03\2023_4\
JobParameters.InstrumentDataPurged=yes
JobParameters.MSXMLCacheRecheckDays=7
StepParameters.ToolName=MSGFPlus_MzML
StepParameters.SharedResultsFolders="MSXML_Gen_1_194_12345, MSXML_Gen_1_193_12344"
Step=3
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	p, err := LoadJobParams(path)
	require.NoError(t, err)

	require.Equal(t, "QC_Mam_19_01_a", p.GetParam(KeyDatasetName))
	require.Equal(t, `\\proto-7\QExactHF03\2023_4\`, p.GetJobParameter(SectionJobParameters, KeyDatasetStoragePath, ""))
	require.True(t, p.GetJobParameterBool(SectionJobParameters, KeyInstrumentDataPurged, false))
	require.Equal(t, 7, p.GetJobParameterInt(SectionJobParameters, KeyMSXMLCacheRecheckDays, 1))
	require.Equal(t, "3", p.GetJobParameter(SectionJobParameters, KeyStep, ""))

	// Not in JobParameters, so only found by searching every section.
	require.Equal(t, "", p.GetJobParameter(SectionJobParameters, KeyToolName, ""))
	require.Equal(t, "MSGFPlus_MzML", p.GetParam(KeyToolName))
	require.Equal(t, "MSXML_Gen_1_194_12345, MSXML_Gen_1_193_12344", p.GetParam(KeySharedResultsFolders))

	_, err = LoadJobParams(filepath.Join(dir, "missing.env"))
	require.Error(t, err)
}

func TestJobParamsDefaults(t *testing.T) {
	p := NewJobParamsFromMap(map[string]string{
		"DatasetName":                             "ds1",
		"JobParameters.StoragePathInfoOnly":       "not a bool",
		"JobParameters.MALDI_Imaging_EndSectionX": "x",
	})

	tests := []struct {
		name     string
		got      any
		expected any
	}{
		{name: "key without section", got: p.GetParam("datasetname"), expected: "ds1"},
		{name: "missing string", got: p.GetJobParameter(SectionJobParameters, KeyRawDataType, "dot_raw_files"), expected: "dot_raw_files"},
		{name: "bad bool", got: p.GetJobParameterBool(SectionJobParameters, KeyStoragePathInfoOnly, true), expected: true},
		{name: "bad int", got: p.GetJobParameterInt(SectionJobParameters, KeyMALDIImagingEndSectionX, -1), expected: -1},
		{name: "missing section", got: p.GetJobParameter("Nope", KeyDatasetName, "d"), expected: "d"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require.Equal(t, test.expected, test.got)
		})
	}
}

func TestSnapshot(t *testing.T) {
	s := NewSnapshot(nil, NewMapConfig(map[string]string{
		KeyArchiveAvailable:     "true",
		KeyDisableArchiveSearch: "no",
	}))

	s.Job.Set(SectionJobParameters, KeyDatasetName, "ds2")

	require.Equal(t, "ds2", s.GetParam(KeyDatasetName))
	require.True(t, s.GetManagerParamBool(KeyArchiveAvailable, false))
	require.False(t, s.GetManagerParamBool(KeyDisableArchiveSearch, true))
	require.Equal(t, "/tmp/work", s.GetManagerParam(KeyWorkDir, "/tmp/work"))
}
