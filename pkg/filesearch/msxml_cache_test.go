package filesearch

import (
	"testing"
	"time"

	"github.com/apex/log"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/materials-commons/dsstage/pkg/config"
	"github.com/materials-commons/dsstage/pkg/hashcheck"
	"github.com/materials-commons/dsstage/pkg/tutil"
)

const msxmlInputFolder = "MSXML_Gen_1_194_12345"

func TestCacheToolDirs(t *testing.T) {
	f := newFixture(t, map[string]string{
		config.KeyInputFolderName:      "MSGFPlus_Auto",
		config.KeySharedResultsFolders: "MSXML_Gen_1_194_12345, Mz_Refinery_1_10_555, Results",
	}, nil)

	require.Equal(t, []string{"Mz_Refinery_1_10", "MSXML_Gen_1_194"}, f.search.CacheToolDirs())
}

func TestFindMsXmlFileForJobInCache(t *testing.T) {
	t.Run("newest file wins", func(t *testing.T) {
		f := newFixture(t, map[string]string{config.KeyInputFolderName: msxmlInputFolder}, nil)
		f.writeFileAt(t, "/cache/MSXML_Gen_1_194/2023_1/ds1.mzML.gz", "old", fixtureTime.Add(-90*24*time.Hour))
		f.writeFileAt(t, "/cache/MSXML_Gen_1_194/2023_4/ds1.mzML.gz", "new", fixtureTime)
		f.writeFileAt(t, "/cache/MSXML_Gen_1_194/2023_4/ds2.mzML.gz", "other", fixtureTime.Add(time.Hour))

		path, err := f.search.FindMsXmlFileForJobInCache(ExtMzML)
		require.NoError(t, err)
		require.Equal(t, "/cache/MSXML_Gen_1_194/2023_4/ds1.mzML.gz", path)
	})

	t.Run("not cached", func(t *testing.T) {
		f := newFixture(t, map[string]string{config.KeyInputFolderName: msxmlInputFolder}, nil)
		_, err := f.search.FindMsXmlFileForJobInCache(ExtMzML)
		require.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("cache folder not configured", func(t *testing.T) {
		f := newFixture(t, map[string]string{config.KeyInputFolderName: msxmlInputFolder}, map[string]string{config.KeyMSXMLCacheFolderPath: ""})
		_, err := f.search.FindMsXmlFileForJobInCache(ExtMzML)
		require.Error(t, err)
		require.False(t, errors.Is(err, ErrNotFound))
	})
}

func TestRetrieveCachedMSXMLFile(t *testing.T) {
	const cacheDir = "/cache/MSXML_Gen_1_194/2023_4"

	t.Run("valid cached file is staged and decompressed", func(t *testing.T) {
		f := newFixture(t, map[string]string{config.KeyInputFolderName: msxmlInputFolder}, nil)
		gzPath := f.writeGz(t, cacheDir, "ds1.mzML", "<mzML/>", fixtureTime)
		_, err := hashcheck.NewValidator(f.fs).CreateSidecar(gzPath, hashcheck.MD5)
		require.NoError(t, err)

		path, ok := f.search.RetrieveCachedMSXMLFile(ExtMzML, true)
		require.True(t, ok)
		require.Equal(t, "/work/ds1.mzML", path)
		f.requireContent(t, "/work/ds1.mzML", "<mzML/>")
		require.True(t, f.exists(gzPath))
	})

	t.Run("hash mismatch deletes the cached file and its hashcheck", func(t *testing.T) {
		f := newFixture(t, map[string]string{config.KeyInputFolderName: msxmlInputFolder}, nil)
		gzPath := f.writeGz(t, cacheDir, "ds1.mzML", "<mzML/>", fixtureTime)
		fi, err := f.fs.Stat(gzPath)
		require.NoError(t, err)

		validator := hashcheck.NewValidator(f.fs)
		require.NoError(t, validator.WriteRecord(hashcheck.SidecarPath(gzPath), hashcheck.Record{
			Algorithm:   hashcheck.MD5,
			Hash:        "00000000000000000000000000000000",
			Size:        fi.Size(),
			ModifiedUTC: fixtureTime,
		}))

		path, ok := f.search.RetrieveCachedMSXMLFile(ExtMzML, true)
		require.False(t, ok)
		require.Empty(t, path)
		require.False(t, f.exists(gzPath))
		require.False(t, f.exists(hashcheck.SidecarPath(gzPath)))
		require.False(t, f.exists("/work/ds1.mzML.gz"))
		require.Equal(t, []string{"Cached file does not match its hashcheck file; deleting it"}, tutil.EntriesAtLevel(f.logs, log.ErrorLevel))
	})

	t.Run("missing hashcheck is a cache miss", func(t *testing.T) {
		f := newFixture(t, map[string]string{config.KeyInputFolderName: msxmlInputFolder}, nil)
		gzPath := f.writeGz(t, cacheDir, "ds1.mzML", "<mzML/>", fixtureTime)

		_, ok := f.search.RetrieveCachedMSXMLFile(ExtMzML, true)
		require.False(t, ok)
		require.True(t, f.exists(gzPath))
		require.Empty(t, tutil.EntriesAtLevel(f.logs, log.ErrorLevel))
		require.Contains(t, tutil.EntriesAtLevel(f.logs, log.InfoLevel), "Cached file has no hashcheck file; it will be regenerated")
	})

	t.Run("falls back to the dataset directories", func(t *testing.T) {
		f := newFixture(t, map[string]string{config.KeyInputFolderName: msxmlInputFolder}, nil)
		f.writeGz(t, "/storage/vol1/ds1/"+msxmlInputFolder, "ds1.mzML", "<mzML id=\"ds1\"/>", fixtureTime)

		path, ok := f.search.RetrieveCachedMSXMLFile(ExtMzML, true)
		require.True(t, ok)
		require.Equal(t, "/work/ds1.mzML", path)
		f.requireContent(t, path, "<mzML id=\"ds1\"/>")
	})

	t.Run("compressed file kept when not decompressing", func(t *testing.T) {
		f := newFixture(t, map[string]string{config.KeyInputFolderName: msxmlInputFolder}, nil)
		gzPath := f.writeGz(t, cacheDir, "ds1.mzML", "<mzML/>", fixtureTime)
		_, err := hashcheck.NewValidator(f.fs).CreateSidecar(gzPath, hashcheck.MD5)
		require.NoError(t, err)

		path, ok := f.search.RetrieveCachedMSXMLFile(ExtMzML, false)
		require.True(t, ok)
		require.Equal(t, "/work/ds1.mzML.gz", path)
		require.False(t, f.exists("/work/ds1.mzML"))
	})
}

func TestCacheMSXMLFile(t *testing.T) {
	t.Run("uncompressed file is gzipped and can be retrieved", func(t *testing.T) {
		f := newFixture(t, map[string]string{config.KeyInputFolderName: msxmlInputFolder}, nil)
		f.writeFile(t, "/work/ds1.mzML", "<mzML/>")

		cachedPath, ok := f.search.CacheMSXMLFile("/work/ds1.mzML", "")
		require.True(t, ok)
		require.Equal(t, "/cache/MSXML_Gen_1_194/2023_4/ds1.mzML.gz", cachedPath)
		require.True(t, f.exists(hashcheck.SidecarPath(cachedPath)))

		require.NoError(t, f.fs.Remove("/work/ds1.mzML"))
		path, ok := f.search.RetrieveCachedMSXMLFile(ExtMzML, true)
		require.True(t, ok)
		f.requireContent(t, path, "<mzML/>")
	})

	t.Run("gzipped file is copied to the named tool directory", func(t *testing.T) {
		f := newFixture(t, map[string]string{config.KeyInputFolderName: msxmlInputFolder}, nil)
		gzPath := f.writeGz(t, "/work", "ds1.mzML", "<mzML/>", fixtureTime)

		cachedPath, ok := f.search.CacheMSXMLFile(gzPath, "Mz_Refinery_1_10")
		require.True(t, ok)
		require.Equal(t, "/cache/Mz_Refinery_1_10/2023_4/ds1.mzML.gz", cachedPath)
		require.True(t, f.exists(gzPath))

		v := hashcheck.NewValidator(f.fs).Validate(cachedPath, hashcheck.SidecarPath(cachedPath), hashcheck.MD5, 0)
		require.True(t, v.IsValid)
	})

	t.Run("failures", func(t *testing.T) {
		tests := []struct {
			name    string
			job     map[string]string
			manager map[string]string
			file    string
		}{
			{name: "cache folder not configured", job: map[string]string{config.KeyInputFolderName: msxmlInputFolder}, manager: map[string]string{config.KeyMSXMLCacheFolderPath: ""}, file: "/work/ds1.mzML"},
			{name: "no tool directory", file: "/work/ds1.mzML"},
			{name: "missing file", job: map[string]string{config.KeyInputFolderName: msxmlInputFolder}, file: "/work/ds2.mzML"},
		}

		for _, test := range tests {
			t.Run(test.name, func(t *testing.T) {
				f := newFixture(t, test.job, test.manager)
				f.writeFile(t, "/work/ds1.mzML", "<mzML/>")

				_, ok := f.search.CacheMSXMLFile(test.file, "")
				require.False(t, ok)
				require.NotEmpty(t, tutil.EntriesAtLevel(f.logs, log.ErrorLevel))
			})
		}
	})
}
