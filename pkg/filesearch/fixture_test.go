package filesearch

import (
	"archive/zip"
	"path/filepath"
	"testing"
	"time"

	"github.com/apex/log/handlers/memory"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/materials-commons/dsstage/pkg/archive"
	"github.com/materials-commons/dsstage/pkg/compress"
	"github.com/materials-commons/dsstage/pkg/config"
	"github.com/materials-commons/dsstage/pkg/dirsearch"
	"github.com/materials-commons/dsstage/pkg/filecopy"
	"github.com/materials-commons/dsstage/pkg/fsprobe"
	"github.com/materials-commons/dsstage/pkg/tutil"
)

var fixtureTime = time.Date(2023, 11, 2, 14, 0, 0, 0, time.UTC)

type fixture struct {
	fs     afero.Fs
	client *archive.InMemoryClient
	queue  *archive.DownloadQueue
	logs   *memory.Handler
	search *FileSearch
}

// newFixture builds a FileSearch over an in-memory filesystem for dataset ds1
// with primary storage /storage/vol1, long-term archive /archive/vol1,
// transfer directory /transfer and work directory /work.
func newFixture(t *testing.T, jobParams, managerParams map[string]string) *fixture {
	t.Helper()

	job := map[string]string{
		config.KeyDatasetName:           "ds1",
		config.KeyDatasetStoragePath:    "/storage/vol1",
		config.KeyDatasetArchivePath:    "/archive/vol1",
		config.KeyTransferDirectoryPath: "/transfer",
	}
	for k, v := range jobParams {
		job[k] = v
	}

	manager := map[string]string{
		config.KeyArchiveAvailable:          "true",
		config.KeyWorkDir:                   "/work",
		config.KeyMSXMLCacheFolderPath:      "/cache",
		config.KeyChameleonCachedDataFolder: "/chameleon",
	}
	for k, v := range managerParams {
		manager[k] = v
	}

	f := &fixture{
		fs:     afero.NewMemMapFs(),
		client: archive.NewInMemoryClient(),
	}
	require.NoError(t, f.fs.MkdirAll("/work", 0755))

	l, h := tutil.NewMemoryLogger()
	f.logs = h

	noSleep := func(time.Duration) {}
	params := config.NewSnapshot(config.NewJobParamsFromMap(job), config.NewMapConfig(manager))
	checker := fsprobe.NewChecker(f.fs, fsprobe.WithLogger(l), fsprobe.WithSleeper(noSleep))
	f.queue = archive.NewDownloadQueue(f.client, f.fs, archive.WithQueueLogger(l))

	copier := filecopy.NewCopier(f.fs,
		filecopy.WithLogger(l),
		filecopy.WithSleeper(noSleep),
		filecopy.WithChecker(checker),
		filecopy.WithDownloadQueue(f.queue))

	searcher := dirsearch.NewSearcher(params, checker, f.client, dirsearch.WithLogger(l))

	deleteQueue := fsprobe.NewDeleteQueue(f.fs,
		fsprobe.WithDeleteQueueLogger(l),
		fsprobe.WithDeleteQueueClock(time.Now, noSleep))

	f.search = NewFileSearch(params, searcher, copier,
		WithLogger(l),
		WithDeleteQueue(deleteQueue),
		WithClock(func() time.Time { return fixtureTime }))

	return f
}

func (f *fixture) writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(f.fs, path, []byte(content), 0644))
	require.NoError(t, f.fs.Chtimes(path, fixtureTime, fixtureTime))
}

func (f *fixture) writeFileAt(t *testing.T, path, content string, modTime time.Time) {
	t.Helper()
	require.NoError(t, afero.WriteFile(f.fs, path, []byte(content), 0644))
	require.NoError(t, f.fs.Chtimes(path, modTime, modTime))
}

func (f *fixture) writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()

	require.NoError(t, f.fs.MkdirAll(filepath.Dir(path), 0755))
	out, err := f.fs.Create(path)
	require.NoError(t, err)

	zw := zip.NewWriter(out)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}

	require.NoError(t, zw.Close())
	require.NoError(t, out.Close())
}

func (f *fixture) requireContent(t *testing.T, path, expected string) {
	t.Helper()
	content, err := afero.ReadFile(f.fs, path)
	require.NoError(t, err, path)
	require.Equal(t, expected, string(content))
}

func (f *fixture) exists(path string) bool {
	ok, _ := afero.Exists(f.fs, path)
	return ok
}

// writeGz writes content gzipped to <dir>/<name>.gz.
func (f *fixture) writeGz(t *testing.T, dir, name, content string, modTime time.Time) string {
	t.Helper()

	scratch := filepath.Join("/scratch", name)
	f.writeFileAt(t, scratch, content, modTime)

	require.NoError(t, f.fs.MkdirAll(dir, 0755))
	gzPath, err := compress.NewTools(f.fs, nil).GZip(scratch, dir)
	require.NoError(t, err)
	require.NoError(t, f.fs.Chtimes(gzPath, modTime, modTime))
	require.NoError(t, f.fs.Remove(scratch))

	return gzPath
}
