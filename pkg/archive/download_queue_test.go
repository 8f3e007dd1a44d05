package archive

import (
	"errors"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func newTestClient() *InMemoryClient {
	stored := time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC)
	return NewInMemoryClient().
		AddFile(FileDescriptor{FileID: 100, FileName: "ds1.raw", DatasetName: "ds1", UpdatedAt: stored}, []byte("old raw")).
		AddFile(FileDescriptor{FileID: 250, FileName: "ds1.raw", DatasetName: "ds1", UpdatedAt: stored}, []byte("new raw")).
		AddFile(FileDescriptor{FileID: 300, FileName: "ds1_ScanStats.txt", RelativePath: "SIC1", DatasetName: "ds1"}, []byte("stats"))
}

func TestDownloadQueue_EnqueueFilePicksNewest(t *testing.T) {
	fs := afero.NewMemMapFs()
	q := NewDownloadQueue(newTestClient(), fs)

	require.True(t, q.EnqueueFile("ds1", "", "ds1.raw"))
	require.True(t, q.EnqueueFile("ds1", "", "ds1.raw"))
	require.Equal(t, 1, q.Len())
	require.Equal(t, int64(250), q.Pending()[0].FileID)

	require.True(t, q.Flush("/work", LayoutFlat))
	require.Equal(t, 0, q.Len())

	content, err := afero.ReadFile(fs, "/work/ds1.raw")
	require.NoError(t, err)
	require.Equal(t, "new raw", string(content))

	fi, err := fs.Stat("/work/ds1.raw")
	require.NoError(t, err)
	require.True(t, fi.ModTime().Equal(time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC)))
	require.Equal(t, "/work/ds1.raw", q.Downloaded()[250])
}

func TestDownloadQueue_Layouts(t *testing.T) {
	fd := FileDescriptor{FileID: 300, FileName: "ds1_ScanStats.txt", RelativePath: "SIC1", DatasetName: "ds1"}

	require.Equal(t, "/work/ds1_ScanStats.txt", LocalPath("/work", fd, LayoutFlat))
	require.Equal(t, "/work/SIC1/ds1_ScanStats.txt", LocalPath("/work", fd, LayoutKeepSubdirectories))
	require.Equal(t, "/work/ds1/SIC1/ds1_ScanStats.txt", LocalPath("/work", fd, LayoutDatasetAndSubdirectories))
}

func TestDownloadQueue_FailuresReported(t *testing.T) {
	fs := afero.NewMemMapFs()
	client := newTestClient()
	q := NewDownloadQueue(client, fs)

	require.True(t, q.Enqueue(FileDescriptor{FileID: 999, FileName: "ghost.txt", DatasetName: "ds1"}))
	require.True(t, q.Enqueue(FileDescriptor{FileID: 300, FileName: "ds1_ScanStats.txt", RelativePath: "SIC1", DatasetName: "ds1"}))
	require.False(t, q.Enqueue(FileDescriptor{FileID: 5, FileName: "dir", IsDirectory: true}))

	require.False(t, q.Flush("/work", LayoutFlat))

	exists, _ := afero.Exists(fs, "/work/ghost.txt")
	require.False(t, exists)
	exists, _ = afero.Exists(fs, "/work/ds1_ScanStats.txt")
	require.True(t, exists)
}

func TestDownloadQueue_EnqueueFileLookupError(t *testing.T) {
	client := newTestClient()
	client.ErrToReturn = errors.New("service unavailable")
	q := NewDownloadQueue(client, afero.NewMemMapFs())

	require.False(t, q.EnqueueFile("ds1", "", "ds1.raw"))
	require.False(t, q.EnqueueFile("nope", "", "ds1.raw"))
	require.Equal(t, 0, q.Len())
}

func TestDownloadQueue_EnqueueFileAs(t *testing.T) {
	tests := []struct {
		name     string
		layout   Layout
		expected string
	}{
		{name: "flat", layout: LayoutFlat, expected: "/work/ds1_stats.txt"},
		{name: "keep subdirectories", layout: LayoutKeepSubdirectories, expected: "/work/SIC1/ds1_stats.txt"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			q := NewDownloadQueue(newTestClient(), fs)

			require.True(t, q.EnqueueFileAs("ds1", "SIC1", "ds1_ScanStats.txt", "ds1_stats.txt"))
			require.True(t, q.Flush("/work", test.layout))
			require.Equal(t, test.expected, q.Downloaded()[300])

			content, err := afero.ReadFile(fs, test.expected)
			require.NoError(t, err)
			require.Equal(t, "stats", string(content))
		})
	}
}

func TestDownloadQueue_NoClient(t *testing.T) {
	q := NewDownloadQueue(nil, afero.NewMemMapFs())

	require.False(t, q.EnqueueFile("ds1", "", "ds1.raw"))
	require.True(t, q.Enqueue(FileDescriptor{FileID: 1, FileName: "ds1.raw", DatasetName: "ds1"}))
	require.False(t, q.Flush("/work", LayoutFlat))
}
