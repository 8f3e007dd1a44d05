package archive

import (
	"path/filepath"
	"sync"

	"github.com/apex/log"
	"github.com/spf13/afero"
)

// Layout controls where Flush places downloaded files under the target
// directory.
type Layout int

const (
	// LayoutFlat puts every file directly in the target directory.
	LayoutFlat Layout = iota

	// LayoutKeepSubdirectories recreates the file's subdirectory within the
	// dataset.
	LayoutKeepSubdirectories

	// LayoutDatasetAndSubdirectories adds a directory named after the dataset
	// above the recreated subdirectories.
	LayoutDatasetAndSubdirectories
)

// DownloadQueue collects files to fetch from the archive and downloads them in
// one batch. Callers enqueue while resolving and flush once at the end.
type DownloadQueue struct {
	client Client
	fs     afero.Fs
	log    log.Interface

	mu         sync.Mutex
	queued     []queuedFile
	queuedIDs  map[int64]bool
	downloaded map[int64]string
}

// queuedFile is a file waiting for Flush. An empty localName keeps the
// archive file name.
type queuedFile struct {
	fd        FileDescriptor
	localName string
}

type DownloadQueueOptionFN func(*DownloadQueue)

func NewDownloadQueue(client Client, fs afero.Fs, optFNs ...DownloadQueueOptionFN) *DownloadQueue {
	q := &DownloadQueue{
		client:     client,
		fs:         fs,
		log:        log.Log,
		queuedIDs:  make(map[int64]bool),
		downloaded: make(map[int64]string),
	}

	for _, optfn := range optFNs {
		optfn(q)
	}

	return q
}

func WithQueueLogger(l log.Interface) DownloadQueueOptionFN {
	return func(q *DownloadQueue) {
		q.log = l
	}
}

func (q *DownloadQueue) Client() Client {
	return q.client
}

// Enqueue adds a file. Directories are rejected and duplicates are ignored.
func (q *DownloadQueue) Enqueue(fd FileDescriptor) bool {
	return q.EnqueueAs(fd, "")
}

// EnqueueAs is Enqueue, but Flush saves the file as localName.
func (q *DownloadQueue) EnqueueAs(fd FileDescriptor, localName string) bool {
	if fd.IsDirectory {
		q.log.WithField("file", fd.FileName).Warn("Cannot queue an archive directory for download")
		return false
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.queuedIDs[fd.FileID] {
		return true
	}

	q.queuedIDs[fd.FileID] = true
	q.queued = append(q.queued, queuedFile{fd: fd, localName: localName})

	return true
}

// EnqueueFile looks up fileName under subdir of the dataset and queues the
// newest version.
func (q *DownloadQueue) EnqueueFile(datasetName, subdir, fileName string) bool {
	return q.EnqueueFileAs(datasetName, subdir, fileName, "")
}

// EnqueueFileAs is EnqueueFile, but the download is saved as localName.
func (q *DownloadQueue) EnqueueFileAs(datasetName, subdir, fileName, localName string) bool {
	if q.client == nil {
		q.log.Errorf("Cannot look up %s; no archive client configured", fileName)
		return false
	}

	fds, err := q.client.FindFiles(fileName, subdir, datasetName, false)
	if err != nil {
		q.log.WithError(err).WithField("dataset", datasetName).Errorf("Archive lookup for %s failed", fileName)
		return false
	}

	newest, ok := Newest(fds)
	if !ok {
		q.log.WithField("dataset", datasetName).WithField("subdir", subdir).Warnf("File %s not found in the archive", fileName)
		return false
	}

	return q.EnqueueAs(newest, localName)
}

func (q *DownloadQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queued)
}

func (q *DownloadQueue) Pending() []FileDescriptor {
	q.mu.Lock()
	defer q.mu.Unlock()
	fds := make([]FileDescriptor, 0, len(q.queued))
	for _, item := range q.queued {
		fds = append(fds, item.fd)
	}

	return fds
}

// Downloaded returns file ID to local path for files fetched by Flush.
func (q *DownloadQueue) Downloaded() map[int64]string {
	q.mu.Lock()
	defer q.mu.Unlock()

	result := make(map[int64]string, len(q.downloaded))
	for id, p := range q.downloaded {
		result[id] = p
	}

	return result
}

// Flush downloads every queued file into targetDir and empties the queue. It
// returns false if any file failed; the files that did download stay in place.
func (q *DownloadQueue) Flush(targetDir string, layout Layout) bool {
	q.mu.Lock()
	batch := q.queued
	q.queued = nil
	q.queuedIDs = make(map[int64]bool)
	q.mu.Unlock()

	if len(batch) == 0 {
		return true
	}

	q.log.WithField("files", len(batch)).Infof("Downloading files from the archive to %s", targetDir)

	if q.client == nil {
		q.log.Errorf("Cannot download %d files; no archive client configured", len(batch))
		return false
	}

	success := true
	for _, item := range batch {
		fd := item.fd
		dest := LocalPath(targetDir, fd, layout)
		if item.localName != "" {
			dest = filepath.Join(filepath.Dir(dest), item.localName)
		}

		if err := q.download(fd, dest); err != nil {
			q.log.WithError(err).WithField("file_id", fd.FileID).Errorf("Error downloading %s from the archive", fd.PathWithinDataset())
			success = false
			continue
		}

		q.mu.Lock()
		q.downloaded[fd.FileID] = dest
		q.mu.Unlock()
	}

	return success
}

// LocalPath is where Flush writes fd for the given layout.
func LocalPath(targetDir string, fd FileDescriptor, layout Layout) string {
	switch layout {
	case LayoutKeepSubdirectories:
		return filepath.Join(targetDir, filepath.FromSlash(fd.PathWithinDataset()))
	case LayoutDatasetAndSubdirectories:
		return filepath.Join(targetDir, fd.DatasetName, filepath.FromSlash(fd.PathWithinDataset()))
	default:
		return filepath.Join(targetDir, fd.FileName)
	}
}

func (q *DownloadQueue) download(fd FileDescriptor, dest string) error {
	if err := q.fs.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}

	f, err := q.fs.Create(dest)
	if err != nil {
		return err
	}

	err = q.client.Download(fd, f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		_ = q.fs.Remove(dest)
		return err
	}

	if !fd.UpdatedAt.IsZero() {
		_ = q.fs.Chtimes(dest, fd.UpdatedAt, fd.UpdatedAt)
	}

	return nil
}
