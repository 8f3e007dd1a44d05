package cmd

import (
	"path/filepath"
	"time"

	"github.com/apex/log"
	"github.com/spf13/afero"
	"gorm.io/gorm"

	"github.com/materials-commons/dsstage/pkg/archive"
	"github.com/materials-commons/dsstage/pkg/config"
	"github.com/materials-commons/dsstage/pkg/dirsearch"
	"github.com/materials-commons/dsstage/pkg/filecopy"
	"github.com/materials-commons/dsstage/pkg/filesearch"
	"github.com/materials-commons/dsstage/pkg/fsprobe"
	"github.com/materials-commons/dsstage/pkg/mcdb"
	"github.com/materials-commons/dsstage/pkg/mcdb/stor"
	"github.com/materials-commons/dsstage/pkg/status"
)

// StagingDependencies are the components one job step stages files with.
type StagingDependencies struct {
	fs          afero.Fs
	checker     *fsprobe.Checker
	queue       *archive.DownloadQueue
	copier      *filecopy.Copier
	searcher    *dirsearch.Searcher
	fileSearch  *filesearch.FileSearch
	deleteQueue *fsprobe.DeleteQueue
}

// newArchiveClient returns nil when no archive API is configured.
func newArchiveClient(params config.ParamSource) archive.Client {
	baseURL := params.GetManagerParam(config.KeyArchiveBaseURL, "")
	if baseURL == "" {
		log.Warn("ArchiveBaseURL is not set; the archive will not be searched")
		return nil
	}

	return archive.NewRestClient(baseURL,
		archive.WithAuthToken(params.GetManagerParam(config.KeyArchiveAuthToken, "")))
}

func newStagingDependencies(params config.ParamSource, l log.Interface, events filecopy.Events) *StagingDependencies {
	fs := afero.NewOsFs()
	level := managerDebugLevel()

	deps := &StagingDependencies{fs: fs}
	deps.checker = fsprobe.NewChecker(fs, fsprobe.WithLogger(l), fsprobe.WithDebugLevel(level))
	client := newArchiveClient(params)
	if client != nil {
		deps.queue = archive.NewDownloadQueue(client, fs, archive.WithQueueLogger(l))
	}
	deps.copier = filecopy.NewCopier(fs,
		filecopy.WithLogger(l),
		filecopy.WithDebugLevel(level),
		filecopy.WithChecker(deps.checker),
		filecopy.WithDownloadQueue(deps.queue),
		filecopy.WithEvents(events))
	deps.searcher = dirsearch.NewSearcher(params, deps.checker, client,
		dirsearch.WithLogger(l),
		dirsearch.WithDebugLevel(level))
	deps.deleteQueue = fsprobe.NewDeleteQueue(fs, fsprobe.WithDeleteQueueLogger(l))
	deps.fileSearch = filesearch.NewFileSearch(params, deps.searcher, deps.copier,
		filesearch.WithLogger(l),
		filesearch.WithDebugLevel(level),
		filesearch.WithDeleteQueue(deps.deleteQueue))

	return deps
}

// connectToStatusDB uses MySQL when DB_HOST is set and a local sqlite file
// otherwise.
func connectToStatusDB() (*gorm.DB, error) {
	if config.GetKey("DB_HOST") != "" {
		db := mcdb.MustConnectToDB()
		return db, mcdb.RunMigrations(db)
	}

	path, err := config.ExpandPath(config.GetKeyWithDefault(config.KeyStatusDBPath, "~/.dsstage/status.db"))
	if err != nil {
		return nil, err
	}

	if err := afero.NewOsFs().MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}

	db, err := mcdb.ConnectToSqlite(path)
	if err != nil {
		return nil, err
	}

	return db, mcdb.RunMigrations(db)
}

type StatusDependencies struct {
	stors    *stor.Stors
	queue    *status.MessageQueue
	reporter *status.Reporter
}

func newStatusDependencies(managerName string) (*StatusDependencies, error) {
	db, err := connectToStatusDB()
	if err != nil {
		return nil, err
	}

	deps := &StatusDependencies{stors: stor.NewGormStors(db)}

	opts := []status.ReporterOptionFN{}
	if brokerURL := config.GetKey(config.KeyStatusBrokerURL); brokerURL != "" {
		deps.queue = status.NewMessageQueue(status.NewWebsocketSender(brokerURL))
		opts = append(opts, status.WithMessageQueue(deps.queue))
	}

	deps.reporter = status.NewReporter(managerName, deps.stors.TaskStatusStor, opts...)

	return deps, nil
}

// Close sends queued status messages, waiting at most timeout.
func (d *StatusDependencies) Close(timeout time.Duration) {
	if d.queue == nil {
		return
	}

	done := make(chan struct{})
	go func() {
		if err := d.queue.Close(); err != nil {
			log.Warnf("Closing status broker connection: %s", err)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		log.Warn("Timed out sending queued status messages")
	}
}

func managerName() string {
	if name := config.GetKey(config.KeyManagerName); name != "" {
		return name
	}

	return "dsstaged"
}
