package cmd

import (
	"fmt"
	"time"

	"github.com/apex/log"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/materials-commons/dsstage/pkg/clog"
	"github.com/materials-commons/dsstage/pkg/config"
	"github.com/materials-commons/dsstage/pkg/filesearch"
	"github.com/materials-commons/dsstage/pkg/fsprobe"
	"github.com/materials-commons/dsstage/pkg/status"
)

// ErrAbortRequested is returned when the abort file is present before a step
// starts.
var ErrAbortRequested = errors.New("abort processing requested")

type retrieveOptions struct {
	spectra          bool
	msxmlExt         string
	gunzip           bool
	masic            bool
	sicStats         bool
	reporterIons     bool
	dta              bool
	imaging          bool
	unzipOverNetwork bool
	files            []string
	unzip            bool
	hydrate          bool
}

var retrieveOpts retrieveOptions

var retrieveCmd = &cobra.Command{
	Use:   "retrieve",
	Short: "Stage a job step's input files into its work directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		params, err := loadParams()
		if err != nil {
			return err
		}

		return runRetrieve(params, retrieveOpts)
	},
}

func init() {
	rootCmd.AddCommand(retrieveCmd)
	f := retrieveCmd.Flags()
	f.BoolVar(&retrieveOpts.spectra, "spectra", false, "retrieve the dataset's instrument data for its RawDataType")
	f.StringVar(&retrieveOpts.msxmlExt, "msxml", "", "retrieve the cached spectra file with this extension (.mzML, .mzXML, .pbf)")
	f.BoolVar(&retrieveOpts.gunzip, "gunzip", true, "decompress the cached spectra file")
	f.BoolVar(&retrieveOpts.masic, "masic", false, "retrieve the MASIC scan stats files")
	f.BoolVar(&retrieveOpts.sicStats, "sic-stats", false, "also retrieve the MASIC SIC stats file")
	f.BoolVar(&retrieveOpts.reporterIons, "reporter-ions", false, "also retrieve the MASIC reporter ions file, if it exists")
	f.BoolVar(&retrieveOpts.dta, "dta", false, "retrieve and extract the concatenated dta file")
	f.BoolVar(&retrieveOpts.imaging, "imaging", false, "retrieve Bruker MALDI imaging sections")
	f.BoolVar(&retrieveOpts.unzipOverNetwork, "unzip-over-network", false, "extract imaging zips in place instead of copying them first")
	f.StringSliceVar(&retrieveOpts.files, "file", nil, "retrieve a named data file; may be repeated")
	f.BoolVar(&retrieveOpts.unzip, "unzip", false, "extract files retrieved with --file")
	f.BoolVar(&retrieveOpts.hydrate, "hydrate", false, "replace storage path references in the work directory with the files they name")
}

// retrievalStep is one staging action of a job step.
type retrievalStep struct {
	description string
	run         func() bool
}

func planRetrieval(fileSearch *filesearch.FileSearch, params config.ParamSource, opts retrieveOptions) []retrievalStep {
	var steps []retrievalStep

	if opts.spectra {
		rawDataType := filesearch.RawDataTypeFromParams(params)
		steps = append(steps, retrievalStep{
			description: fmt.Sprintf("Retrieving %s spectra", rawDataType),
			run:         func() bool { return fileSearch.RetrieveSpectra(rawDataType) },
		})
	}

	if opts.msxmlExt != "" {
		steps = append(steps, retrievalStep{
			description: "Retrieving cached " + opts.msxmlExt + " file",
			run: func() bool {
				_, ok := fileSearch.RetrieveCachedMSXMLFile(opts.msxmlExt, opts.gunzip)
				return ok
			},
		})
	}

	if opts.masic {
		req := filesearch.DefaultStatsRequest(opts.sicStats)
		req.StoragePathInfoOnly = params.GetJobParameterBool(config.SectionJobParameters, config.KeyStoragePathInfoOnly, false)
		if opts.reporterIons {
			req.Suffixes = append(req.Suffixes, filesearch.SuffixReporterIons)
			req.NonCriticalSuffixes = append(req.NonCriticalSuffixes, filesearch.SuffixReporterIons)
		}

		steps = append(steps, retrievalStep{
			description: "Retrieving MASIC results",
			run:         func() bool { return fileSearch.RetrieveScanAndSICStatsFiles(req) },
		})
	}

	if opts.dta {
		steps = append(steps, retrievalStep{description: "Retrieving dta file", run: fileSearch.RetrieveDtaFiles})
	}

	if opts.imaging {
		steps = append(steps, retrievalStep{
			description: "Retrieving imaging sections",
			run:         func() bool { return fileSearch.RetrieveBrukerMALDIImagingFolders(opts.unzipOverNetwork) },
		})
	}

	for _, name := range opts.files {
		name := name
		steps = append(steps, retrievalStep{
			description: "Retrieving " + name,
			run:         func() bool { return fileSearch.RetrieveFile(name, opts.unzip) },
		})
	}

	// Archive files are queued by the steps above and fetched together.
	steps = append(steps, retrievalStep{
		description: "Retrieving queued archive files",
		run:         fileSearch.ProcessArchiveDownloadQueue,
	})

	if opts.hydrate {
		steps = append(steps, retrievalStep{description: "Replacing storage path references", run: fileSearch.HydrateWorkDir})
	}

	return steps
}

// runSteps runs steps in order, reporting progress, and stops at the first
// failure. The abort file is checked before each step.
func runSteps(steps []retrievalStep, reporter *status.Reporter, fs afero.Fs, managerDir string, l log.Interface) error {
	for i, step := range steps {
		if status.CheckForAbortProcessingFile(fs, managerDir) {
			closeTask(reporter, false, "Abort processing requested", l)
			return ErrAbortRequested
		}

		progress := float32(i) * 100 / float32(len(steps))
		if err := reporter.UpdateProgress(progress, step.description); err != nil {
			l.Warnf("Unable to record progress: %s", err)
		}

		if !step.run() {
			msg := step.description + " failed"
			closeTask(reporter, false, msg, l)
			return errors.New(msg)
		}
	}

	closeTask(reporter, true, "Files staged", l)

	return nil
}

func closeTask(reporter *status.Reporter, succeeded bool, msg string, l log.Interface) {
	if err := reporter.CloseTask(succeeded, msg); err != nil {
		l.Warnf("Unable to record task status: %s", err)
	}
}

func runRetrieve(params *config.Snapshot, opts retrieveOptions) error {
	fs := afero.NewOsFs()
	managerDir := params.GetManagerParam(config.KeyManagerDir, ".")
	if status.CheckForAbortProcessingFile(fs, managerDir) {
		return ErrAbortRequested
	}

	statusDeps, err := newStatusDependencies(managerName())
	if err != nil {
		return errors.Wrap(err, "unable to open the status database")
	}
	defer statusDeps.Close(10 * time.Second)

	job := params.GetJobParameterInt(config.SectionJobParameters, config.KeyJob, 0)
	step := params.GetJobParameterInt(config.SectionJobParameters, config.KeyStep, 0)
	workDir := params.GetManagerParam(config.KeyWorkDir, ".")

	var l log.Interface = log.Log
	if ctx, err := clog.AddJobLog(workDir, job, step); err != nil {
		log.Warnf("Unable to create the job log in %s: %s", workDir, err)
	} else {
		defer clog.RemoveLoggingContext(ctx)
		if err := clog.SetLevelFromString(ctx, params.GetManagerParam(config.KeyJobLogLevel, "info")); err != nil {
			log.Warnf("Invalid %s: %s", config.KeyJobLogLevel, err)
		}
		l = clog.UsingCtx(ctx)
	}

	reporter := statusDeps.reporter
	if err := reporter.StartTask(job, step, params.GetParam(config.KeyToolName), params.GetParam(config.KeyDatasetName)); err != nil {
		l.Warnf("Unable to record task status: %s", err)
	}
	defer func() { _ = reporter.SetIdle() }()

	deps := newStagingDependencies(params, l, reporter.CopyEvents())
	defer func() {
		if err := deps.deleteQueue.Drain(fsprobe.DefaultDrainTimeout); err != nil {
			l.Warnf("Files left behind: %s", err)
		}
	}()

	return runSteps(planRetrieval(deps.fileSearch, params, opts), reporter, fs, managerDir, l)
}
