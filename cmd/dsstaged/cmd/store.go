package cmd

import (
	"github.com/apex/log"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/materials-commons/dsstage/pkg/filecopy"
	"github.com/materials-commons/dsstage/pkg/filesearch"
)

type storeOptions struct {
	msxmlFile string
	toolDir   string
	dta       bool
}

var storeOpts storeOptions

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Store derived files from the work directory for later jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		params, err := loadParams()
		if err != nil {
			return err
		}

		deps := newStagingDependencies(params, log.Log, filecopy.Events{})
		steps := planStore(deps.fileSearch, storeOpts)
		if len(steps) == 0 {
			return errors.New("nothing to store; use --msxml or --dta")
		}

		for _, step := range steps {
			log.Info(step.description)
			if !step.run() {
				return errors.New(step.description + " failed")
			}
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(storeCmd)
	f := storeCmd.Flags()
	f.StringVar(&storeOpts.msxmlFile, "msxml", "", "add this spectra file to the cache, with a hashcheck file")
	f.StringVar(&storeOpts.toolDir, "tool-dir", "", "cache directory for --msxml; defaults to the one named by the job's input folder")
	f.BoolVar(&storeOpts.dta, "dta", false, "zip the concatenated dta file")
}

func planStore(fileSearch *filesearch.FileSearch, opts storeOptions) []retrievalStep {
	var steps []retrievalStep

	if opts.msxmlFile != "" {
		steps = append(steps, retrievalStep{
			description: "Caching " + opts.msxmlFile,
			run: func() bool {
				_, ok := fileSearch.CacheMSXMLFile(opts.msxmlFile, opts.toolDir)
				return ok
			},
		})
	}

	if opts.dta {
		steps = append(steps, retrievalStep{
			description: "Zipping dta file",
			run: func() bool {
				_, ok := fileSearch.ZipDtaFiles()
				return ok
			},
		})
	}

	return steps
}
