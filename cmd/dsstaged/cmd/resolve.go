package cmd

import (
	"fmt"
	"strings"

	"github.com/apex/log"
	"github.com/spf13/cobra"

	"github.com/materials-commons/dsstage/pkg/dirsearch"
	"github.com/materials-commons/dsstage/pkg/filecopy"
)

var resolveRequest dirsearch.Request

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Print where a dataset's files are",
	Long: `Print the directory holding a dataset file or subdirectory. Archive locations
are printed as \\MyEMSL\<dataset>\<subdir>.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		params, err := loadParams()
		if err != nil {
			return err
		}

		deps := newStagingDependencies(params, log.Log, filecopy.Events{})
		resolved := deps.searcher.Resolve(resolveRequest)

		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintln(out, resolved.BestPath.String())
		if !resolved.Found {
			_, _ = fmt.Fprintln(out, resolved.NotFoundMessage)
			return fmt.Errorf("not found")
		}

		if len(resolved.ArchiveFileIDs) != 0 {
			ids := make([]string, 0, len(resolved.ArchiveFileIDs))
			for _, id := range resolved.ArchiveFileIDs {
				ids = append(ids, fmt.Sprint(id))
			}
			_, _ = fmt.Fprintf(out, "archive file ids: %s\n", strings.Join(ids, ","))
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(resolveCmd)
	resolveCmd.Flags().StringVar(&resolveRequest.DatasetName, "dataset", "", "dataset name; defaults to the job's dataset")
	resolveCmd.Flags().StringVar(&resolveRequest.FileNamePattern, "file", "", "file name or wildcard pattern")
	resolveCmd.Flags().StringVar(&resolveRequest.DirNamePattern, "dir", "", "subdirectory name or wildcard pattern")
	resolveCmd.Flags().IntVar(&resolveRequest.MaxAttempts, "max-attempts", 3, "probe attempts per location")
	resolveCmd.Flags().BoolVar(&resolveRequest.LogIfMissing, "log-missing", true, "log when nothing is found")
	resolveCmd.Flags().BoolVar(&resolveRequest.IsInstrumentDataLookup, "instrument-data", false, "search for raw instrument data")
	resolveCmd.Flags().BoolVar(&resolveRequest.AssumeUnpurged, "assume-unpurged", false, "return the expected location without searching the archives")
}
