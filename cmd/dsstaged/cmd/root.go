package cmd

import (
	"os"

	"github.com/apex/log"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/materials-commons/dsstage/pkg/config"
)

var (
	envPath       string
	jobParamsPath string
	debugLevel    int
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "dsstaged",
	Short: "Stage dataset files for analysis job steps",
	Long: `Stage dataset files for analysis job steps. Files are located in the transfer
directory, primary storage, the archive or the long-term archive and copied
into the step's work directory.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.ExpandPath(envPath)
		if err != nil {
			return err
		}

		// The default file is optional; the environment alone may hold the settings.
		if exists, _ := afero.Exists(afero.NewOsFs(), path); !exists && !cmd.Flags().Changed("env") {
			return nil
		}

		c := config.NewDotenvConfig(path)
		if err := c.Load(); err != nil {
			return err
		}

		config.SetConfig(c)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envPath, "env", "~/.dsstage.env", "dotenv file holding the manager settings")
	rootCmd.PersistentFlags().StringVar(&jobParamsPath, "job-params", "", "job step parameter file")
	rootCmd.PersistentFlags().IntVar(&debugLevel, "debug-level", -1, "retry logging detail; overrides the DebugLevel setting")
}

// loadParams combines the job parameter file with the manager settings.
func loadParams() (*config.Snapshot, error) {
	job := config.NewJobParams()
	if jobParamsPath != "" {
		var err error
		if job, err = config.LoadJobParams(jobParamsPath); err != nil {
			return nil, err
		}
	}

	return config.NewSnapshot(job, config.GetConfig()), nil
}

func managerDebugLevel() int {
	if debugLevel >= 0 {
		return debugLevel
	}

	return config.GetIntKeyWithDefault(config.KeyDebugLevel, 1)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Errorf("dsstaged: %s", err)
		os.Exit(1)
	}
}
