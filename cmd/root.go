/*
Copyright © 2024 Zheng 'Vic' Luo vicluo96@gmail.com

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"os"
	"path/filepath"

	"github.com/htfy96/dispq/internal"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/adrg/xdg"
	"github.com/mattn/go-isatty"
	"github.com/phuslu/log"
)

var cfgFile string

var reportStore *internal.ReportStore

func setupLogger(level string) {
	log.DefaultLogger = log.Logger{
		Level:      log.ParseLevel(level),
		Caller:     1,
		TimeField:  "time",
		TimeFormat: "2006-01-02 15:04:05",
		Writer: &log.ConsoleWriter{
			Writer:      os.Stderr,
			ColorOutput: isatty.IsTerminal(os.Stderr.Fd()),
		},
	}
}

func initFromGlobalConfig() {
	setupLogger(viper.GetString("loglevel"))
	reportStore = internal.NewReportStore(afero.NewOsFs(), viper.GetString("report_dir"))
	log.Debug().Msgf("report directory: %s", reportStore.Dir)
}

var rootCmd = &cobra.Command{
	Use:   "dispq {pump | stress | report | rules} [flags...]",
	Short: "Drive a disposable blocking queue with real workloads",
	Long: `dispq pushes work through a concurrent, unbounded, disposable FIFO queue.

pump    feeds log lines through a worker pool and highlights rule matches,
        printing results in input order
stress  runs many producers and consumers against one queue and verifies
        that nothing is lost, duplicated or reordered, and that disposal
        releases every blocked consumer
report  lists and shows saved stress reports
rules   creates and checks highlight rule files`,

	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.dispq.yaml)")
	rootCmd.PersistentFlags().String("report_dir", "", "report directory (default is $XDG_STATE_HOME/dispq)")
	rootCmd.PersistentFlags().String("loglevel", "warn", "log level (trace, debug, info, warn, error, fatal, panic)")
	bindFlags(rootCmd.PersistentFlags(), "report_dir", "loglevel")
}

// initConfig layers defaults, the config file and DISPQ_* env variables.
func initConfig() {
	viper.SetDefault("report_dir", filepath.Join(xdg.StateHome, "dispq"))
	viper.SetDefault("loglevel", "warn")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".dispq")
	}
	viper.SetEnvPrefix("DISPQ")
	viper.AutomaticEnv()

	err := viper.ReadInConfig()
	initFromGlobalConfig()
	if err == nil {
		log.Info().Msgf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
		log.Warn().Msgf("error reading config file: %v", err)
	}
}
