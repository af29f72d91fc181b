/*
Copyright © 2024 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/htfy96/dispq/internal"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
	"github.com/phuslu/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func printStressSummary(w io.Writer, report *internal.StressReport) {
	output := termenv.NewOutput(w)
	status := output.String("OK").Foreground(output.Color("#33cc66")).Bold()
	if !report.OK() {
		status = output.String("FAILED").Foreground(output.Color("#ff3333")).Bold()
	}
	fmt.Fprintf(w, "%s  %s\n", status, report.Name)
	fmt.Fprintf(w, "  producers %d, consumers %d, items %d, dispose after %s\n",
		report.Config.Producers, report.Config.Consumers, report.Config.Items, report.Config.DisposeAfter)
	fmt.Fprintf(w, "  pushed %d (rejected %d), popped %d, residual %d\n",
		report.Pushed, report.PushRejected, report.Popped, report.Residual)
	fmt.Fprintf(w, "  duplicates %d, out of order %d, lost %d\n", report.Duplicates, report.OutOfOrder, report.Lost)
	fmt.Fprintf(w, "  elapsed %s\n", report.Elapsed)
	for _, violation := range report.Violations {
		fmt.Fprintf(w, "  %s\n", output.String(violation).Foreground(output.Color("#ff3333")))
	}
}

// stressCmd represents the stress command
var stressCmd = &cobra.Command{
	Use:   "stress",
	Short: "Hammer one queue with concurrent producers and consumers",
	Long: `Run producers and consumers against a single disposable queue and verify
that every accepted item is delivered at most once, that nothing is lost, that
each consumer sees every producer's items in order, and that disposal releases
every blocked consumer.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		var config internal.StressConfig
		if err := viper.Unmarshal(&config, decodeHook); err != nil {
			log.Fatal().Msgf("error reading stress settings: %v", err)
			return
		}
		if viper.GetBool("progress") && isatty.IsTerminal(os.Stderr.Fd()) {
			config.Progress = os.Stderr
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		report, err := internal.RunStress(ctx, config)
		if err != nil && !errors.Is(err, internal.ErrStressViolation) {
			log.Fatal().Msgf("error running stress: %v", err)
			return
		}
		if report.Name == "" {
			report.Name = internal.DefaultReportName(report.StartedAt)
		}
		printStressSummary(os.Stdout, &report)

		if viper.GetBool("save") {
			path, saveErr := reportStore.Save(report)
			if saveErr != nil {
				log.Fatal().Msgf("error saving report: %v", saveErr)
				return
			}
			fmt.Printf("Report saved to %s\n", path)
		}
		if err != nil {
			os.Exit(2)
		}
	},
}

func init() {
	rootCmd.AddCommand(stressCmd)
	viper.SetDefault("producers", 4)
	viper.SetDefault("consumers", 4)
	viper.SetDefault("items", 100000)
	stressCmd.PersistentFlags().Int("producers", 4, "Number of producer goroutines")
	stressCmd.PersistentFlags().Int("consumers", 4, "Number of consumer goroutines")
	stressCmd.PersistentFlags().Int("items", 100000, "Total number of items pushed across all producers")
	stressCmd.PersistentFlags().Duration("dispose_after", 0, "Dispose the queue after this long, even with items in flight (0 waits for every item)")
	stressCmd.PersistentFlags().String("name", "", "Report name (default is the start time)")
	stressCmd.PersistentFlags().Bool("save", false, "Save the report to the report directory")
	stressCmd.PersistentFlags().Bool("progress", true, "Show a progress bar on stderr when it is a terminal")
	bindFlags(stressCmd.PersistentFlags(), "producers", "consumers", "items", "dispose_after", "name", "save", "progress")
}
