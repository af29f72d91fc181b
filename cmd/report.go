/*
Copyright © 2024 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/htfy96/dispq/internal"
	"github.com/phuslu/log"
	"github.com/spf13/cobra"
)

// reportCmd represents the report command
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Inspect saved stress reports (Check subcommands)",
	Long: `Inspect saved stress reports.
Reports are written by "dispq stress --save". Check subcommands for more details.`,
	Run: func(cmd *cobra.Command, args []string) {
		println("Please specify a subcommand for report operations.")
		os.Exit(1)
	},
}

var reportLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List all reports",
	Long:  "List all reports in the report directory",
	Run: func(cmd *cobra.Command, args []string) {
		reports, err := reportStore.ReadAll()
		if err != nil {
			log.Fatal().Msgf("error reading reports: %v", err)
			return
		}
		fmt.Println("All Reports:")
		for _, name := range internal.SortedReportNames(reports) {
			report := reports[name]
			status := "ok"
			if !report.OK() {
				status = fmt.Sprintf("%d violations", len(report.Violations))
			}
			fmt.Printf("Report: %s. Started: %s. Status: %s. File: %s\n",
				name, report.StartedAt.Format("2006-01-02 15:04:05"), status, reportStore.GetPath(name))
		}
	},
}

var reportCatCmd = &cobra.Command{
	Use:   "cat {name}",
	Short: "Display the content of a report",
	Long:  "Display the content of the report with the given name",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		name := args[0]
		report, err := reportStore.Get(name)
		if err != nil {
			log.Fatal().Msgf("No report found with name %s: %v", name, err)
			return
		}
		asYAML, err := cmd.Flags().GetBool("yaml")
		if err != nil {
			log.Fatal().Msgf("error getting yaml: %v", err)
			return
		}
		fmt.Printf("Report: %s\n", name)
		fmt.Printf("File: %s\n", reportStore.GetPath(name))
		if asYAML {
			out, err := report.YAML()
			if err != nil {
				log.Fatal().Msgf("%v", err)
				return
			}
			fmt.Print(out)
			return
		}
		fmt.Println(report.String())
	},
}

var reportResetAllCmd = &cobra.Command{
	Use:   "reset-all",
	Short: "Delete all reports",
	Long:  "Delete the report directory and every report in it",
	Run: func(cmd *cobra.Command, args []string) {
		if err := reportStore.Reset(); err != nil {
			log.Fatal().Msgf("%v", err)
		}
		fmt.Printf("Report directory %s removed\n", reportStore.Dir)
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.AddCommand(reportLsCmd)
	reportCmd.AddCommand(reportCatCmd)
	reportCmd.AddCommand(reportResetAllCmd)

	reportCatCmd.Flags().Bool("yaml", false, "Print the report as YAML instead of JSON")
}
