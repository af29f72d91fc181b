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

// rulesCmd represents the rules command
var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Create and check highlight rule files (Check subcommands)",
	Long: `Create and check highlight rule files.
Rules tell "dispq pump" which parts of a line to highlight. Check subcommands for more details.`,
	Run: func(cmd *cobra.Command, args []string) {
		println("Please specify a subcommand for rule operations.")
		os.Exit(1)
	},
}

var rulesNewConfigCmd = &cobra.Command{
	Use:   "new-config",
	Short: "Create a new rule file",
	Long:  "Create a sample rule file " + internal.RuleFileName + " in the current directory",
	Run: func(cmd *cobra.Command, args []string) {
		if _, err := os.Stat(internal.RuleFileName); err == nil {
			log.Fatal().Msgf("%s already exists", internal.RuleFileName)
			return
		}
		conf := internal.SampleRuleFile()
		configBytes, err := conf.Marshal()
		if err != nil {
			log.Fatal().Msgf("error marshaling default rules: %v", err)
		}
		err = os.WriteFile(internal.RuleFileName, configBytes, 0644)
		if err != nil {
			log.Fatal().Msgf("error writing default rule file: %v", err)
		}
		fmt.Printf("Default rule file created at %s\n", internal.RuleFileName)
	},
}

var rulesCheckCmd = &cobra.Command{
	Use:   "check [file]",
	Short: "Compile every rule of a rule file",
	Long:  "Compile every rule of a rule file (default " + internal.RuleFileName + ") and print the resulting patterns",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := internal.RuleFileName
		if len(args) > 0 {
			path = args[0]
		}
		rules, err := internal.ReadRuleFile(path)
		if err != nil {
			log.Fatal().Msgf("%v", err)
			return
		}
		fmt.Printf("Rule file %s (%s): %d rules\n", path, rules.Name, len(rules.Rules))
		for _, rule := range rules.Rules {
			fmt.Printf("  %s [%s] %d arguments: %s\n", rule.ID, rule.Syntax, len(rule.ArgumentGroups()), rule.Compiled.String())
		}
	},
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesNewConfigCmd)
	rulesCmd.AddCommand(rulesCheckCmd)
}
