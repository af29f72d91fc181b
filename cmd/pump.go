/*
Copyright © 2024 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/htfy96/dispq/internal"
	"github.com/phuslu/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type pumpSettings struct {
	Workers          int      `mapstructure:"workers"`
	Rules            string   `mapstructure:"rules"`
	StartPos         int      `mapstructure:"start_pos"`
	StartCharPos     string   `mapstructure:"start_char_pos"`
	LabelColumnWidth int      `mapstructure:"label_column_width"`
	SkipArguments    bool     `mapstructure:"skip_arguments"`
	RulesFilter      []string `mapstructure:"rules_filter"`
}

func loadRulesForPump(path string) (internal.RuleFile, error) {
	if path == "" {
		if _, err := os.Stat(internal.RuleFileName); err != nil {
			log.Info().Msgf("No %s found, lines are passed through unchanged", internal.RuleFileName)
			return internal.RuleFile{}, nil
		}
		path = internal.RuleFileName
	}
	return internal.ReadRuleFile(path)
}

// pumpCmd represents the pump command
var pumpCmd = &cobra.Command{
	Use:   "pump [file]",
	Short: "Feed lines through the queue and a worker pool",
	Long: `Read lines from a file or stdin, push them into a disposable queue, let a
pool of workers highlight rule matches, and print the results in input order.
Interrupting the command disposes the queue, which releases every idle worker.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var settings pumpSettings
		if err := viper.Unmarshal(&settings, decodeHook); err != nil {
			log.Fatal().Msgf("error reading pump settings: %v", err)
			return
		}
		rules, err := loadRulesForPump(settings.Rules)
		if err != nil {
			log.Fatal().Msgf("error loading rules: %v", err)
			return
		}
		config := internal.HighlightConfig{
			StartPos:         settings.StartPos,
			StartCharPos:     settings.StartCharPos,
			LabelColumnWidth: settings.LabelColumnWidth,
			SkipArguments:    settings.SkipArguments,
			RuleFilter:       settings.RulesFilter,
		}
		highlighter, err := internal.NewHighlighter(config, rules, os.Stdout)
		if err != nil {
			log.Fatal().Msgf("error creating highlighter: %v", err)
			return
		}

		var reader io.Reader = os.Stdin
		if len(args) > 0 {
			file, err := os.Open(args[0])
			if err != nil {
				log.Fatal().Msgf("error opening file: %v", err)
				return
			}
			defer file.Close()
			reader = file
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		stats, err := internal.RunPipeline(ctx, internal.PipelineConfig{Workers: settings.Workers}, highlighter, reader, os.Stdout)
		log.Debug().Msgf("pump: read %d, processed %d, failed %d, emitted %d in %s",
			stats.Read, stats.Processed, stats.Failed, stats.Emitted, stats.Elapsed)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Fatal().Msgf("error pumping lines: %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(pumpCmd)
	viper.SetDefault("workers", 32)
	viper.SetDefault("start_pos", 1)
	viper.SetDefault("label_column_width", 24)
	viper.SetDefault("skip_arguments", false)
	pumpCmd.PersistentFlags().Int("workers", 32, "Number of workers popping lines from the queue")
	pumpCmd.PersistentFlags().String("rules", "", "Rule file (default is "+internal.RuleFileName+" in the current directory, if present)")
	pumpCmd.PersistentFlags().Int("start_pos", 1, "Start position for matching in lines. (1-indexed)")
	pumpCmd.PersistentFlags().String("start_char_pos", "", "Only start to match lines after n-th appearance of a specific character. "+
		"If not provided, start_pos will be used. Example usage: --start_char_pos ' 1' will match only after the first space.")
	pumpCmd.PersistentFlags().Int("label_column_width", 24, "Width of the rule label column in the output. Setting it to 0 will disable the column.")
	pumpCmd.PersistentFlags().Bool("skip_arguments", false, "Do not emphasize the arguments captured by printf-like rules")
	pumpCmd.PersistentFlags().StringSlice("rules_filter", []string{}, "Only apply rules with these ids. If not provided, all rules are applied")
	bindFlags(pumpCmd.PersistentFlags(), "workers", "rules", "start_pos", "start_char_pos", "label_column_width", "skip_arguments", "rules_filter")
}
