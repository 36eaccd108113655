package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"arps/internal/demo"
	"arps/internal/pipeline"
)

var demoReplay bool

// demoCmd prints the canned Acme Corp result
var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Show the precomputed demo result (no API key needed)",
	Long: `Prints the static Acme Corp result. With --replay the real pipeline runs
against a replay oracle seeded with the demo answers, which exercises every
stage without network access.`,
	RunE: runDemo,
}

func init() {
	demoCmd.Flags().BoolVar(&demoReplay, "replay", false, "Run the pipeline against the demo replay oracle")
	demoCmd.Flags().StringVarP(&outputFormat, "format", "f", "table", "Output format: table, json, markdown")
	demoCmd.Flags().StringVar(&renderStyle, "style", "", "Render markdown with a glamour style (dark, light, notty, auto)")
}

func runDemo(cmd *cobra.Command, args []string) error {
	if !demoReplay {
		return writeResult(cmd.OutOrStdout(), demo.Result(time.Now()), outputFormat, renderStyle)
	}

	pc := pipeline.DefaultConfig(demo.Replay())
	if cfg != nil {
		pc = cfg.PipelineConfig(demo.Replay())
	}
	result, err := pipeline.New(pc).Run(context.Background(), demo.Input())
	if err != nil {
		return err
	}
	return writeResult(cmd.OutOrStdout(), result, outputFormat, renderStyle)
}
