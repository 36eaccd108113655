package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"arps/internal/demo"
	"arps/internal/format"
	"arps/internal/types"
)

var (
	inputPath    string
	outputFormat string
	renderStyle  string
)

// solveCmd runs the full pipeline once
var solveCmd = &cobra.Command{
	Use:   "solve",
	Short: "Run the three-stage pipeline on a renewal request",
	Long: `Reads a SolveInput (YAML or JSON) and runs Context Weaver, Resource Allocator
and Policy Enforcer in order.

Without --input the built-in Acme Corp scenario is used.

Example:
  arps solve --input request.yaml --format markdown --style dark`,
	RunE: runSolve,
}

func init() {
	solveCmd.Flags().StringVarP(&inputPath, "input", "i", "", "Request file (YAML or JSON); default: demo scenario")
	solveCmd.Flags().StringVarP(&outputFormat, "format", "f", "table", "Output format: table, json, markdown")
	solveCmd.Flags().StringVar(&renderStyle, "style", "", "Render markdown with a glamour style (dark, light, notty, auto)")
}

func runSolve(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(timeout)
	defer cancel()

	in, err := readInput(inputPath)
	if err != nil {
		return err
	}

	orch, err := newOrchestrator(ctx, cfg)
	if err != nil {
		return err
	}

	result, err := orch.Run(ctx, in)
	if err != nil {
		return err
	}
	return writeResult(cmd.OutOrStdout(), result, outputFormat, renderStyle)
}

// readInput loads a request file. .json files use the wire field names
// (crmSnapshot); anything else is YAML (crm_snapshot).
func readInput(path string) (types.SolveInput, error) {
	if path == "" {
		return demo.Input(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return types.SolveInput{}, errors.Wrap(err, "read input")
	}
	var in types.SolveInput
	unmarshal := yaml.Unmarshal
	if strings.EqualFold(filepath.Ext(path), ".json") {
		unmarshal = json.Unmarshal
	}
	if err := unmarshal(data, &in); err != nil {
		return types.SolveInput{}, errors.Mark(errors.Wrapf(err, "parse input %s", path), types.ErrInvalidInput)
	}
	return in, nil
}

// writeResult prints result in the requested format.
func writeResult(w io.Writer, result *types.PipelineResult, outFormat, style string) error {
	switch outFormat {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	case "markdown", "md":
		md := format.MarkdownReport(result)
		if style != "" {
			rendered, err := format.Render(md, style, 100)
			if err != nil {
				return err
			}
			md = rendered
		}
		_, err := io.WriteString(w, md)
		return err
	case "table", "":
		_, err := io.WriteString(w, format.Text(result))
		return err
	default:
		return fmt.Errorf("unknown format %q (valid: table, json, markdown)", outFormat)
	}
}

// signalContext is cancelled on SIGINT/SIGTERM or after d.
func signalContext(d time.Duration) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	if d <= 0 {
		return ctx, stop
	}
	tctx, cancel := context.WithTimeout(ctx, d)
	return tctx, func() {
		cancel()
		stop()
	}
}
