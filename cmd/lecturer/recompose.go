package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/smartlecturer/lecturer/internal/api"
	"github.com/smartlecturer/lecturer/internal/batch"
	"github.com/smartlecturer/lecturer/internal/explain"
)

var (
	recomposeOut string
	recomposeZip bool
)

var recomposeCmd = &cobra.Command{
	Use:   "recompose <pdf> <json> | recompose <dir>",
	Short: "Compose PDFs from exported explanations without calling the model",
	Long: `Recompose lays out previously exported explanations again, for example after
changing the font or layout settings.

With a PDF and a JSON file, that pair is composed. With a directory, PDFs and
JSON files in it are paired by name (see "lecturer pair") and every match is
composed.

Examples:
  lecturer recompose week-3.pdf week-3.json
  lecturer recompose --mode plain --zip ./exports`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runRecompose,
}

func init() {
	recomposeCmd.Flags().StringVar(&recomposeOut, "out", "", "output directory (default: ~/.lecturer/output)")
	recomposeCmd.Flags().BoolVar(&recomposeZip, "zip", false, "also package the outputs into a zip")
	recomposeCmd.Flags().StringVar(&processMode, "mode", "", "override layout.render_mode: plain, markdown or empty_right")
	recomposeCmd.Flags().StringVar(&processFont, "font", "", "override layout.font_path")

	rootCmd.AddCommand(recomposeCmd)
}

func runRecompose(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}

	matches, err := recomposeMatches(args)
	if err != nil {
		return err
	}

	// Recompose never annotates, so no explainer is needed.
	proc, err := newProcessor(e.config.Get(), nil)
	if err != nil {
		return err
	}
	proc.Logger = e.logger

	sum, err := proc.Recompose(matches)
	if err != nil {
		return err
	}

	outDir := recomposeOut
	if outDir == "" {
		outDir = e.home.OutputPath()
	}
	res := saveAll(sum, outDir, batch.SaveOptions{})

	if recomposeZip && len(sum.Succeeded()) > 0 {
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return err
		}
		pdfs := make([]string, len(matches))
		for i, m := range matches {
			pdfs[i] = m.PDF
		}
		res.Zip = filepath.Join(outDir, batch.ZipName(pdfs))
		if err := writeZip(sum, res.Zip); err != nil {
			return err
		}
	}

	if err := api.Output(res); err != nil {
		return err
	}
	return failure(res)
}

func recomposeMatches(args []string) ([]explain.Match, error) {
	if len(args) == 2 {
		return []explain.Match{{PDF: args[0], JSON: args[1]}}, nil
	}

	info, err := os.Stat(args[0])
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s: expected a directory, or a PDF and a JSON file", args[0])
	}
	pairing, err := explain.PairDir(args[0])
	if err != nil {
		return nil, err
	}
	if len(pairing.Matches) == 0 {
		return nil, fmt.Errorf("no PDF/JSON pairs in %s", args[0])
	}
	return pairing.Matches, nil
}
