package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/smartlecturer/lecturer/internal/annotate"
	"github.com/smartlecturer/lecturer/internal/api"
	"github.com/smartlecturer/lecturer/internal/batch"
	"github.com/smartlecturer/lecturer/internal/compose"
	"github.com/smartlecturer/lecturer/internal/config"
	"github.com/smartlecturer/lecturer/internal/layout"
	"github.com/smartlecturer/lecturer/internal/llmcall"
	"github.com/smartlecturer/lecturer/internal/metrics"
	"github.com/smartlecturer/lecturer/internal/pdfout"
	"github.com/smartlecturer/lecturer/internal/providers"
	"github.com/smartlecturer/lecturer/internal/render"
)

var (
	processOut         string
	processExportJSON  bool
	processPreviews    string
	processMetricsAddr string
	processZip         bool
	processMode        string
	processFont        string
)

var processCmd = &cobra.Command{
	Use:   "process <pdf>...",
	Short: "Explain every page of one or more PDFs",
	Long: `Render each page, ask the configured model to explain it and compose the
explained PDF next to the original pages.

Up to 20 PDFs are processed one after another; numbered parts (deck-1.pdf,
deck-2.pdf, ...) run in numeric order. A document that fails is reported and
the batch moves on. All documents share one rate limiter.

Examples:
  lecturer process week-3.pdf
  lecturer process --export-json --out ./explained slides/*.pdf
  lecturer process --zip --metrics-addr :9090 part-1.pdf part-2.pdf`,
	Args: cobra.MinimumNArgs(1),
	RunE: runProcess,
}

func init() {
	processCmd.Flags().StringVar(&processOut, "out", "", "output directory (default: ~/.lecturer/output)")
	processCmd.Flags().BoolVar(&processExportJSON, "export-json", false, "write <name>.json with the explanations")
	processCmd.Flags().StringVar(&processPreviews, "previews", "", "write page previews under this directory")
	processCmd.Flags().StringVar(&processMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	processCmd.Flags().BoolVar(&processZip, "zip", false, "also package the outputs into a zip (more than one PDF)")
	processCmd.Flags().StringVar(&processMode, "mode", "", "override layout.render_mode: plain, markdown or empty_right")
	processCmd.Flags().StringVar(&processFont, "font", "", "override layout.font_path")

	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	e, err := loadEnv()
	if err != nil {
		return err
	}
	logger := e.logger
	cfg := e.config.Get()

	if !render.Available() {
		return errors.New("pdftoppm not found on PATH; install poppler-utils")
	}

	gen, err := providers.NewGenerator(ctx, cfg.GeneratorConfig())
	if err != nil {
		return fmt.Errorf("failed to create generator: %w", err)
	}
	defer providers.Close(gen)

	limiter := providers.NewRateLimiter(cfg.RateLimitConfig())
	e.config.OnChange(func(c *config.Config) {
		rc := c.RateLimitConfig()
		limiter.SetLimits(rc.RPM, rc.TPM, rc.RPD, rc.Window)
		logger.Info("rate limits updated", "rpm", rc.RPM, "tpm", rc.TPM, "rpd", rc.RPD, "window", rc.Window)
	})
	e.config.WatchConfig()

	if err := e.home.EnsureExists(); err != nil {
		return err
	}
	recorder, err := llmcall.NewRecorder(e.home.CallLogPath(), logger)
	if err != nil {
		return err
	}
	defer recorder.Close()

	client, err := annotate.NewClient(annotate.ClientConfig{
		Generator:   gen,
		Limiter:     limiter,
		Model:       cfg.Generation.Model,
		Temperature: cfg.Generation.Temperature,
		MaxTokens:   cfg.Generation.MaxOutputTokens,
		Recorder:    recorder,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	if processMetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, processMetricsAddr, logger); err != nil {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	proc, err := newProcessor(cfg, client)
	if err != nil {
		return err
	}
	proc.Logger = logger
	logger.Info("explanation font", "path", proc.FontPath)
	proc.OnProgress = func(doc string, completed, total int) {
		logger.Info("progress", "document", doc, "completed", completed, "total", total)
	}

	sum, err := proc.Run(ctx, args)
	if err != nil {
		return err
	}

	outDir := processOut
	if outDir == "" {
		outDir = e.home.OutputPath()
	}
	res := saveAll(sum, outDir, batch.SaveOptions{JSON: processExportJSON, PreviewDir: processPreviews})

	if processZip && len(args) > 1 && len(sum.Succeeded()) > 0 {
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return err
		}
		res.Zip = filepath.Join(outDir, batch.ZipName(args))
		if err := writeZip(sum, res.Zip); err != nil {
			return err
		}
	}

	if err := api.Output(res); err != nil {
		return err
	}
	return failure(res)
}

// fontCandidates are searched when no font is configured.
var fontCandidates = pdfout.SystemFonts

// newProcessor maps configuration and command overrides onto a Processor.
func newProcessor(cfg *config.Config, explainer annotate.Explainer) (*batch.Processor, error) {
	opts, err := cfg.LayoutOptions()
	if err != nil {
		return nil, err
	}
	if processMode != "" {
		mode, err := layout.ParseRenderMode(processMode)
		if err != nil {
			return nil, err
		}
		opts.Mode = mode
	}
	instruction := cfg.Generation.Instruction
	if instruction == "" {
		instruction = config.DefaultInstruction
	}

	fontPath := cfg.Layout.FontPath
	if processFont != "" {
		fontPath = processFont
	}
	if fontPath == "" {
		if path, ok := pdfout.FindFont(fontCandidates, pdfout.CJKProbe); ok {
			fontPath = path
		} else if !pdfout.WinAnsiOnly(instruction) {
			return nil, pdfout.ErrNoUnicodeFont
		}
	}

	return &batch.Processor{
		Explainer:   explainer,
		Instruction: instruction,
		DPI:         cfg.Render.DPI,
		PreviewSize: cfg.Render.PreviewSize,
		Concurrency: cfg.Pool.Concurrency,
		Blank:       cfg.BlankRetry(),
		Compose:     compose.Options{Layout: opts},
		FontPath:    fontPath,
	}, nil
}
