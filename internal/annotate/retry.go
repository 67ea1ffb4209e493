package annotate

import (
	"context"
	"log/slog"

	"github.com/smartlecturer/lecturer/internal/metrics"
)

// Passer runs one annotation pass. *Pool implements it.
type Passer interface {
	RunPass(ctx context.Context, pages []int) []Result
}

// BlankRetryConfig configures remediation.
type BlankRetryConfig struct {
	Enabled  bool
	MinChars int
	Times    int
}

// Coordinator resubmits pages whose explanation is missing, failed or blank.
type Coordinator struct {
	pool   Passer
	cfg    BlankRetryConfig
	logger *slog.Logger
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(pool Passer, cfg BlankRetryConfig, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MinChars <= 0 {
		cfg.MinChars = DefaultMinChars
	}
	return &Coordinator{pool: pool, cfg: cfg, logger: logger}
}

// Report summarises remediation.
type Report struct {
	Passes     int
	Recovered  []int
	Unresolved []int
}

// Remediate runs up to Times extra passes over the pages among candidates
// that are still blank in m, merging successes into m after each pass.
// The returned retry results are in pass order.
func (c *Coordinator) Remediate(ctx context.Context, m ExplanationMap, candidates []int) (Report, []Result) {
	blank := BlankPages(m, candidates, c.cfg.MinChars)
	if !c.cfg.Enabled || c.cfg.Times <= 0 {
		return Report{Unresolved: blank}, nil
	}

	var (
		report  Report
		results []Result
		initial = blank
	)
	for pass := 1; pass <= c.cfg.Times && len(blank) > 0; pass++ {
		if ctx.Err() != nil {
			break
		}
		logger := c.logger.With("pass", pass)
		logger.Info("retrying blank pages", "pages", displayPages(blank))
		metrics.BlankRetryPass()
		report.Passes++

		passResults := c.pool.RunPass(ctx, blank)
		results = append(results, passResults...)

		for _, r := range passResults {
			if r.OK() && r.Text != "" {
				m[r.Page] = r.Text
			}
		}

		blank = BlankPages(m, blank, c.cfg.MinChars)
		if len(blank) > 0 {
			logger.Warn("pages still blank or failed", "pages", displayPages(blank))
		}
	}

	still := make(map[int]bool, len(blank))
	for _, p := range blank {
		still[p] = true
	}
	for _, p := range initial {
		if !still[p] {
			report.Recovered = append(report.Recovered, p)
		}
	}
	report.Unresolved = blank
	return report, results
}

// displayPages converts 0-based indices to the 1-based numbers users see.
func displayPages(pages []int) []int {
	out := make([]int, len(pages))
	for i, p := range pages {
		out[i] = p + 1
	}
	return out
}
