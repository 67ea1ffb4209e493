package main

import (
	"github.com/spf13/cobra"

	"github.com/smartlecturer/lecturer/internal/api"
	"github.com/smartlecturer/lecturer/internal/explain"
)

var pairCmd = &cobra.Command{
	Use:   "pair <dir>",
	Short: "Show how PDFs and exported JSON files in a directory pair up",
	Long: `Pair matches PDFs with JSON exports by file name. Extensions, trailing
download counters such as " (1)" and letter case are ignored.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pairing, err := explain.PairDir(args[0])
		if err != nil {
			return err
		}
		return api.Output(pairingResult{
			Matches:        pairing.Matches,
			UnmatchedPDFs:  pairing.UnmatchedPDFs,
			UnmatchedJSONs: pairing.UnmatchedJSONs,
		})
	},
}

type pairingResult struct {
	Matches        []explain.Match `json:"matches" yaml:"matches"`
	UnmatchedPDFs  []string        `json:"unmatched_pdfs,omitempty" yaml:"unmatched_pdfs,omitempty"`
	UnmatchedJSONs []string        `json:"unmatched_jsons,omitempty" yaml:"unmatched_jsons,omitempty"`
}

func init() {
	rootCmd.AddCommand(pairCmd)
}
