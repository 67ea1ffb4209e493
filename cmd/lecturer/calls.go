package main

import (
	"github.com/spf13/cobra"

	"github.com/smartlecturer/lecturer/internal/api"
	"github.com/smartlecturer/lecturer/internal/home"
	"github.com/smartlecturer/lecturer/internal/llmcall"
)

var callsDocument string

var callsCmd = &cobra.Command{
	Use:   "calls",
	Short: "Summarize the generation call log",
	Long: `Calls reads ~/.lecturer/calls.jsonl, where every generation attempt is
recorded, and prints totals for tokens, latency and failures.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := home.New(homeDir)
		if err != nil {
			return err
		}
		calls, err := llmcall.ReadCalls(h.CallLogPath())
		if err != nil {
			return err
		}
		return api.Output(llmcall.Summarize(calls, callsDocument))
	},
}

func init() {
	callsCmd.Flags().StringVar(&callsDocument, "document", "", "only count calls for this document name")
	rootCmd.AddCommand(callsCmd)
}
