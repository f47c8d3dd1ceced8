package main

import (
	"fmt"
	"os"

	"github.com/pboyd/interpose"
	"github.com/spf13/cobra"
)

var symbols []string

var rootCmd = &cobra.Command{
	Use:          "interpose-scan <mach-o file>",
	Short:        "List the indirect-call pointer slots a rebind pass would patch",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		sites, err := interpose.PreviewFile(args[0], symbols)
		if err != nil {
			return err
		}
		if len(sites) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no matching slots")
			return nil
		}
		for _, s := range sites {
			kind := "non-lazy"
			if s.Lazy {
				kind = "lazy"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s.%s\t%#x\t%s\t%s\n", s.Segment, s.Section, s.Address, s.Symbol, kind)
		}
		return nil
	},
}

func init() {
	rootCmd.Flags().StringSliceVar(&symbols, "symbol",
		[]string{"dispatch_async_f", "dispatch_after_f", "dispatch_async", "dispatch_after"},
		"Symbol to look for (repeatable)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
