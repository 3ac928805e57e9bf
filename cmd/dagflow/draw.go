package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/drblury/dagflow/internal/runtime/flow"
	"github.com/drblury/dagflow/internal/runtime/jsoncodec"
)

func newDrawCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "draw",
		Short: "Render the demo graph",
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := flow.New("hello", demoGraph(cmd.OutOrStdout()))
			if err != nil {
				return err
			}
			asJSON, err := cmd.Flags().GetBool("json")
			if err != nil {
				return err
			}
			if !asJSON {
				return f.Draw(cmd.OutOrStdout())
			}
			data, err := jsoncodec.MarshalIndent(f.Adjacency(), "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		},
	}
	cmd.Flags().Bool("json", false, "Print the adjacency list as JSON")
	return cmd
}
