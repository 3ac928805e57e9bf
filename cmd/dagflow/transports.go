package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/drblury/dagflow/transport"
)

func newTransportsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "transports",
		Short: "List the registered transports and their capabilities",
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tORDERED\tACK\tNACK\tDURABLE\tREDELIVERS\tMAX SIZE")
			for _, c := range transport.DefaultRegistry.Describe() {
				size := "-"
				if c.MaxMessageSize > 0 {
					size = fmt.Sprint(c.MaxMessageSize)
				}
				fmt.Fprintf(w, "%s\t%t\t%t\t%t\t%t\t%t\t%s\n",
					c.Name, c.Ordered, c.Ack, c.Nack, c.Durable, c.Redelivers(), size)
			}
			return w.Flush()
		},
	}
}
