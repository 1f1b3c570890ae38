package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zring/cfbmodel/internal/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the current version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(out(cmd), version.String())
			return err
		},
	}
}
