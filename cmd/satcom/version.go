package main

import (
	"fmt"

	"github.com/spf13/cobra"

	pkgversion "github.com/pzverkov/satcom-uplink/pkg/version"
)

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(a.out, "%s (satcom %s)\n", pkgversion.Full(), getVersion())
			if buildTime != "unknown" {
				fmt.Fprintf(a.out, "Built: %s\n", buildTime)
			}
			if gitCommit != "unknown" {
				fmt.Fprintf(a.out, "Commit: %s\n", gitCommit)
			}
			return nil
		},
	}
}
