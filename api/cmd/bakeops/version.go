package bakeops

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bakeops/bakeops/api/pkg/version"
)

func newVersionCmd() *cobra.Command {
	var versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(*cobra.Command, []string) {
			fmt.Println(version.Get())
		},
	}
	return versionCmd
}
