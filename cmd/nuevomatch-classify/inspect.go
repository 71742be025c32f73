package main

import (
	"os"

	"github.com/spf13/cobra"
)

func newInspectCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <blob>",
		Short: "Load a classifier and print its subsets and worker stats",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, cleanup, err := loadContainer(args[0], flags)
			if err != nil {
				return err
			}
			defer cleanup()
			c.Print(os.Stdout, true)
			return nil
		},
	}
}
