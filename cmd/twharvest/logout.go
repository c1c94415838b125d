package main

import (
	"github.com/spf13/cobra"

	"github.com/twharvest/twharvest/pkg/config"
	"github.com/twharvest/twharvest/pkg/errors"
	"github.com/twharvest/twharvest/pkg/session"
	"github.com/twharvest/twharvest/pkg/ui"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored session",
	RunE: func(cmd *cobra.Command, args []string) error {
		store := session.New(config.AppName, nil)
		if err := store.Clear(); err != nil {
			return errors.Wrap(errors.Internal, err)
		}
		ui.PrintSuccess("session removed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(logoutCmd)
}
