package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/twharvest/twharvest/pkg/config"
	"github.com/twharvest/twharvest/pkg/cookies"
	"github.com/twharvest/twharvest/pkg/errors"
	"github.com/twharvest/twharvest/pkg/session"
	"github.com/twharvest/twharvest/pkg/ui"
)

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Report whether a usable session is stored",
	RunE: func(cmd *cobra.Command, args []string) error {
		store := session.New(config.AppName, nil)
		sess, err := store.Load()
		if err != nil {
			return errors.Wrap(errors.Internal, err)
		}
		if sess == nil || !sess.Valid {
			return errors.New(errors.Auth, "no valid session stored; run \"twharvest login\"")
		}

		missing := cookies.ValidateRequired(sess.Cookies, cookies.RequiredCookieNames)
		if len(missing) > 0 {
			return errors.New(errors.Auth, fmt.Sprintf("stored session is missing required cookie(s): %v", missing))
		}

		triples := session.ExtractAuthTriples(*sess)
		ui.PrintSuccess(fmt.Sprintf("session valid, %d cookie(s), %d auth triple(s), last updated %s", len(sess.Cookies), len(triples), sess.UpdatedAt))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(whoamiCmd)
}
