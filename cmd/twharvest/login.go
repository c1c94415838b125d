package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/twharvest/twharvest/pkg/browserscrape"
	"github.com/twharvest/twharvest/pkg/config"
	"github.com/twharvest/twharvest/pkg/cookies"
	"github.com/twharvest/twharvest/pkg/errors"
	"github.com/twharvest/twharvest/pkg/session"
	"github.com/twharvest/twharvest/pkg/ui"
)

var (
	loginCookiesFile string
	loginLax         bool
	loginInteractive bool
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store a cookie blob as the active session",
	Long: `Reads a cookie blob (pasted browser dev-tools cookies, a Netscape jar, or a
single Cookie header) from --cookies-file or standard input, normalizes it,
and persists it as the session every subsequent download uses.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var sess session.Session
		if loginInteractive {
			ui.PrintInfo("login", "opening a browser; sign in, then this command will continue automatically")
			found, err := browserscrape.InteractiveLogin(context.Background())
			if err != nil {
				return errors.Wrap(errors.Auth, err)
			}
			if missing := cookies.ValidateRequired(found, cookies.RequiredCookieNames); len(missing) > 0 {
				return errors.New(errors.Auth, fmt.Sprintf("missing required cookie(s) after interactive login: %v", missing))
			}
			sess = session.Session{Cookies: found, Valid: true}
		} else {
			blob, err := readCookieBlob(loginCookiesFile)
			if err != nil {
				return errors.Wrap(errors.Usage, err)
			}
			s, err := session.LoginWithCookies(blob, !loginLax)
			if err != nil {
				return errors.New(errors.Auth, err.Error())
			}
			sess = s
		}

		store := session.New(config.AppName, nil)
		if err := store.Save(sess); err != nil {
			return errors.Wrap(errors.Internal, err)
		}

		ui.PrintSuccess(fmt.Sprintf("session saved with %d cookie(s)", len(sess.Cookies)))
		return nil
	},
}

func readCookieBlob(path string) (string, error) {
	var r io.Reader = os.Stdin
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return "", fmt.Errorf("open cookies file: %w", err)
		}
		defer f.Close()
		r = f
	}
	data, err := io.ReadAll(bufio.NewReader(r))
	if err != nil {
		return "", fmt.Errorf("read cookie blob: %w", err)
	}
	blob := strings.TrimSpace(string(data))
	if blob == "" {
		return "", fmt.Errorf("empty cookie blob (pass --cookies-file or pipe cookies on stdin)")
	}
	return blob, nil
}

func init() {
	loginCmd.Flags().StringVar(&loginCookiesFile, "cookies-file", "", "path to a cookie blob file (default: read from stdin)")
	loginCmd.Flags().BoolVar(&loginLax, "lax", false, "accept the session even if required cookies (auth_token, ct0) are missing")
	loginCmd.Flags().BoolVar(&loginInteractive, "interactive", false, "open a visible browser and capture cookies after manual sign-in")
	rootCmd.AddCommand(loginCmd)
}
