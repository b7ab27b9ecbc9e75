package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fuomag9/swasthya-link/internal/wearable"
)

var wearableCmd = &cobra.Command{
	Use:   "wearable",
	Short: "Manage the wearable provider connection",
}

var wearableLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authorize access to the wearable account",
	Long: `Starts an authorization-code login with PKCE and prints the provider URL.

Open the URL, grant access, then paste the full URL your browser was
redirected to. The token is stored in the configured token store.`,
	Args: cobra.NoArgs,
	RunE: func(c *cobra.Command, _ []string) error {
		a, err := bootstrap()
		if err != nil {
			return err
		}
		defer a.close()

		mgr, err := a.requireWearable()
		if err != nil {
			return err
		}

		attempt, err := mgr.BeginLogin(c.Context())
		if err != nil {
			return err
		}

		out := c.OutOrStdout()
		fmt.Fprintf(out, "Open this URL to authorize access:\n\n  %s\n\n", attempt.URL)
		fmt.Fprintf(out, "The link expires at %s.\n", attempt.ExpiresAt.Local().Format("15:04:05"))
		fmt.Fprint(out, "Paste the redirect URL: ")

		line, err := bufio.NewReader(c.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("failed to read redirect URL: %w", err)
		}

		state, code, err := parseRedirect(line)
		if err != nil {
			_ = mgr.AbandonLogin(c.Context(), attempt.State)
			return err
		}

		st, err := mgr.CompleteLogin(c.Context(), state, code)
		if err != nil {
			return err
		}
		return printStatus(c, st)
	},
}

var wearableStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the stored token state",
	Args:  cobra.NoArgs,
	RunE: func(c *cobra.Command, _ []string) error {
		a, err := bootstrap()
		if err != nil {
			return err
		}
		defer a.close()

		mgr, err := a.requireWearable()
		if err != nil {
			return err
		}
		st, err := mgr.Status(c.Context())
		if err != nil {
			return err
		}
		return printStatus(c, st)
	},
}

var wearableRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Refresh the access token now",
	Args:  cobra.NoArgs,
	RunE: func(c *cobra.Command, _ []string) error {
		a, err := bootstrap()
		if err != nil {
			return err
		}
		defer a.close()

		mgr, err := a.requireWearable()
		if err != nil {
			return err
		}
		st, err := mgr.Refresh(c.Context())
		if err != nil {
			return err
		}
		return printStatus(c, st)
	},
}

var noRevoke bool

var wearableDisconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Revoke and delete the stored token",
	Args:  cobra.NoArgs,
	RunE: func(c *cobra.Command, _ []string) error {
		a, err := bootstrap()
		if err != nil {
			return err
		}
		defer a.close()

		mgr, err := a.requireWearable()
		if err != nil {
			return err
		}
		if err := mgr.Disconnect(c.Context(), !noRevoke); err != nil {
			return err
		}
		fmt.Fprintln(c.OutOrStdout(), "Disconnected.")
		return nil
	},
}

func init() {
	wearableDisconnectCmd.Flags().BoolVar(&noRevoke, "no-revoke", false, "Delete the local token without revoking it at the provider")
	wearableCmd.AddCommand(wearableLoginCmd, wearableStatusCmd, wearableRefreshCmd, wearableDisconnectCmd)
}

// parseRedirect extracts state and code from a pasted redirect URL. A bare
// query string is accepted too.
func parseRedirect(raw string) (state, code string, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", "", fmt.Errorf("no redirect URL given")
	}

	query := raw
	if u, perr := url.Parse(raw); perr == nil && u.RawQuery != "" {
		query = u.RawQuery
	}
	values, err := url.ParseQuery(strings.TrimPrefix(query, "?"))
	if err != nil {
		return "", "", fmt.Errorf("invalid redirect URL: %w", err)
	}

	if e := values.Get("error"); e != "" {
		return "", "", fmt.Errorf("authorization not granted: %s", e)
	}
	state, code = values.Get("state"), values.Get("code")
	if state == "" || code == "" {
		return "", "", fmt.Errorf("redirect URL is missing state or code")
	}
	return state, code, nil
}

func printStatus(c *cobra.Command, st *wearable.Status) error {
	enc := json.NewEncoder(c.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(st)
}
