package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dhcgn/mail-to-joplin/credential"
	"github.com/dhcgn/mail-to-joplin/gmail"
)

func NewGmailLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gmail-login",
		Short: "Authorize access to the Gmail account and store the OAuth token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			credentials, err := cmd.Flags().GetString("credentials")
			if err != nil {
				return err
			}
			token, err := cmd.Flags().GetString("token")
			if err != nil {
				return err
			}

			oauthCfg, err := gmail.OAuthConfig(credentials)
			if err != nil {
				return err
			}
			if err := gmail.Authorize(cmd.Context(), oauthCfg, token, cmd.InOrStdin(), cmd.OutOrStdout()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Token saved to %s\n", token)
			return nil
		},
	}
}

// NewIMAPPasswordCmd stores the IMAP password in the keyring so it does not
// have to appear on the command line. The password is read from stdin.
func NewIMAPPasswordCmd(open func() (*credential.Store, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "imap-password",
		Short: "Store the IMAP password for --imap-user at --imap-host in the system keyring",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			host, err := cmd.Flags().GetString("imap-host")
			if err != nil {
				return err
			}
			user, err := cmd.Flags().GetString("imap-user")
			if err != nil {
				return err
			}
			if host == "" || user == "" {
				return fmt.Errorf("--imap-host and --imap-user are required")
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Password for %s@%s: ", user, host)
			pass, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && !errors.Is(err, io.EOF) {
				return fmt.Errorf("read password: %w", err)
			}
			pass = strings.TrimRight(pass, "\r\n")
			if pass == "" {
				return fmt.Errorf("password is empty")
			}

			store, err := open()
			if err != nil {
				return err
			}
			if err := store.Set(credential.IMAPKey(user, host), pass); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "\nPassword stored.")
			return nil
		},
	}
}
