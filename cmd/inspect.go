package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/dhcgn/mail-to-joplin/config"
	"github.com/dhcgn/mail-to-joplin/credential"
	"github.com/dhcgn/mail-to-joplin/decode"
	"github.com/dhcgn/mail-to-joplin/filter"
	"github.com/dhcgn/mail-to-joplin/model"
)

// NewInspectCmd decodes a single .eml file the way an import would and prints
// the result without touching any mailbox or note store.
func NewInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect [message.eml]",
		Short: "Decode a message file and show what would be imported",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read message: %w", err)
			}

			msg := decode.New(nil).Decode(model.RawMessage{ID: filepath.Base(args[0]), Raw: raw})
			f := filter.New(filter.Options{ApprovedSenders: approvedSenders(cmd)})
			return printMessage(cmd.OutOrStdout(), msg, f)
		},
	}
}

func printMessage(out io.Writer, msg model.DecodedMessage, f *filter.Filter) error {
	approved := "yes"
	if !f.Accept(msg.Sender) {
		approved = "no"
	}

	data := pterm.TableData{
		{"Field", "Value"},
		{"Subject", msg.Subject},
		{"Sender", msg.Sender},
		{"Approved", approved},
		{"Attachments", strconv.Itoa(len(msg.Attachments))},
	}
	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return err
	}
	fmt.Fprintln(out, table)

	if msg.BodyErr != nil {
		fmt.Fprintf(out, "body decode error: %v\n", msg.BodyErr)
	}
	fmt.Fprintln(out, msg.Body)

	for _, att := range msg.Attachments {
		fmt.Fprintf(out, "- %s (%s, %d bytes)\n", att.Filename, att.ContentType, len(att.Content))
	}
	return nil
}

// approvedSenders reads the allow-list flag when the command inherits it.
func approvedSenders(cmd *cobra.Command) []string {
	if cmd.Flags().Lookup("approved-sender") == nil {
		return nil
	}
	senders, err := cmd.Flags().GetStringSlice("approved-sender")
	if err != nil {
		return nil
	}
	return senders
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	return config.LoadConfig(cmd, credential.LookupFunc(credential.Lookup))
}
