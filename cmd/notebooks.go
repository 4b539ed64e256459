package cmd

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/dhcgn/mail-to-joplin/config"
	"github.com/dhcgn/mail-to-joplin/joplin"
)

// StoreFactory opens the note store described by a config.
type StoreFactory func(cfg config.Config) joplin.Store

func NewNotebooksCmd(open StoreFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "notebooks",
		Short: "List the notebooks of the Joplin profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			names, err := open(cfg).ListNotebooks(cmd.Context())
			if err != nil {
				return fmt.Errorf("list notebooks: %w", err)
			}
			slices.Sort(names)

			out := cmd.OutOrStdout()
			for _, name := range names {
				marker := " "
				if name == cfg.Notebook {
					marker = "*"
				}
				fmt.Fprintf(out, "%s %s\n", marker, name)
			}
			if !slices.Contains(names, cfg.Notebook) {
				fmt.Fprintf(out, "target notebook %q does not exist yet, it is created on the first import\n", cfg.Notebook)
			}
			return nil
		},
	}
}
