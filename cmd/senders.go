package cmd

import (
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/dhcgn/mail-to-joplin/decode"
	"github.com/dhcgn/mail-to-joplin/filter"
	"github.com/dhcgn/mail-to-joplin/mbox"
	"github.com/dhcgn/mail-to-joplin/model"
)

type senderCount struct {
	Sender   string
	Count    int
	Approved bool
}

// NewSendersCmd counts the senders of an mbox archive against the allow-list,
// which helps to fill --approved-sender before the first import.
func NewSendersCmd(fs afero.Fs) *cobra.Command {
	var (
		reportDir string
		topN      int
	)

	cmd := &cobra.Command{
		Use:   "senders [mbox file]",
		Short: "Count the senders of an mbox archive and check them against the allow-list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := filter.New(filter.Options{ApprovedSenders: approvedSenders(cmd)})
			decoder := decode.New(nil)

			counts := make(map[string]int)
			total := 0
			err := mbox.Scan(cmd.Context(), fs, args[0], func(raw []byte) error {
				msg := decoder.Decode(model.RawMessage{ID: mbox.MessageID(raw), Raw: raw})
				counts[msg.Sender]++
				total++
				return nil
			})
			if err != nil {
				return err
			}

			ranked := rankSenders(counts, f)
			out := cmd.OutOrStdout()
			if err := printSenders(out, ranked, total, topN); err != nil {
				return err
			}

			if reportDir != "" {
				path, err := saveCSVReport(fs, reportDir, ranked)
				if err != nil {
					return fmt.Errorf("error saving CSV report: %w", err)
				}
				fmt.Fprintf(out, "\nReport saved to: %s\n", path)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&reportDir, "output", "o", "", "Output directory for a CSV report (empty skips the report)")
	cmd.Flags().IntVarP(&topN, "top", "t", 10, "Number of senders to display")
	return cmd
}

func rankSenders(counts map[string]int, f *filter.Filter) []senderCount {
	ranked := make([]senderCount, 0, len(counts))
	for sender, n := range counts {
		ranked = append(ranked, senderCount{Sender: sender, Count: n, Approved: f.Accept(sender)})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].Sender < ranked[j].Sender
	})
	return ranked
}

func printSenders(out io.Writer, ranked []senderCount, total, topN int) error {
	approved := 0
	for _, s := range ranked {
		if s.Approved {
			approved += s.Count
		}
	}
	fmt.Fprintf(out, "Analyzed %d messages from %d senders, %d would be imported\n\n", total, len(ranked), approved)
	if len(ranked) == 0 {
		return nil
	}

	data := pterm.TableData{{"Sender", "Count", "Approved"}}
	for i := 0; i < topN && i < len(ranked); i++ {
		s := ranked[i]
		data = append(data, []string{displaySender(s.Sender), strconv.Itoa(s.Count), strconv.FormatBool(s.Approved)})
	}
	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return err
	}
	fmt.Fprintln(out, table)
	return nil
}

func saveCSVReport(fs afero.Fs, dir string, ranked []senderCount) (string, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	path := filepath.Join(dir, "report_senders.csv")
	file, err := fs.Create(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"Sender", "Count", "Approved"}); err != nil {
		return "", err
	}
	for _, s := range ranked {
		record := []string{s.Sender, strconv.Itoa(s.Count), strconv.FormatBool(s.Approved)}
		if err := writer.Write(record); err != nil {
			return "", err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return "", err
	}
	return path, nil
}

func displaySender(sender string) string {
	if sender == "" {
		return "(none)"
	}
	return sender
}
