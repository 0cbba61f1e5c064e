package cmd

import (
	"fmt"
	"os"

	"github.com/k0kubun/pp/v3"
	"github.com/spf13/cobra"

	"github.com/SouravInsights/permissionless-go/storage"
	"github.com/SouravInsights/permissionless-go/storage/schema"
)

var (
	journalStatus string
	journalVacuum bool

	journalCmd = &cobra.Command{
		Use:   "journal",
		Short: "Inspect the submission journal",
		Long: `List journaled user operations and their outcomes. Failed entries
carry the classified failure kind the bundler error mapped to.`,
		Run: func(cmd *cobra.Command, args []string) {
			if err := runJournal(); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				os.Exit(1)
			}
		},
	}
)

func init() {
	journalCmd.Flags().StringVar(&journalStatus, "status", "", "Filter by status: pending, confirmed, or failed")
	journalCmd.Flags().BoolVar(&journalVacuum, "vacuum", false, "Run value log garbage collection before listing")
	journalCmd.Flags().StringVar(&journalDBPath, "journal-db", "./data/journal", "Path of the submission journal database")

	rootCmd.AddCommand(journalCmd)
}

func runJournal() error {
	db, err := storage.NewWithPath(journalDBPath)
	if err != nil {
		return fmt.Errorf("cannot open journal db: %w", err)
	}
	defer db.Close()

	if journalVacuum {
		if err := db.Vacuum(); err != nil {
			return fmt.Errorf("vacuum failed: %w", err)
		}
	}

	journal := storage.NewJournal(db)

	counts, err := journal.Counts()
	if err != nil {
		return err
	}
	backlog, err := journal.Backlog()
	if err != nil {
		return err
	}
	fmt.Printf("Totals: pending=%d confirmed=%d failed=%d (backlog: %d awaiting receipt)\n\n",
		counts[schema.StatusPending], counts[schema.StatusConfirmed], counts[schema.StatusFailed], backlog)

	statuses := []schema.SubmissionStatus{schema.StatusPending, schema.StatusConfirmed, schema.StatusFailed}
	if journalStatus != "" {
		s := schema.SubmissionStatus(journalStatus)
		switch s {
		case schema.StatusPending, schema.StatusConfirmed, schema.StatusFailed:
			statuses = []schema.SubmissionStatus{s}
		default:
			return fmt.Errorf("unknown status %q", journalStatus)
		}
	}

	for _, status := range statuses {
		entries, err := journal.ListByStatus(status)
		if err != nil {
			return err
		}

		for _, e := range entries {
			line := fmt.Sprintf("%s  %-9s  sender=%s  userOpHash=%s", e.ID, e.Status, e.Sender.Hex(), e.UserOpHash.Hex())
			if e.Status == schema.StatusFailed && e.FailureKind != "" {
				line += "  failure=" + e.FailureKind
			}
			if e.Status == schema.StatusConfirmed {
				line += "  tx=" + e.TxHash.Hex()
			}
			fmt.Println(line)

			if verbose {
				pp.Println(e.Operation)
			}
		}
	}

	return nil
}
