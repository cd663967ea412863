// finledgerctl is the operator CLI: run migrations, import CSV statements.
package main

import (
	"encoding/csv"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"finledger/internal/csvimport"
	"finledger/internal/importer"
	"finledger/internal/storage"
)

func main() {
	_ = godotenv.Load()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "finledgerctl",
		Short:         "Operator tooling for the finledger service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("db", "./data/finledger.db", "path to the SQLite database")
	root.AddCommand(migrateCmd(), importCmd())
	return root
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dbPath, _ := cmd.Flags().GetString("db")
			if err := storage.RunMigrations(dbPath); err != nil {
				return fmt.Errorf("run migrations: %w", err)
			}
			cmd.Println("migrations applied")
			return nil
		},
	}
}

func importCmd() *cobra.Command {
	var (
		ownerID    string
		accountID  string
		dateLayout string
	)
	cmd := &cobra.Command{
		Use:   "import <statement.csv>",
		Short: "Import a CSV statement into an account",
		Long: "Parses a CSV statement (header row required, with date, payee and " +
			"amount columns) and reconciles it into the given account.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dbPath, _ := cmd.Flags().GetString("db")
			store, err := storage.NewSQLiteStore(dbPath)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer store.Close()

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open statement: %w", err)
			}
			defer f.Close()

			header, err := csv.NewReader(f).Read()
			if err != nil {
				return fmt.Errorf("read header: %w", err)
			}
			mapping, err := csvimport.DetectMapping(header)
			if err != nil {
				return err
			}
			if _, err := f.Seek(0, 0); err != nil {
				return fmt.Errorf("rewind statement: %w", err)
			}
			candidates, err := csvimport.Parse(f, accountID, csvimport.Options{
				Mapping:    mapping,
				DateLayout: dateLayout,
				SkipHeader: true,
			})
			if err != nil {
				return err
			}

			res, err := importer.New(store, 0).Reconcile(cmd.Context(), ownerID, candidates)
			if err != nil {
				return fmt.Errorf("reconcile: %w", err)
			}
			cmd.Printf("imported %d transactions, dropped %d\n", res.Inserted, res.Dropped)
			return nil
		},
	}
	cmd.Flags().StringVar(&ownerID, "owner", "", "owner id the statement belongs to")
	cmd.Flags().StringVar(&accountID, "account", "", "target account id")
	cmd.Flags().StringVar(&dateLayout, "date-layout", csvimport.DefaultDateLayout, "Go time layout for the date column")
	cmd.MarkFlagRequired("owner")
	cmd.MarkFlagRequired("account")
	return cmd
}
