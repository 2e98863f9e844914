package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pavelanni/mockinterview/internal/store"
)

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import FILE...",
		Short: "Import JSON or YAML question bank files into the database",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runImport,
	}
	cmd.Flags().String("db", "mockinterview.db", "SQLite database path")
	addLogFlags(cmd)
	return cmd
}

func runImport(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	out := cmd.OutOrStdout()
	for _, path := range args {
		status, n, err := db.ImportFile(path)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s: %s (%d questions)\n", path, status, n)
	}

	total, err := db.QuestionCount()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "question bank holds %d questions\n", total)
	return nil
}
