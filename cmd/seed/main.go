package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ManuelReschke/CourseFox/internal/pkg/database"
	"github.com/ManuelReschke/CourseFox/internal/pkg/env"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed the CourseFox database",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			env.SetupEnvFile()
		},
	}

	rootCmd.AddCommand(coursesCmd())
	rootCmd.AddCommand(plansCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// announceTarget prints the database the command is about to write to.
func announceTarget(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Uploading data to the database with the following config:\n\n")
	fmt.Fprintf(out, "  host=%s port=%s name=%s user=%s\n\n",
		env.GetEnv("DB_HOST", "127.0.0.1"),
		env.GetEnv("DB_PORT", "3306"),
		env.GetEnv("DB_NAME", ""),
		env.GetEnv("DB_USER", ""),
	)
	fmt.Fprintf(out, "Make sure that this is your own database, so that you have write access to it.\n\n")
}

func openDatabase() {
	database.SetupDatabase()
}
