// Command sqlitefile inspects and queries a SQLite database file directly,
// without linking against sqlite3.
package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"sqlitefile"
	"sqlitefile/sqlfrontend"
)

// logrusAdapter satisfies sqlitefile.Logger on top of a *logrus.Logger, so
// the core package never imports logrus directly.
type logrusAdapter struct{ l *logrus.Logger }

func (a logrusAdapter) Debugf(format string, args ...interface{}) { a.l.Debugf(format, args...) }
func (a logrusAdapter) Warnf(format string, args ...interface{})  { a.l.Warnf(format, args...) }
func (a logrusAdapter) Errorf(format string, args ...interface{}) { a.l.Errorf(format, args...) }

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var verbose bool

	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	root := &cobra.Command{
		Use:           "sqlitefile",
		Short:         "Inspect and query a SQLite database file",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				logger.SetLevel(logrus.DebugLevel)
			}
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log schema and I/O diagnostics")

	root.AddCommand(
		newTablesCmd(logger),
		newCountCmd(logger),
		newQueryCmd(logger),
	)
	return root
}

func openDB(path string, logger *logrus.Logger) (*sqlitefile.DB, error) {
	return sqlitefile.Open(path, sqlitefile.WithLogger(logrusAdapter{logger}))
}

func newTablesCmd(logger *logrus.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "tables <database-file>",
		Short: "List the tables defined in the database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(args[0], logger)
			if err != nil {
				return err
			}
			defer db.Close()

			tables, err := db.Tables(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TABLE\tCOLUMNS")
			for _, t := range tables {
				fmt.Fprintf(w, "%s\t%d\n", t.Name, len(t.Columns))
			}
			return w.Flush()
		},
	}
}

func newCountCmd(logger *logrus.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "count <database-file> <table>",
		Short: "Count the rows in a table",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(args[0], logger)
			if err != nil {
				return err
			}
			defer db.Close()

			n, err := db.CountTableRows(cmd.Context(), args[1])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
}

func newQueryCmd(logger *logrus.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "query <database-file> <sql>",
		Short: "Run a read-only SELECT against the database",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(args[0], logger)
			if err != nil {
				return err
			}
			defer db.Close()

			sel, err := sqlfrontend.Parse(args[1])
			if err != nil {
				return err
			}

			result, err := db.ExecuteQuery(cmd.Context(), sel)
			if err != nil {
				return err
			}

			return printResultSet(cmd, result)
		},
	}
}

func printResultSet(cmd *cobra.Command, result *sqlitefile.ResultSet) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	for i, col := range result.Columns {
		if i > 0 {
			fmt.Fprint(w, "\t")
		}
		fmt.Fprint(w, col)
	}
	fmt.Fprintln(w)

	for _, row := range result.Rows {
		for i, v := range row {
			if i > 0 {
				fmt.Fprint(w, "\t")
			}
			fmt.Fprint(w, v.String())
		}
		fmt.Fprintln(w)
	}
	return w.Flush()
}
