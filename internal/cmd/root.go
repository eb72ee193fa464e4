// Package cmd provides CLI commands for the hfo tool.
package cmd

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hivefleet/hfo/internal/hfo"
	"github.com/hivefleet/hfo/internal/route"
	"github.com/hivefleet/hfo/internal/sigil"
	"github.com/hivefleet/hfo/internal/stigmergy"
	"github.com/hivefleet/hfo/internal/store"
)

var rootCmd = &cobra.Command{
	Use:     "hfo",
	Short:   "Hive Fleet Obsidian - self-governing daemon fleet",
	Version: Version,
	Long: `hfo operates a fleet of daemons coordinated through a shared
append-only event log (the SSOT). Daemons never call each other; they
read and write events, and the coordinator, supervisors, and audit
tools close the loop over the same store.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Exit codes. Typed core errors are the operator's signal that a gate
// fired or the store is missing; usage mistakes are their own code.
const (
	ExitOK    = 0
	ExitError = 1
	ExitUsage = 2
)

// usageError marks operator mistakes (bad flags, bad arguments).
type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

// Usagef builds a usage error.
func Usagef(format string, args ...interface{}) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

// Execute runs the root command and returns an exit code. The caller
// (main) should call os.Exit with this code.
func Execute() int {
	cmd, err := rootCmd.ExecuteC()
	if err == nil {
		return ExitOK
	}
	fmt.Fprintf(os.Stderr, "hfo: %v\n", err)

	if isTypedCoreError(err) {
		return ExitError
	}
	var ue *usageError
	if errors.As(err, &ue) {
		return ExitUsage
	}
	// Cobra's own parse failures are usage errors too.
	if cmd != nil && !cmd.Runnable() {
		return ExitUsage
	}
	return ExitError
}

// jsonOut is the global machine-readable output flag.
var jsonOut bool

func init() {
	cobra.EnablePrefixMatching = true
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "machine-readable JSON output")
	// Flag parse failures on runnable commands are operator mistakes too.
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return Usagef("%v", err)
	})
}

// printJSON renders v as indented JSON on stdout.
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// openRuntime discovers the workspace from the current directory.
func openRuntime() (*hfo.Runtime, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting working directory: %w", err)
	}
	return hfo.NewRuntime(cwd)
}

// openStore opens the blessed store read-write along with the runtime.
func openStore() (*hfo.Runtime, *sql.DB, error) {
	rt, err := openRuntime()
	if err != nil {
		return nil, nil, err
	}
	db, err := store.OpenRW(rt.DBPath)
	if err != nil {
		return nil, nil, err
	}
	return rt, db, nil
}

// openStoreRO opens the store read-only for audit and status commands.
func openStoreRO() (*hfo.Runtime, *sql.DB, error) {
	rt, err := openRuntime()
	if err != nil {
		return nil, nil, err
	}
	db, err := store.OpenRO(rt.DBPath)
	if err != nil {
		return nil, nil, err
	}
	return rt, db, nil
}

// writerFor builds the canonical writer and metadata builder for a source.
func writerFor(rt *hfo.Runtime, db *sql.DB, source string) (*stigmergy.Writer, *sigil.Builder) {
	return stigmergy.NewWriter(db, rt.Generation, source), sigil.NewBuilder(rt.Generation)
}

// isTypedCoreError reports whether err is one of the structural gate or
// routing errors that map to exit code 1 with a clean message.
func isTypedCoreError(err error) bool {
	var missing *stigmergy.SignalMetadataMissingError
	var incomplete *stigmergy.SignalMetadataIncompleteError
	return errors.As(err, &missing) || errors.As(err, &incomplete) ||
		route.IsNoRoute(err) || errors.Is(err, store.ErrUnavailable)
}
