package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hivefleet/hfo/internal/audit"
)

var wishCmd = &cobra.Command{
	Use:   "wish",
	Short: "Invariant verifier: grant, audit, and revoke wishes",
}

func newVerifier() (*audit.Verifier, func(), error) {
	rt, db, err := openStore()
	if err != nil {
		return nil, nil, err
	}
	w, b := writerFor(rt, db, audit.WishSource)
	return audit.NewVerifier(db, rt, w, b), func() { db.Close() }, nil
}

func printWishReport(report *audit.WishReport) error {
	if jsonOut {
		return printJSON(report)
	}
	fmt.Printf("%s (%d checks)\n", report.Verdict, report.Checked)
	for _, v := range report.Violations {
		fmt.Printf("  %-22s %s\n", v.Check, v.Reason)
	}
	return nil
}

var wishAuditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Re-evaluate every check and update the registry",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		v, done, err := newVerifier()
		if err != nil {
			return err
		}
		defer done()
		report, err := v.Audit()
		if err != nil {
			return err
		}
		return printWishReport(report)
	},
}

var wishVerifyCmd = &cobra.Command{
	Use:   "verify <check>",
	Short: "Evaluate one named check",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, done, err := newVerifier()
		if err != nil {
			return err
		}
		defer done()
		report, err := v.Verify(args[0])
		if err != nil {
			return err
		}
		return printWishReport(report)
	},
}

var wishCheck string

var wishGrantCmd = &cobra.Command{
	Use:   "grant <wish-text>",
	Short: "Register a wish bound to a named check",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, done, err := newVerifier()
		if err != nil {
			return err
		}
		defer done()
		w, err := v.Grant(args[0], wishCheck)
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(w)
		}
		fmt.Printf("wish %s granted (%s): %s\n", w.WishID, w.LastVerdict, w.WishText)
		return nil
	},
}

var wishRevokeCmd = &cobra.Command{
	Use:   "revoke <wish-id>",
	Short: "Remove a wish from the registry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, done, err := newVerifier()
		if err != nil {
			return err
		}
		defer done()
		if err := v.Revoke(args[0]); err != nil {
			return err
		}
		fmt.Printf("wish %s revoked\n", args[0])
		return nil
	},
}

var wishListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered wishes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		v, done, err := newVerifier()
		if err != nil {
			return err
		}
		defer done()
		wishes := v.Wishes()
		if jsonOut {
			return printJSON(wishes)
		}
		for _, w := range wishes {
			fmt.Printf("%-10s %-8s %-22s x%d  %s\n",
				w.WishID, w.LastVerdict, w.CheckName, w.EvaluationCount, w.WishText)
		}
		return nil
	},
}

func init() {
	wishGrantCmd.Flags().StringVar(&wishCheck, "check", "", "check name to bind")
	_ = wishGrantCmd.MarkFlagRequired("check")

	wishCmd.AddCommand(wishAuditCmd, wishVerifyCmd, wishGrantCmd, wishRevokeCmd, wishListCmd)
	rootCmd.AddCommand(wishCmd)
}
