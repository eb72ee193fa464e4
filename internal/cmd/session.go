package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hivefleet/hfo/internal/gatemachine"
)

// protocolCommand builds the four-tile command tree for one protocol.
// prey8 and hive8 share the engine; only step names differ.
func protocolCommand(proto gatemachine.Protocol) *cobra.Command {
	parent := &cobra.Command{
		Use:   proto.Name,
		Short: fmt.Sprintf("Drive a %s session (%s/%s/%s/%s)", proto.Name,
			proto.Steps[0], proto.Steps[1], proto.Steps[2], proto.Steps[3]),
	}

	newEngine := func() (*gatemachine.Engine, func(), error) {
		rt, db, err := openStore()
		if err != nil {
			return nil, nil, err
		}
		w, b := writerFor(rt, db, proto.Name)
		e := gatemachine.NewEngine(proto, rt.Root, w, b)
		return e, func() { db.Close() }, nil
	}

	emit := func(r *gatemachine.Result) error {
		if jsonOut {
			return printJSON(r)
		}
		fmt.Printf("status: %s\n", r.Status)
		if r.SessionID != "" {
			fmt.Printf("session: %s  phase: %s\n", r.SessionID, r.Phase)
		}
		if r.Nonce != "" {
			fmt.Printf("nonce: %s\n", r.Nonce)
		}
		if r.Token != "" {
			fmt.Printf("token: %s\n", r.Token)
		}
		if r.Reason != "" {
			fmt.Printf("reason: %s\n", r.Reason)
		}
		if r.Instruction != "" {
			fmt.Printf("next: %s\n", r.Instruction)
		}
		return nil
	}

	var (
		agent         string
		observations  string
		memoryRefs    string
		digest        string
		nonce         string
		sharedRefs    string
		intent        string
		meadowsLevel  int
		justification string
		plan          string
		token         string
		sbeGiven      string
		sbeWhen       string
		sbeThen       string
		artifacts     string
		adversarial   string
		testCommand   string
		testOutput    string
		testStatus    string
	)

	perceive := &cobra.Command{
		Use:   proto.Steps[0],
		Short: "Tile one: open a session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, done, err := newEngine()
			if err != nil {
				return err
			}
			defer done()
			return emit(e.Perceive(agent, observations, memoryRefs, digest))
		},
	}
	perceive.Flags().StringVar(&agent, "agent", "", "agent id")
	perceive.Flags().StringVar(&observations, "observations", "", "what the agent sees")
	perceive.Flags().StringVar(&memoryRefs, "memory", "", "memory references")
	perceive.Flags().StringVar(&digest, "digest", "", "stigmergy digest")
	_ = perceive.MarkFlagRequired("agent")

	react := &cobra.Command{
		Use:   proto.Steps[1],
		Short: "Tile two: commit to a plan",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, done, err := newEngine()
			if err != nil {
				return err
			}
			defer done()
			return emit(e.React(agent, nonce, sharedRefs, intent, meadowsLevel, justification, plan))
		},
	}
	react.Flags().StringVar(&agent, "agent", "", "agent id")
	react.Flags().StringVar(&nonce, "nonce", "", "nonce from tile one")
	react.Flags().StringVar(&sharedRefs, "shared", "", "shared data references")
	react.Flags().StringVar(&intent, "intent", "", "navigation intent")
	react.Flags().IntVar(&meadowsLevel, "meadows", 0, "leverage level (1-12)")
	react.Flags().StringVar(&justification, "justify", "", "leverage justification")
	react.Flags().StringVar(&plan, "plan", "", "sequential plan")
	_ = react.MarkFlagRequired("agent")
	_ = react.MarkFlagRequired("nonce")

	execute := &cobra.Command{
		Use:   proto.Steps[2],
		Short: "Tile three: do the work",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, done, err := newEngine()
			if err != nil {
				return err
			}
			defer done()
			return emit(e.Execute(agent, token, sbeGiven, sbeWhen, sbeThen, artifacts, adversarial))
		},
	}
	execute.Flags().StringVar(&agent, "agent", "", "agent id")
	execute.Flags().StringVar(&token, "token", "", "token from tile two")
	execute.Flags().StringVar(&sbeGiven, "given", "", "SBE given clause")
	execute.Flags().StringVar(&sbeWhen, "when", "", "SBE when clause")
	execute.Flags().StringVar(&sbeThen, "then", "", "SBE then clause")
	execute.Flags().StringVar(&artifacts, "artifacts", "", "produced artifacts")
	execute.Flags().StringVar(&adversarial, "adversarial", "", "adversarial check result")
	_ = execute.MarkFlagRequired("agent")
	_ = execute.MarkFlagRequired("token")

	yield := &cobra.Command{
		Use:   proto.Steps[3],
		Short: "Tile four: prove it with tests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if testStatus != gatemachine.YieldPassed && testStatus != gatemachine.YieldFailed {
				return Usagef("--status must be %s or %s", gatemachine.YieldPassed, gatemachine.YieldFailed)
			}
			e, done, err := newEngine()
			if err != nil {
				return err
			}
			defer done()
			return emit(e.Yield(agent, token, testCommand, testOutput, testStatus))
		},
	}
	yield.Flags().StringVar(&agent, "agent", "", "agent id")
	yield.Flags().StringVar(&token, "token", "", "token from tile three")
	yield.Flags().StringVar(&testCommand, "test-command", "", "test command that ran")
	yield.Flags().StringVar(&testOutput, "test-output", "", "test output")
	yield.Flags().StringVar(&testStatus, "status", "", "PASSED or FAILED")
	_ = yield.MarkFlagRequired("agent")
	_ = yield.MarkFlagRequired("token")
	_ = yield.MarkFlagRequired("status")

	chain := &cobra.Command{
		Use:   "chain <agent>",
		Short: "Show an agent's current hash chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, done, err := newEngine()
			if err != nil {
				return err
			}
			defer done()
			entries := e.Chain(args[0])
			if jsonOut {
				return printJSON(entries)
			}
			for i, entry := range entries {
				fmt.Printf("%2d  %-10s %s\n", i, entry.Step, entry.Hash)
			}
			return nil
		},
	}

	parent.AddCommand(perceive, react, execute, yield, chain)
	return parent
}

func init() {
	rootCmd.AddCommand(protocolCommand(gatemachine.PREY8), protocolCommand(gatemachine.HIVE8))
}
