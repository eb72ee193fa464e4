package cmd

import "testing"

func TestExecuteExitCodes(t *testing.T) {
	cases := []struct {
		name string
		args []string
		want int
	}{
		{"bad flag on runnable command", []string{"migrate", "--bogus"}, ExitUsage},
		{"unknown subcommand", []string{"nonesuch"}, ExitUsage},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rootCmd.SetArgs(tc.args)
			if got := Execute(); got != tc.want {
				t.Errorf("Execute(%v) = %d, want %d", tc.args, got, tc.want)
			}
		})
	}
}
