package cmd

// Version is the CLI version, overridden at build time via
// -ldflags "-X github.com/hivefleet/hfo/internal/cmd.Version=...".
var Version = "0.9.0-dev"
