// Command netrecon scans a single target host and prints a reconnaissance report.
package main

import "github.com/gunout/network-scanner/cmd/cli"

// Build information, set by ldflags during build.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	cli.SetVersion(version, commit, buildTime)
	cli.Execute()
}
