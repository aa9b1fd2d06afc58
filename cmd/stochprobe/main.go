// cmd/stochprobe/main.go
package main

import (
	cmd "github.com/mwiater/stochprobe/internal/cli"
)

// main starts the stochprobe CLI by delegating to the cobra root command.
func main() {
	cmd.Execute()
}
