// main.go - Einstiegspunkt der streamkv CLI
package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/streamkv/streamkv/cmd"
)

func main() {
	cobra.CheckErr(cmd.NewCLI().ExecuteContext(context.Background()))
}
