package main

import (
	"context"
	"fmt"
	"os"

	"github.com/quipper/poc/lti/tool/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	// a bare invocation serves, like the container entrypoint expects
	if len(os.Args) == 1 {
		cmd.SetArgs([]string{"serve"})
	}
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
