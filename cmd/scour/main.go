package main

import (
	"github.com/spf13/cobra"
)

func main() {
	var root = &cobra.Command{Use: "scour"}

	root.AddCommand(serveCMD(), migrateCMD(), runCMD())
	_ = root.Execute()
}
