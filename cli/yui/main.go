package main

import (
	"os"

	yuicmder "github.com/papercomputeco/yui/cmd/yui"
)

func main() {
	cmd := yuicmder.NewYuiCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
