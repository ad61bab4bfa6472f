package main

import (
	"os"

	"github.com/Zhima-Mochi/minishop-orders/internal/presentation/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
