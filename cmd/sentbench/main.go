// Command sentbench evaluates sentence embedding models on downstream tasks.
package main

import (
	"github.com/joho/godotenv"

	"github.com/constantino-dev/sentbench/internal/cli"
)

func main() {
	// A missing .env is fine; SENTBENCH_* variables may come from the shell.
	_ = godotenv.Load()

	cli.Execute()
}
