package main

import (
	"github.com/calebmer/decode-universe-sub001/internal/cli"
	"github.com/calebmer/decode-universe-sub001/internal/logging"
)

func main() {
	// Initialize logging
	logging.Init()
	cli.Execute()
}
