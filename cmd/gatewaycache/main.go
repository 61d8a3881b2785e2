package main

import (
	"os"

	"github.com/small-frappuccino/gatewaycache/pkg/app"
	"github.com/small-frappuccino/gatewaycache/pkg/log"
)

// main is the entry point of the gateway cache process.
func main() {
	if err := app.Run("gatewaycache", "GATEWAYCACHE_BOT_TOKEN"); err != nil {
		log.Application().Error("fatal", "error", err)
		os.Exit(1)
	}
}
