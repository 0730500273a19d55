// Package main is the entry point for the brokerdemo command.
package main

import (
	"os"

	"github.com/stacklok/oauth2broker/cmd/brokerdemo/app"
	"github.com/stacklok/oauth2broker/pkg/logger"
)

func main() {
	logger.Initialize()

	if err := app.NewRootCmd().Execute(); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
}
