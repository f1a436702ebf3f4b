// Command ddupbak is a deduplicating backup engine: it chunks file
// content into a content-addressed, refcounted store and writes
// restorable point-in-time archives referencing those chunks.
//
// Logging:
//   - Base logger is created here with output format and level
//   - Logger is passed to internal/repository via dependency injection
//   - No global slog configuration (no slog.SetDefault)
package main

import (
	"log/slog"
	"os"

	"ddupbak/cmd/ddupbak/cli"
	"ddupbak/internal/logging"
)

func main() {
	baseHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})
	filterHandler := logging.NewComponentFilterHandler(baseHandler, slog.LevelWarn)
	logger := slog.New(filterHandler)

	root := cli.NewRootCommand(logger)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
