// Package cmd implements the searchai command line: serve, search, migrate,
// version, help.
package cmd

import (
	"fmt"
	"os"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

const usage = `searchai - web search assistant

Usage:
  searchai serve            start the HTTP API server
  searchai search <query>   run one enhanced search and print the results
  searchai migrate          apply database schema migrations
  searchai version          print the version
  searchai help             show this help

Configuration is read from ~/.searchai/config.yaml and environment
variables (OPENROUTER_API_KEY, GEMINI_API_KEY, SERPER_API_KEY,
DATABASE_URL).`

// Execute dispatches the command line and returns the process exit code.
func Execute() int {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		return 2
	}

	switch os.Args[1] {
	case "serve":
		return runServe()
	case "search":
		return runSearch(os.Args[2:])
	case "migrate":
		return runMigrate()
	case "version":
		fmt.Println("searchai", Version)
		return 0
	case "help", "-h", "--help":
		fmt.Println(usage)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s\n", os.Args[1], usage)
		return 2
	}
}
