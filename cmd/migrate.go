package cmd

import (
	"fmt"
	"os"

	"github.com/wcallahan/searchai/db"
	"github.com/wcallahan/searchai/internal/config"
)

func runMigrate() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load configuration:", err)
		return 1
	}
	if cfg.DatabaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is not configured")
		return 1
	}
	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		return 1
	}
	fmt.Println("migrations applied")
	return 0
}
