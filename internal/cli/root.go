// Package cli implements the tutor-engine CLI commands.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rcliao/tutor-engine/internal/config"
	"github.com/rcliao/tutor-engine/internal/logger"
	"github.com/rcliao/tutor-engine/internal/resume"
	"github.com/rcliao/tutor-engine/internal/store"
)

var (
	dbPath  string
	logMode string

	cfg *config.Config
	log *logger.Logger
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "tutor-engine",
	Short: "Narrated lesson playback with doubt resolution and resumable quizzes",
	Long:  "Plays narrated lessons, pauses them for learner doubts answered by a generation backend, and runs timed quizzes that survive restarts. State is SQLite-backed.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		c, err := config.Load()
		if err != nil {
			exitErr("load config", err)
		}
		if dbPath != "" {
			c.DBPath = dbPath
		}
		if logMode != "" {
			c.LogMode = logMode
		}
		l, err := logger.New(c.LogMode)
		if err != nil {
			exitErr("init logger", err)
		}
		cfg, log = c, l
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			log.Sync()
		}
	},
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path (default: $TUTOR_ENGINE_DB or ~/.tutor-engine/state.db)")
	RootCmd.PersistentFlags().StringVar(&logMode, "log", "", "Log mode: dev, prod or quiet (default: $TUTOR_LOG_MODE or quiet)")
}

func openStore() (*store.SQLiteStore, error) {
	return store.NewSQLiteStore(cfg.DBPath)
}

func openResume(s store.Store) *resume.Store {
	return resume.New(s, nil, log)
}

// openSessionResume opens the resume store for a lesson or quiz session. When
// the database cannot be opened the session runs without resume: the store is
// nil and closing is a no-op.
func openSessionResume() (*resume.Store, func()) {
	s, err := openStore()
	if err != nil {
		log.Warn("resume unavailable", "db", cfg.DBPath, "error", err)
		return nil, func() {}
	}
	return openResume(s), func() { s.Close() }
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
