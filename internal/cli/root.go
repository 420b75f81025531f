// Package cli defines the blaze command tree.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/blazelab/blaze/internal/apply"
	"github.com/blazelab/blaze/internal/config"
	"github.com/blazelab/blaze/internal/engine"
	"github.com/blazelab/blaze/internal/gitvc"
	"github.com/blazelab/blaze/internal/store"
	"github.com/blazelab/blaze/internal/workspace"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

var configFile string

var rootCmd = &cobra.Command{
	Use:   "blaze",
	Short: "blaze — response-tag engine for AI-generated apps",
	Long: `blaze parses action tags out of AI assistant responses, applies them to
an app's working tree with one git commit per response, and budgets
automatic error remediation per error fingerprint.

State is stored in ~/.blaze/ (SQLite); app working trees live under the
configured apps root (default ~/blaze-apps).`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to config file")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(sanitizeCmd)
	rootCmd.AddCommand(fixCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(dbCmd)
}

func loadConfig() (*config.Config, error) {
	if configFile != "" {
		return config.Load(configFile)
	}
	return config.LoadDefault()
}

func openStore(cfg *config.Config) (*store.Store, error) {
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := st.Migrate(); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return st, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func buildEngine(cfg *config.Config, st *store.Store) (*engine.Engine, error) {
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	git := &gitvc.ExecGit{}
	pipeline := apply.NewPipeline(
		workspace.NewResolver(cfg.AppsRoot),
		git,
		apply.NewGitScanner(git),
		logger,
	)
	return engine.New(pipeline, st, cfg, logger), nil
}
