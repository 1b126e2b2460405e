package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roar-ml/roar/internal/logger"
	"github.com/roar-ml/roar/internal/rerr"
	"github.com/roar-ml/roar/internal/roarconfig"
	"github.com/roar-ml/roar/internal/store"
)

var version = "0.0.0"

// globalFlags carries persistent flags shared by every subcommand.
type globalFlags struct {
	roarDir string
	debug   bool
	quiet   bool
}

func newRootCommand() *cobra.Command {
	var gf globalFlags

	root := &cobra.Command{
		Use:           "roar",
		Short:         "Traces commands, hashes artifacts, and records ML pipeline lineage",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&gf.roarDir, "roar-dir", "", "path to the .roar directory (default: ./.roar)")
	root.PersistentFlags().BoolVar(&gf.debug, "debug", false, "enable debug logging")
	root.PersistentFlags().BoolVarP(&gf.quiet, "quiet", "q", false, "suppress non-essential output")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		opts := []logger.Option{logger.WithFormat("text")}
		if gf.debug {
			opts = append(opts, logger.WithDebug())
		}
		if gf.quiet {
			opts = append(opts, logger.WithQuiet())
		}
		l := logger.NewLogger(opts...)
		ctx := logger.WithLogger(cmd.Context(), l)
		cmd.SetContext(ctx)
		return nil
	}

	root.AddCommand(
		newInitCommand(&gf),
		newRunCommand(&gf, false),
		newRunCommand(&gf, true),
		newRegisterCommand(&gf),
		newReproduceCommand(&gf),
		newConfigCommand(&gf),
		newDAGCommand(&gf),
		newShowCommand(&gf),
		newStatusCommand(&gf),
		newLogCommand(&gf),
		newResetCommand(&gf),
		newPopCommand(&gf),
		newEnvCommand(&gf),
		newLineageCommand(&gf),
		newAuthCommand(&gf),
	)
	return root
}

// resolveRoarDir returns the configured .roar directory, or ./.roar.
func resolveRoarDir(gf *globalFlags) (string, error) {
	if gf.roarDir != "" {
		abs, err := filepath.Abs(gf.roarDir)
		if err != nil {
			return "", rerr.Wrap(rerr.KindPreflight, "resolve roar dir", err)
		}
		return abs, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", rerr.Wrap(rerr.KindPreflight, "get working directory", err)
	}
	return filepath.Join(wd, ".roar"), nil
}

// openStore opens the store at roarDir/roar.db, erroring with a helpful
// message if .roar hasn't been initialized.
func openStore(roarDir string) (*store.Store, error) {
	if _, err := os.Stat(roarDir); err != nil {
		return nil, rerr.New(rerr.KindPreflight, fmt.Sprintf("%s not found; run `roar init` first", roarDir))
	}
	return store.Open(filepath.Join(roarDir, "roar.db"))
}

func loadConfig(roarDir string) (roarconfig.Config, error) {
	return roarconfig.Load(roarDir)
}

type appContext struct {
	ctx     context.Context
	roarDir string
	cfg     roarconfig.Config
	store   *store.Store
	log     logger.Logger
}

// setupApp is the common preamble of most subcommands: resolve .roar,
// load config, open the store, bind the logger.
func setupApp(cmd *cobra.Command, gf *globalFlags) (*appContext, error) {
	roarDir, err := resolveRoarDir(gf)
	if err != nil {
		return nil, err
	}
	cfg, err := loadConfig(roarDir)
	if err != nil {
		return nil, err
	}
	s, err := openStore(roarDir)
	if err != nil {
		return nil, err
	}
	return &appContext{
		ctx:     cmd.Context(),
		roarDir: roarDir,
		cfg:     cfg,
		store:   s,
		log:     logger.FromContext(cmd.Context()),
	}, nil
}

func (a *appContext) Close() {
	_ = a.store.Close()
}
