package main

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"amrkg/internal/logging"
	"amrkg/predictor"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatalf("amrkg: %v", err)
	}
}

// app holds the state shared by every subcommand once the root pre-run has
// loaded configuration and built the logger.
type app struct {
	configPath string
	envFiles   []string
	verbose    bool

	cfg    predictor.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "amrkg",
		Short: "Predict antimicrobial activity from SMILES with fingerprint models",
		Long: `amrkg normalizes SMILES strings, computes molecular fingerprints
(ECFP4, RDKit, MACCS, MHFP6 or ErG) and runs a pre-fitted classifier over them.

Model artifacts are looked up as {fingerprint}_{model}.json in the configured
model directory or S3 prefix.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to config.json or config.yaml (default: ./config.json)")
	root.PersistentFlags().StringSliceVar(&a.envFiles, "env", nil, "Env files to load before reading config (default: .env)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		newPredictCmd(a),
		newFeaturizeCmd(a),
		newCanonCmd(a),
		newColumnsCmd(),
		newFingerprintCmd(a),
		newModelsCmd(a),
		newServeCmd(a),
		newConfigCmd(a),
	)
	return root
}

func (a *app) init() error {
	if err := predictor.LoadEnvFiles(a.envFiles...); err != nil {
		return err
	}
	cfg, err := predictor.LoadConfig(strings.TrimSpace(a.configPath))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	level := cfg.Logging.Level
	if a.verbose {
		level = "debug"
	}
	logger, err := logging.New(level, cfg.Logging.Development)
	if err != nil {
		return err
	}
	predictor.SetColumnCandidates(cfg.Columns)
	a.cfg = cfg
	a.logger = logger
	return nil
}

// kind resolves a --fingerprint flag value, falling back to the configured
// default.
func (a *app) kind(flag string) (predictor.FingerprintKind, error) {
	if strings.TrimSpace(flag) == "" {
		return a.cfg.Kind()
	}
	return predictor.ParseFingerprintKind(flag)
}

func (a *app) model(flag string) string {
	if m := strings.TrimSpace(flag); m != "" {
		return m
	}
	return a.cfg.Model
}

func (a *app) generator() (*predictor.Generator, error) {
	var cache *predictor.VectorCache
	if a.cfg.VectorCache.Enabled {
		c, err := predictor.NewVectorCache(a.cfg.VectorCache.Dir)
		if err != nil {
			return nil, fmt.Errorf("init vector cache: %w", err)
		}
		cache = c
	}
	return predictor.NewGenerator(a.cfg.Fingerprints, cache), nil
}

func (a *app) loader(ctx context.Context) (*predictor.Loader, error) {
	store, err := predictor.NewStore(ctx, a.cfg.Artifacts)
	if err != nil {
		return nil, fmt.Errorf("open artifact store: %w", err)
	}
	return predictor.NewLoader(store,
		predictor.WithLoaderLogger(a.logger),
		predictor.WithORT(predictor.ORTOptions{LibraryPath: a.cfg.Artifacts.OrtLib}),
	), nil
}

// pipeline builds a pipeline that loads the artifact fresh for each run.
func (a *app) pipeline(ctx context.Context) (*predictor.Pipeline, error) {
	loader, err := a.loader(ctx)
	if err != nil {
		return nil, err
	}
	gen, err := a.generator()
	if err != nil {
		return nil, err
	}
	return predictor.NewPipeline(loader, gen, a.logger)
}
