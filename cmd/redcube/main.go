// redcube generates multi-page social content packages for a topic by
// driving an eight-stage prompt pipeline, rendering the output as HTML
// cards, and optionally screenshotting them for publishing.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"redcube/internal/cache"
	"redcube/internal/config"
	"redcube/internal/gitops"
	"redcube/internal/imaging"
	"redcube/internal/llm"
	"redcube/internal/logging"
	"redcube/internal/render"
	"redcube/internal/workflow"
)

const version = "1.0.0"

var (
	configPath      string
	verbose         bool
	topic           string
	forceRegenerate bool
	gitAuto         bool
	noRender        bool
	capturePages    bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "redcube",
	Short: "RedCube - multi-stage AI content package generator",
	Long: `RedCube turns a single topic into a complete social content package
through eight sequential generation stages: persona, strategy, fact check,
insight, narrative, atomic design, HTML encoding, and imaging.

Every stage degrades gracefully: if the model output cannot be validated,
the stage falls back to a fixed default and the pipeline continues.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if verbose {
			cfg.Logging.DebugMode = true
			cfg.Logging.Level = "debug"
		}

		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("initialize logger: %w", err)
		}

		workspace, err := os.Getwd()
		if err != nil {
			workspace = "."
		}
		return logging.Initialize(workspace, cfg.Logging.DebugMode, cfg.Logging.Level)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline for a topic",
	Long: `Runs all eight stages for the given topic, writes HTML pages to the
output directory, and optionally captures PNG screenshots and commits the
results.

Example:
  redcube run -t "宝宝辅食添加" --capture --git-auto`,
	RunE: runPipeline,
}

var validateConfigCmd = &cobra.Command{
	Use:   "validate-config",
	Short: "Validate the configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		fmt.Printf("configuration OK (provider=%s model=%s)\n", cfg.LLM.Provider, cfg.LLM.Model)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("redcube %s\n", version)
	},
}

func runPipeline(cmd *cobra.Command, args []string) error {
	if topic == "" {
		return fmt.Errorf("a topic is required (-t, --topic)")
	}
	ctx := cmd.Context()

	client, err := llm.NewClientFromConfig(ctx, cfg)
	if err != nil {
		return err
	}

	store, err := cache.NewSQLiteCache(cfg.Workflow.CachePath)
	if err != nil {
		return fmt.Errorf("open artifact cache: %w", err)
	}
	defer store.Close()

	orchOpts := []workflow.Option{
		workflow.WithCache(store),
		workflow.WithStageTimeout(cfg.GetStageTimeout()),
		workflow.WithDigestRunes(cfg.Workflow.DigestMaxRunes),
	}

	var checkpointer *gitops.Checkpointer
	if gitAuto || cfg.Git.AutoCommit {
		checkpointer = gitops.NewCheckpointer(cfg.Git.RepoPath)
		orchOpts = append(orchOpts, workflow.WithPhaseObserver(
			func(ctx context.Context, phase workflow.Phase, result *workflow.Result) {
				label := fmt.Sprintf("%s %s", topic, phase)
				if gerr := checkpointer.Checkpoint(ctx, label, result.RunID); gerr != nil {
					logger.Warn("phase checkpoint failed",
						zap.String("phase", string(phase)), zap.Error(gerr))
				}
			}))
	}

	orch := workflow.NewOrchestrator(client, orchOpts...)

	force := forceRegenerate || cfg.Workflow.ForceRegenerate
	logger.Info("pipeline starting",
		zap.String("topic", topic),
		zap.Bool("force", force),
	)

	result, err := orch.Run(ctx, topic, force)
	if err != nil {
		return fmt.Errorf("pipeline interrupted: %w", err)
	}

	for _, stage := range result.Stages {
		field := zap.String("status", string(stage.ExecutionStatus))
		if stage.ExecutionStatus == workflow.StatusFallback {
			logger.Warn(stage.EngineName, field, zap.String("cause", stage.Error))
		} else {
			logger.Info(stage.EngineName, field)
		}
	}

	outputDir := filepath.Join(cfg.Render.OutputDir, sanitizeDirName(topic))
	if err := writeResultJSON(result, outputDir); err != nil {
		return err
	}

	var manifest *render.Manifest
	if !noRender {
		renderer, rerr := render.NewRenderer(cfg.Render.TemplateDir, outputDir)
		if rerr != nil {
			return rerr
		}
		if cfg.Render.WatchTemplates && cfg.Render.TemplateDir != "" {
			watcher, werr := render.NewTemplateWatcher(renderer)
			if werr != nil {
				logger.Warn("template watcher unavailable", zap.Error(werr))
			} else if werr = watcher.Start(ctx); werr == nil {
				defer watcher.Stop()
			}
		}
		manifest, rerr = renderer.Render(result)
		if rerr != nil {
			return fmt.Errorf("render pages: %w", rerr)
		}
		logger.Info("pages rendered",
			zap.Int("pages", len(manifest.PagePaths)),
			zap.String("dir", outputDir),
		)
	}

	if capturePages && manifest != nil {
		capturer := imaging.NewCapturer(cfg.Imaging)
		defer capturer.Close()
		shots, cerr := capturer.Capture(ctx, manifest.PagePaths, outputDir)
		if cerr != nil {
			logger.Warn("screenshot capture unavailable", zap.Error(cerr))
		} else {
			for _, shot := range shots {
				if shot.Err != nil {
					logger.Warn("page capture failed",
						zap.String("page", shot.SourcePath), zap.Error(shot.Err))
				}
			}
		}
	}

	if checkpointer != nil {
		label := fmt.Sprintf("%s render", topic)
		if gerr := checkpointer.Checkpoint(ctx, label, result.RunID); gerr != nil {
			logger.Warn("render checkpoint failed", zap.Error(gerr))
		}
	}

	logger.Info("pipeline complete",
		zap.String("run_id", result.RunID),
		zap.Duration("duration", result.Duration),
		zap.Int("fallbacks", result.FallbackCount()),
	)
	fmt.Printf("run %s finished: %d/%d stages succeeded, output in %s\n",
		result.RunID, len(result.Stages)-result.FallbackCount(), len(result.Stages), outputDir)
	return nil
}

func writeResultJSON(result *workflow.Result, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	raw, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	path := filepath.Join(outputDir, "result.json")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return nil
}

// sanitizeDirName keeps topic-derived directory names filesystem safe.
func sanitizeDirName(s string) string {
	out := []rune(s)
	for i, r := range out {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			out[i] = '_'
		}
	}
	return string(out)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "redcube.yaml", "Path to the configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	runCmd.Flags().StringVarP(&topic, "topic", "t", "", "Topic to generate content for (required)")
	runCmd.Flags().BoolVar(&forceRegenerate, "force-regenerate", false, "Ignore cached stage outputs and regenerate everything")
	runCmd.Flags().BoolVar(&gitAuto, "git-auto", false, "Commit generated artifacts after the run")
	runCmd.Flags().BoolVar(&noRender, "no-render", false, "Skip HTML page rendering")
	runCmd.Flags().BoolVar(&capturePages, "capture", false, "Screenshot rendered pages as PNG")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateConfigCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
