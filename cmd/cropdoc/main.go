package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Cyomorokenny1/CropDoc/internal/config"
	"github.com/Cyomorokenny1/CropDoc/internal/dataset"
	"github.com/Cyomorokenny1/CropDoc/internal/model"
	"github.com/Cyomorokenny1/CropDoc/internal/persist"
	"github.com/Cyomorokenny1/CropDoc/internal/trainer"
)

func main() {
	cfgPath := flag.String("config", "configs/cropdoc.yaml", "Path to YAML config")
	dataDir := flag.String("data-dir", "", "Override dataset root directory")
	modelPath := flag.String("model-path", "", "Override output model path")
	epochs := flag.Int("epochs", 0, "Number of training epochs")
	batchSize := flag.Int("batch-size", 0, "Batch size")
	imageSize := flag.Int("image-size", 0, "Square image resolution")
	numWorkers := flag.Int("num-workers", 0, "Number of data loader workers")
	seed := flag.Int64("seed", 0, "PRNG seed")
	logEvery := flag.Int("log-every", 0, "Log every N steps")

	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fatal("failed to load config", err)
	}

	cfg.ApplyOverrides(config.Overrides{
		DataDir:    *dataDir,
		ModelPath:  *modelPath,
		Epochs:     *epochs,
		BatchSize:  *batchSize,
		ImageSize:  *imageSize,
		NumWorkers: *numWorkers,
		Seed:       *seed,
		LogEvery:   *logEvery,
	})

	if err := cfg.Validate(); err != nil {
		fatal("invalid config", err)
	}

	classes, err := dataset.DiscoverClasses(cfg.DataDir)
	if err != nil {
		fatal("failed to discover classes", err)
	}
	samples, err := dataset.ListSamples(cfg.DataDir, classes)
	if err != nil {
		fatal("failed to list samples", err)
	}
	slog.Info("dataset discovered",
		"root", cfg.DataDir,
		"classes", dataset.ClassNames(classes),
		"images", len(samples),
	)

	// Catch an unwritable output path before spending epochs of compute.
	if err := persist.ProbeWritable(cfg.ModelPath); err != nil {
		fatal("model path check failed", err)
	}

	trainSamples, valSamples := dataset.Split(samples, cfg.ValSplit, cfg.Seed)
	trainLoader, err := dataset.NewLoader(dataset.LoaderOptions{
		Samples:    trainSamples,
		ImageSize:  cfg.ImageSize,
		NumWorkers: cfg.NumWorkers,
		Prefetch:   cfg.Prefetch,
		Seed:       cfg.Seed,
	})
	if err != nil {
		fatal("failed to build train loader", err)
	}
	var valLoader *dataset.Loader
	if len(valSamples) > 0 {
		valLoader, err = dataset.NewLoader(dataset.LoaderOptions{
			Samples:    valSamples,
			ImageSize:  cfg.ImageSize,
			NumWorkers: cfg.NumWorkers,
			Prefetch:   cfg.Prefetch,
			Seed:       cfg.Seed,
		})
		if err != nil {
			fatal("failed to build validation loader", err)
		}
	}

	net, err := model.NewCNN(cfg.ImageSize, len(classes), cfg.Seed)
	if err != nil {
		fatal("failed to build model", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runCfg := trainer.RunConfig{
		Model:         net,
		Optimizer:     model.NewAdam(cfg.LearningRate),
		Train:         trainLoader,
		Val:           valLoader,
		Classes:       dataset.ClassNames(classes),
		Epochs:        cfg.Epochs,
		BatchSize:     cfg.BatchSize,
		LogEvery:      cfg.LogEvery,
		CheckpointDir: cfg.CheckpointDir,
	}
	if err := trainer.Run(ctx, runCfg); err != nil {
		fatal("training failed", err)
	}
	if skipped := trainLoader.Skipped(); skipped > 0 {
		slog.Warn("some images could not be decoded", "skipped", skipped)
	}

	if err := persist.Save(cfg.ModelPath, net, dataset.ClassNames(classes)); err != nil {
		fatal("failed to save model", err)
	}
	slog.Info("model saved", "path", cfg.ModelPath)
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}
