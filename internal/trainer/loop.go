package trainer

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/Cyomorokenny1/CropDoc/internal/dataset"
	"github.com/Cyomorokenny1/CropDoc/internal/metrics"
	"github.com/Cyomorokenny1/CropDoc/internal/model"
	"github.com/Cyomorokenny1/CropDoc/internal/persist"
)

// RunConfig captures everything the training loop needs.
type RunConfig struct {
	Model         *model.Sequential
	Optimizer     *model.Adam
	Train         *dataset.Loader
	Val           *dataset.Loader
	Classes       []string
	Epochs        int
	BatchSize     int
	LogEvery      int
	CheckpointDir string
}

// Run executes the full fixed number of epochs: no early stopping, no
// resume. Each epoch streams shuffled batches from the loader, applies
// one optimizer step per batch, then evaluates the validation split and
// writes a checkpoint. The model is updated in place.
func Run(ctx context.Context, cfg RunConfig) error {
	if cfg.Epochs <= 0 {
		return errors.New("trainer: epochs must be > 0")
	}
	if cfg.BatchSize <= 0 {
		return errors.New("trainer: batch size must be > 0")
	}
	if cfg.LogEvery <= 0 {
		cfg.LogEvery = 10
	}

	// Unwind loader goroutines if we bail out mid-epoch.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		snap, err := runEpoch(ctx, cfg, epoch)
		if err != nil {
			return errors.Wrapf(err, "epoch %d", epoch)
		}
		attrs := []any{
			"epoch", epoch,
			"loss", snap.AvgLoss,
			"accuracy", snap.Accuracy,
			"images_per_sec", snap.ImagesPerSec,
		}
		if cfg.Val != nil {
			valLoss, valAcc, err := evaluate(ctx, cfg.Model, cfg.Val, cfg.BatchSize)
			if err != nil {
				return errors.Wrapf(err, "epoch %d validation", epoch)
			}
			attrs = append(attrs, "val_loss", valLoss, "val_accuracy", valAcc)
		}
		slog.Info("epoch complete", attrs...)

		if cfg.CheckpointDir != "" {
			path, err := persist.Checkpoint(cfg.CheckpointDir, epoch, cfg.Model, cfg.Classes)
			if err != nil {
				return errors.Wrapf(err, "epoch %d checkpoint", epoch)
			}
			slog.Info("checkpoint written", "epoch", epoch, "path", path)
		}
	}
	return nil
}

func runEpoch(ctx context.Context, cfg RunConfig, epoch int) (metrics.Snapshot, error) {
	samples, errs := cfg.Train.Epoch(ctx)

	var meter, window metrics.Meter
	step := 0
	for {
		startData := time.Now()
		batch, done, err := nextBatch(ctx, samples, cfg.BatchSize)
		if err != nil {
			return metrics.Snapshot{}, err
		}
		if done {
			if err, ok := <-errs; ok && err != nil {
				return metrics.Snapshot{}, err
			}
		}
		dataTime := time.Since(startData)

		if len(batch.Inputs) > 0 {
			startCompute := time.Now()
			loss, correct := cfg.Model.TrainStep(batch, cfg.Optimizer)
			computeTime := time.Since(startCompute)

			meter.Record(len(batch.Inputs), correct, dataTime, computeTime, loss)
			window.Record(len(batch.Inputs), correct, dataTime, computeTime, loss)
			step++

			if step%cfg.LogEvery == 0 {
				snap := window.Snapshot()
				slog.Info("train",
					"epoch", epoch,
					"step", step,
					"loss", snap.LastLoss,
					"images_per_sec", snap.ImagesPerSec,
					"data_ms", snap.AvgDataMS,
					"compute_ms", snap.AvgComputeMS,
				)
			}
		}
		if done {
			break
		}
	}
	snap := meter.Snapshot()
	if snap.Samples == 0 {
		return metrics.Snapshot{}, errors.New("no trainable samples in epoch")
	}
	return snap, nil
}

// nextBatch drains up to batchSize samples from the epoch stream. done
// reports that the stream is exhausted; the final batch may be short.
func nextBatch(ctx context.Context, samples <-chan dataset.Sample, batchSize int) (model.Batch, bool, error) {
	inputs := make([][]float64, 0, batchSize)
	labels := make([]int, 0, batchSize)
	for len(inputs) < batchSize {
		select {
		case <-ctx.Done():
			return model.Batch{}, false, ctx.Err()
		case sample, ok := <-samples:
			if !ok {
				return model.Batch{Inputs: inputs, Labels: labels}, true, nil
			}
			inputs = append(inputs, sample.Input)
			labels = append(labels, sample.Label)
		}
	}
	return model.Batch{Inputs: inputs, Labels: labels}, false, nil
}

func evaluate(ctx context.Context, net *model.Sequential, loader *dataset.Loader, batchSize int) (float64, float64, error) {
	samples, errs := loader.Epoch(ctx)

	totalLoss := 0.0
	totalCorrect := 0
	totalSamples := 0
	for {
		batch, done, err := nextBatch(ctx, samples, batchSize)
		if err != nil {
			return 0, 0, err
		}
		if done {
			if err, ok := <-errs; ok && err != nil {
				return 0, 0, err
			}
		}
		if len(batch.Inputs) > 0 {
			loss, correct := net.Eval(batch)
			totalLoss += loss * float64(len(batch.Inputs))
			totalCorrect += correct
			totalSamples += len(batch.Inputs)
		}
		if done {
			break
		}
	}
	if totalSamples == 0 {
		return 0, 0, nil
	}
	return totalLoss / float64(totalSamples), float64(totalCorrect) / float64(totalSamples), nil
}
