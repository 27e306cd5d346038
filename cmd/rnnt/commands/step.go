package commands

import (
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	rnnt "github.com/ieee0824/rnnt-go"
	"github.com/ieee0824/rnnt-go/config"
	"github.com/ieee0824/rnnt-go/internal/tensor"
)

var (
	stepCount    int
	savePath     string
	speedPerturb bool
	workers      int
)

var stepCmd = &cobra.Command{
	Use:   "step",
	Short: "Run training forward steps over synthetic batches",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		m, err := buildModel(cfg)
		if err != nil {
			return err
		}
		m.Train()
		rng := rand.New(rand.NewSource(cfg.Seed))

		if workers > 1 {
			if err := runParallel(m, cfg, rng); err != nil {
				return err
			}
			return saveCheckpoint(m)
		}

		for i := 0; i < stepCount; i++ {
			speech, lens, text := makeBatch(cfg, rng, batchSize)
			if speedPerturb {
				speech, lens = speedPerturbBatch(speech, lens, rng)
			}
			batchID := uuid.NewString()
			res, err := m.ForwardStep(speech, lens, text)
			if err != nil {
				return fmt.Errorf("step %d (batch %s): %w", i, batchID, err)
			}

			attrs := []any{"step", i, "batch", batchID, "batch_size", res.BatchSize}
			for _, name := range res.Stats.Names() {
				attrs = append(attrs, name, res.Stats[name].Value)
			}
			slog.Info("forward step", attrs...)
			fmt.Fprintf(os.Stderr, "step %d/%d loss=%.4f\r", i+1, stepCount, res.Loss)
		}
		fmt.Fprintln(os.Stderr)
		return saveCheckpoint(m)
	},
}

// runParallel steps independent batches across workers and reports the
// batch-weighted reduction of their statistics.
func runParallel(m *rnnt.Model, cfg *config.Config, rng *rand.Rand) error {
	type job struct {
		speech *tensor.Tensor
		lens   []int
		text   [][]int
	}
	jobs := make([]job, stepCount)
	for i := range jobs {
		speech, lens, text := makeBatch(cfg, rng, batchSize)
		if speedPerturb {
			speech, lens = speedPerturbBatch(speech, lens, rng)
		}
		jobs[i] = job{speech, lens, text}
	}

	results := make([]rnnt.StepResult, stepCount)
	errs := make([]error, stepCount)
	var wg sync.WaitGroup
	sem := make(chan struct{}, workers)
	for i := range jobs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			res, err := m.ForwardStep(jobs[i].speech, jobs[i].lens, jobs[i].text)
			if err != nil {
				errs[i] = fmt.Errorf("step %d: %w", i, err)
				return
			}
			results[i] = *res
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}

	red := rnnt.Reduce(results)
	attrs := []any{"steps", stepCount, "workers", workers}
	for _, name := range red.Names() {
		attrs = append(attrs, name, red[name].Value)
	}
	slog.Info("reduced stats", attrs...)
	return nil
}

func saveCheckpoint(m *rnnt.Model) error {
	if savePath == "" {
		return nil
	}
	f, err := os.Create(savePath)
	if err != nil {
		return fmt.Errorf("create checkpoint: %w", err)
	}
	defer f.Close()
	if err := m.Checkpoint().Save(f); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	slog.Info("checkpoint saved", "path", savePath)
	return nil
}

func init() {
	stepCmd.Flags().IntVarP(&stepCount, "steps", "n", 10, "number of forward steps")
	stepCmd.Flags().StringVarP(&savePath, "save", "o", "", "write model checkpoint to this path")
	stepCmd.Flags().BoolVar(&speedPerturb, "speed-perturb", false, "apply three-way speed perturbation")
	stepCmd.Flags().IntVarP(&workers, "workers", "j", 1, "concurrent batches")
	rootCmd.AddCommand(stepCmd)
}
