package commands

import (
	"fmt"
	"log/slog"
	"math/rand"
	"os"

	"github.com/spf13/cobra"

	"github.com/ieee0824/rnnt-go/audio"
	"github.com/ieee0824/rnnt-go/internal/tensor"
	"github.com/ieee0824/rnnt-go/nnet"
)

var (
	modelPath string
	evalWavs  []string
)

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Run an evaluation step and report error rates",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		m, err := buildModel(cfg)
		if err != nil {
			return err
		}
		if modelPath != "" {
			f, err := os.Open(modelPath)
			if err != nil {
				return fmt.Errorf("open checkpoint: %w", err)
			}
			defer f.Close()
			ck, err := nnet.LoadCheckpoint(f)
			if err != nil {
				return err
			}
			m.Restore(ck)
			slog.Info("checkpoint restored", "path", modelPath)
		}
		m.Eval()

		rng := rand.New(rand.NewSource(cfg.Seed + 1))
		var speech *tensor.Tensor
		var lens []int
		var text [][]int
		if len(evalWavs) > 0 {
			speech, lens, err = audio.LoadBatch(evalWavs, cfg.Frontend.SampleRate)
			if err != nil {
				return err
			}
			text = randomLabels(cfg, rng, len(evalWavs))
		} else {
			speech, lens, text = makeBatch(cfg, rng, batchSize)
		}
		res, err := m.ForwardStep(speech, lens, text)
		if err != nil {
			return err
		}
		for _, name := range res.Stats.Names() {
			fmt.Printf("%s\t%.6f\n", name, res.Stats[name].Value)
		}
		return nil
	},
}

func init() {
	evalCmd.Flags().StringVarP(&modelPath, "model", "m", "", "checkpoint to restore before evaluation")
	evalCmd.Flags().StringSliceVarP(&evalWavs, "wav", "w", nil, "WAV files to evaluate instead of synthetic speech")
	rootCmd.AddCommand(evalCmd)
}
