package commands

import (
	"fmt"
	"math/rand"

	"github.com/spf13/cobra"

	"github.com/ieee0824/rnnt-go/audio"
	"github.com/ieee0824/rnnt-go/internal/tensor"
)

var (
	extractFeats bool
	collectWavs  []string
)

var collectCmd = &cobra.Command{
	Use:   "collect-feats",
	Short: "Run feature collection for statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		m, err := buildModel(cfg)
		if err != nil {
			return err
		}
		m.ExtractFeatsInCollectStats = extractFeats

		var speech *tensor.Tensor
		var lens []int
		if len(collectWavs) > 0 {
			speech, lens, err = audio.LoadBatch(collectWavs, cfg.Frontend.SampleRate)
			if err != nil {
				return err
			}
		} else {
			rng := rand.New(rand.NewSource(cfg.Seed))
			speech, lens, _ = makeBatch(cfg, rng, batchSize)
		}
		feats, featLens, err := m.CollectFeats(speech, lens)
		if err != nil {
			return err
		}
		fmt.Printf("shape\t%v\n", feats.Shape)
		for b, l := range featLens {
			fmt.Printf("len[%d]\t%d\n", b, l)
		}
		return nil
	},
}

func init() {
	collectCmd.Flags().BoolVar(&extractFeats, "extract", false, "extract real features instead of raw input")
	collectCmd.Flags().StringSliceVarP(&collectWavs, "wav", "w", nil, "WAV files to collect over instead of synthetic speech")
	rootCmd.AddCommand(collectCmd)
}
