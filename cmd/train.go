package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tankerfleet/tankerfleet/app"
	"github.com/tankerfleet/tankerfleet/config"
	"github.com/tankerfleet/tankerfleet/core/ml"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Run one training pass over the history window and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		svc, err := app.New(cfg)
		if err != nil {
			return err
		}
		trained, err := svc.Pipeline.TrainAll(context.Background())
		if errors.Is(err, ml.ErrInsufficientData) {
			fmt.Println("not enough history to train")
			return nil
		}
		if err != nil {
			return err
		}
		if trained {
			fmt.Println("models trained and activated")
		} else {
			fmt.Println("no model had enough samples")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(trainCmd)
}
