package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"cytodx/errdefs"
	"cytodx/serving"
	"cytodx/store"
)

func (c *CLI) newPredictCommand() *cobra.Command {
	var (
		modelDir  string
		version   string
		features  string
		namedPath string
	)

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Classify one record with a published model",
		Args:  cobra.NoArgs,
		Example: `  cytodx predict --features "17.99,10.38,122.8,..."
  cytodx predict --named record.json --version 0192...`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("model-dir") {
				c.cfg.Model.Dir = modelDir
			}
			req, err := buildRequest(features, namedPath)
			if err != nil {
				return err
			}

			st := store.New(c.cfg.Model.Dir, store.WithLogger(c.logger))
			var pair *store.Pair
			if version != "" {
				pair, err = st.LoadVersion(version)
			} else {
				pair, err = st.Load()
			}
			if err != nil {
				return err
			}
			predictor, err := serving.NewPredictor(pair)
			if err != nil {
				return err
			}
			pred, err := predictor.Serve(req)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(pred)
		},
	}

	cmd.Flags().StringVar(&modelDir, "model-dir", "", "artifact directory (overrides model.dir)")
	cmd.Flags().StringVar(&version, "version", "", "artifact version (default: current)")
	cmd.Flags().StringVar(&features, "features", "", "30 comma separated feature values in schema order")
	cmd.Flags().StringVar(&namedPath, "named", "", "JSON file mapping feature names to values")
	cmd.MarkFlagsMutuallyExclusive("features", "named")
	cmd.MarkFlagsOneRequired("features", "named")
	return cmd
}

func buildRequest(features, namedPath string) (serving.Request, error) {
	if namedPath == "" {
		values, err := parseFeatures(features)
		if err != nil {
			return serving.Request{}, err
		}
		return serving.Request{Features: values}, nil
	}
	data, err := os.ReadFile(namedPath)
	if err != nil {
		return serving.Request{}, err
	}
	var named map[string]float64
	if err := json.Unmarshal(data, &named); err != nil {
		return serving.Request{}, fmt.Errorf("%w: %s: %v", errdefs.ErrInvalidInput, namedPath, err)
	}
	return serving.Request{Named: named}, nil
}
