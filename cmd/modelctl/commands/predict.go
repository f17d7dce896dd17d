package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"modelkit/ml"
)

func newPredictCmd(a *app) *cobra.Command {
	var input string
	c := &cobra.Command{
		Use:   "predict MODEL",
		Short: "Run a prediction with a JSON object read from --input or stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if input != "" {
				r = strings.NewReader(input)
			}
			payload, err := decodeInput(r)
			if err != nil {
				return err
			}

			out, err := a.pool.Predict(args[0], payload)
			var invalid *ml.SchemaValidationError
			if errors.As(err, &invalid) {
				for _, v := range invalid.Violations() {
					cmd.PrintErrln("  " + v.String())
				}
			}
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
	c.Flags().StringVar(&input, "input", "", "JSON object to predict on (stdin when empty)")
	return c
}

func decodeInput(r io.Reader) (map[string]any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode input: %w", err)
	}
	if payload == nil {
		return nil, errors.New("decode input: expected a JSON object")
	}
	return payload, nil
}
