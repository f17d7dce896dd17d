package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"modelkit/ml"
)

func newSchemaCmd(a *app) *cobra.Command {
	var direction, id string
	c := &cobra.Command{
		Use:   "schema MODEL",
		Short: "Print a model's input or output schema as a JSON Schema document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d := ml.Direction(direction)
			if d != ml.DirectionInput && d != ml.DirectionOutput {
				return fmt.Errorf("--direction must be %q or %q", ml.DirectionInput, ml.DirectionOutput)
			}
			m, err := a.pool.Get(args[0])
			if err != nil {
				return err
			}
			if id == "" {
				id = ml.SchemaID(a.cfg.Schema.BaseURI, m, d)
			}
			s := ml.SchemaFor(m, d)
			if _, err := s.Compile(id); err != nil {
				return fmt.Errorf("exported schema does not compile: %w", err)
			}
			doc, err := s.MarshalJSONSchema(id)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(doc))
			return err
		},
	}
	c.Flags().StringVar(&direction, "direction", string(ml.DirectionInput), "Schema to print: input or output")
	c.Flags().StringVar(&id, "id", "", "URI used as the document $id (derived from schema.base_uri when empty)")
	return c
}
