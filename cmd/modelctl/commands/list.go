package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"modelkit/ml"
)

func newListCmd(a *app) *cobra.Command {
	var formatJSON bool
	c := &cobra.Command{
		Use:   "list",
		Short: "List the registered models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			descriptors := make([]ml.Descriptor, 0)
			for _, name := range ml.Registered() {
				m, err := a.pool.Get(name)
				if err != nil {
					return err
				}
				descriptors = append(descriptors, ml.DescriptorOf(m))
			}
			if formatJSON {
				return writeJSON(cmd.OutOrStdout(), descriptors)
			}
			return printDescriptors(cmd.OutOrStdout(), descriptors)
		},
	}
	c.Flags().BoolVar(&formatJSON, "json", false, "Format output in JSON")
	return c
}

func printDescriptors(w io.Writer, descriptors []ml.Descriptor) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "QUALIFIED NAME\tNAME\tVERSION\tDESCRIPTION")
	for _, d := range descriptors {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.QualifiedName(), d.Name(), d.Version(), d.Description())
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
