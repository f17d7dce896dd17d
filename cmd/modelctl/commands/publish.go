package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"modelkit/ml"
)

func newPublishCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "publish [MODEL...]",
		Short: "Record models and their schema documents in the catalog",
		Long: "Record models and their schema documents in the catalog. Every registered " +
			"model is published when none is named. Republishing a version whose schemas " +
			"changed fails: bump the major or minor version instead.",
		RunE: func(cmd *cobra.Command, args []string) error {
			names := args
			if len(names) == 0 {
				names = ml.Registered()
			}
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			for _, name := range names {
				m, err := a.pool.Get(name)
				if err != nil {
					return err
				}
				published, err := store.PublishModel(cmd.Context(), m, a.cfg.Schema.BaseURI)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "published %s@%s\n", published.QualifiedName, published.Version())
			}
			return nil
		},
	}
}
