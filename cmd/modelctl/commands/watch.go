package commands

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Keep the configured models resident and reload them when their artifacts change",
		Long: "Keep the configured models resident and reload them when their artifacts change. " +
			"A model whose new artifact fails to load is logged and stays unloaded until the artifact is fixed. " +
			"With pool.watch disabled the models are only kept resident.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, m := range a.cfg.Models {
				if _, err := a.pool.Get(m.QualifiedName); err != nil {
					return err
				}
			}
			if !a.cfg.Pool.Watch {
				a.logger.Info("artifact watching disabled", zap.Strings("resident", a.pool.Resident()))
				<-cmd.Context().Done()
				return nil
			}
			a.logger.Info("watching model artifacts", zap.Int("models", len(a.cfg.Models)))
			return a.pool.Watch(cmd.Context())
		},
	}
}
