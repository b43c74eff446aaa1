package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/djwarf/tindico/pkg/ics"
)

func newExportCmd() *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "export <event-id>",
		Short: "Write an Indico event to an .ics file",
		Long: `Fetch one event and write it as indico-<id>.ics. The file's UID is the
same key calendar syncs use, so importing it next to a synced entry updates
that entry instead of duplicating it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(true)
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			catalog, err := newCatalog(cfg, logger)
			if err != nil {
				return err
			}
			ev, err := catalog.Event(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if outDir == "" {
				outDir = cfg.ExportDir
			}
			path, err := ics.WriteFile(outDir, ev)
			if err != nil {
				return err
			}
			logger.Info().Str("event", ev.ID).Str("path", path).Msg("exported event")
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outDir, "output", "o", "", "directory to write to (default: the export directory)")
	return cmd
}
