package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/artemshloyda/photoingest/internal/config"
)

// newPresetsCmd создаёт команду для списка пресетов вариантов.
func newPresetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "Показать пресеты вариантов (--preset)",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "📦 Пресеты вариантов:")
			fmt.Fprintln(out)

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ИМЯ\tКОПИЯ\tКАЧЕСТВО\tМИНИАТЮРА\tКАЧЕСТВО")
			fmt.Fprintln(w, "---\t-----\t--------\t---------\t--------")
			for _, name := range config.ValidPresets() {
				p := config.Presets[config.Preset(name)]
				fmt.Fprintf(w, "%s\t%dpx\t%d\t%dpx\t%d\n", name, p.MaxDimension, p.Quality, p.ThumbSize, p.ThumbQuality)
			}
			return w.Flush()
		},
	}
}
