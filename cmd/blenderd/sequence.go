package main

import (
	"fmt"

	"github.com/KevinKickass/OpenBlenderCore/internal/action"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:       "sequence [blend|clean]",
		Short:     "Print the canonical action sequence as YAML",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{action.BlendSequenceName, action.CleanSequenceName},
		RunE: func(cmd *cobra.Command, args []string) error {
			name := action.BlendSequenceName
			if len(args) == 1 {
				name = args[0]
			}

			builder := cfg.Builder()
			var (
				seq *action.Sequence
				err error
			)
			switch name {
			case action.BlendSequenceName:
				seq, err = builder.BuildBlend()
			default:
				seq, err = builder.BuildClean()
			}
			if err != nil {
				return fmt.Errorf("failed to build %s sequence: %w", name, err)
			}

			data, err := seq.YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	rootCmd.AddCommand(cmd)
}
