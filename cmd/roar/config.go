package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roar-ml/roar/internal/rerr"
	"github.com/roar-ml/roar/internal/roarconfig"
)

func newConfigCommand(gf *globalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "config {list|get KEY|set KEY VALUE}",
		Short: "Read or write .roar/config.toml",
	}
	root.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every configuration key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			roarDir, err := resolveRoarDir(gf)
			if err != nil {
				return err
			}
			cfg, err := roarconfig.Load(roarDir)
			if err != nil {
				return err
			}
			entries := roarconfig.List(cfg)
			keys := make([]string, 0, len(entries))
			for k := range entries {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Printf("%s = %s\n", k, entries[k])
			}
			return nil
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "get KEY",
		Short: "Print one configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			roarDir, err := resolveRoarDir(gf)
			if err != nil {
				return err
			}
			cfg, err := roarconfig.Load(roarDir)
			if err != nil {
				return err
			}
			v, err := roarconfig.Get(cfg, args[0])
			if err != nil {
				return rerr.Wrap(rerr.KindPreflight, "get config key", err)
			}
			fmt.Println(v)
			return nil
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Write one configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			roarDir, err := resolveRoarDir(gf)
			if err != nil {
				return err
			}
			cfg, err := roarconfig.Load(roarDir)
			if err != nil {
				return err
			}
			if err := roarconfig.Set(&cfg, args[0], args[1]); err != nil {
				return rerr.Wrap(rerr.KindPreflight, "set config key", err)
			}
			return roarconfig.Save(roarDir, cfg)
		},
	})
	return root
}
