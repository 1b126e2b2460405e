package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roar-ml/roar/internal/rerr"
	"github.com/roar-ml/roar/internal/roarconfig"
)

func newEnvCommand(gf *globalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "env {set KEY VALUE|get KEY|list|unset KEY}",
		Short: "Manage .roar/env, the key=value store injected into traced runs",
	}
	root.AddCommand(&cobra.Command{
		Use:   "set KEY VALUE",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			roarDir, err := resolveRoarDir(gf)
			if err != nil {
				return err
			}
			return roarconfig.SetEnv(roarDir, args[0], args[1])
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "get KEY",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			roarDir, err := resolveRoarDir(gf)
			if err != nil {
				return err
			}
			v, ok, err := roarconfig.GetEnv(roarDir, args[0])
			if err != nil {
				return err
			}
			if !ok {
				return rerr.New(rerr.KindPreflight, fmt.Sprintf("env var %q is not set", args[0]))
			}
			fmt.Println(v)
			return nil
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			roarDir, err := resolveRoarDir(gf)
			if err != nil {
				return err
			}
			vars, err := roarconfig.LoadEnv(roarDir)
			if err != nil {
				return err
			}
			keys := make([]string, 0, len(vars))
			for k := range vars {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Printf("%s=%s\n", k, vars[k])
			}
			return nil
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "unset KEY",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			roarDir, err := resolveRoarDir(gf)
			if err != nil {
				return err
			}
			return roarconfig.UnsetEnv(roarDir, args[0])
		},
	})
	return root
}
