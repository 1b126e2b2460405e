package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roar-ml/roar/internal/glaas"
	"github.com/roar-ml/roar/internal/render"
	"github.com/roar-ml/roar/internal/rerr"
	"github.com/roar-ml/roar/internal/store"
)

func newLineageCommand(gf *globalFlags) *cobra.Command {
	var output string
	var depth int
	cmd := &cobra.Command{
		Use:   "lineage --output=json [--depth N] <artifact>",
		Short: "Show what produced and consumed an artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := setupApp(cmd, gf)
			if err != nil {
				return err
			}
			defer app.Close()
			ctx := app.ctx

			prefix := args[0]
			artifact, err := app.store.GetByHash(ctx, prefix, "")
			if err != nil {
				return err
			}
			if artifact != nil {
				lineage, err := app.store.GetJobs(ctx, artifact.ID)
				if err != nil {
					return err
				}
				return printLineage(output, artifact.ID, lineage)
			}

			if app.cfg.Glaas.URL == "" {
				return rerr.New(rerr.KindPreflight, fmt.Sprintf("artifact %s not found locally and glaas.url is not configured", prefix))
			}
			client, err := glaas.New(app.cfg.Glaas.URL, app.cfg.Glaas.SSHKeyPath)
			if err != nil {
				return err
			}
			path := fmt.Sprintf("/api/v1/artifacts/%s/lineage?depth=%d", prefix, depth)
			raw, err := client.Do(ctx, "GET", path, nil)
			if err != nil {
				return err
			}
			if output == "json" {
				fmt.Println(string(raw))
				return nil
			}
			var remote store.Lineage
			if err := json.Unmarshal(raw, &remote); err != nil {
				return rerr.Wrap(rerr.KindPreflight, "decode remote lineage response", err)
			}
			return printLineage(output, prefix, remote)
		},
	}
	cmd.Flags().StringVar(&output, "output", "text", "output format: text or json")
	cmd.Flags().IntVar(&depth, "depth", 1, "lineage traversal depth for the remote query")
	return cmd
}

func printLineage(output, artifactID string, lineage store.Lineage) error {
	if output == "json" {
		enc, err := json.Marshal(lineage)
		if err != nil {
			return rerr.Wrap(rerr.KindPreflight, "encode lineage", err)
		}
		fmt.Println(string(enc))
		return nil
	}
	fmt.Print(render.LineageTree(artifactID, lineage))
	return nil
}
