package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roar-ml/roar/internal/glaas"
	"github.com/roar-ml/roar/internal/reproduce"
	"github.com/roar-ml/roar/internal/rerr"
)

func newReproduceCommand(gf *globalFlags) *cobra.Command {
	var opts reproduce.Options
	cmd := &cobra.Command{
		Use:   "reproduce [flags] <hash_prefix>",
		Short: "Preview or execute reproduction of a pipeline recorded on the LaaS server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := setupApp(cmd, gf)
			if err != nil {
				return err
			}
			defer app.Close()
			ctx := app.ctx

			if app.cfg.Glaas.URL == "" {
				return rerr.New(rerr.KindPreflight, "glaas.url is not configured")
			}
			client, err := glaas.New(app.cfg.Glaas.URL, app.cfg.Glaas.SSHKeyPath)
			if err != nil {
				return err
			}
			raw, err := client.Do(ctx, "GET", fmt.Sprintf("/api/v1/artifacts/%s/dag", args[0]), nil)
			if err != nil {
				return err
			}
			var plan reproduce.Plan
			if err := json.Unmarshal(raw, &plan); err != nil {
				return rerr.Wrap(rerr.KindPreflight, "decode remote reproduction plan", err)
			}

			preview := reproduce.Preview(plan, opts)
			if opts.OutFile != "" {
				if err := os.WriteFile(opts.OutFile, []byte(preview), 0o644); err != nil {
					return rerr.Wrap(rerr.KindPreflight, "write reproduction preview", err)
				}
			} else {
				fmt.Print(preview)
			}

			if !opts.Run {
				return nil
			}
			if !opts.AutoConfirm && !confirm("Execute this reproduction now?") {
				app.log.Infof("aborted")
				return nil
			}
			return executeReproduction(app, plan, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.Run, "run", false, "clone, checkout, install packages, and replay steps")
	cmd.Flags().BoolVarP(&opts.AutoConfirm, "yes", "y", false, "skip the confirmation prompt before --run")
	cmd.Flags().BoolVar(&opts.DpkgAnyVersion, "dpkg-any-version", false, "install dpkg packages without pinning versions")
	cmd.Flags().BoolVar(&opts.PipAnyVersion, "pip-any-version", false, "install pip packages without pinning versions")
	cmd.Flags().BoolVar(&opts.PackageSync, "package-sync", false, "also install the recorded system (dpkg) packages")
	cmd.Flags().BoolVar(&opts.ListRequirements, "list-requirements", false, "list every package instead of truncating the preview")
	cmd.Flags().StringVar(&opts.OutFile, "out", "", "write the preview to a file instead of stdout")
	return cmd
}

func executeReproduction(app *appContext, plan reproduce.Plan, opts reproduce.Options) error {
	destDir := plan.ArtifactHash
	if len(destDir) > 12 {
		destDir = destDir[:12]
	}
	steps := [][]string{reproduce.CloneCommand(plan, destDir)}
	if plan.GitCommit != "" {
		steps = append(steps, reproduce.CheckoutCommand(plan))
	}
	if len(plan.BuildDpkg) > 0 {
		steps = append(steps, append([]string{"apt-get", "install", "-y"}, reproduce.DpkgInstallArgs(plan.BuildDpkg, opts.DpkgAnyVersion)...))
	}
	if opts.PackageSync && len(plan.Dpkg) > 0 {
		steps = append(steps, append([]string{"apt-get", "install", "-y"}, reproduce.DpkgInstallArgs(plan.Dpkg, opts.DpkgAnyVersion)...))
	}
	if len(plan.BuildPip) > 0 {
		steps = append(steps, append([]string{"pip", "install"}, reproduce.PipInstallArgs(plan.BuildPip, opts.PipAnyVersion)...))
	}
	if len(plan.Pip) > 0 {
		steps = append(steps, append([]string{"pip", "install"}, reproduce.PipInstallArgs(plan.Pip, opts.PipAnyVersion)...))
	}

	wd := "."
	for i, step := range steps {
		app.log.Infof("[%d/%d] %v", i+1, len(steps), step)
		c := exec.CommandContext(app.ctx, step[0], step[1:]...)
		c.Dir = wd
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return rerr.Wrap(rerr.KindTracer, fmt.Sprintf("reproduction step %v failed", step), err)
		}
		if i == 0 {
			wd = filepath.Join(wd, destDir)
		}
	}

	for _, s := range plan.Steps {
		app.log.Infof("replaying @%d: %s", s.StepNumber, s.Command)
		c := exec.CommandContext(app.ctx, "sh", "-c", s.Command)
		c.Dir = wd
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return rerr.Wrap(rerr.KindTracer, fmt.Sprintf("replay of step @%d failed", s.StepNumber), err)
		}
	}
	return nil
}
