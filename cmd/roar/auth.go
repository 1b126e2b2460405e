package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roar-ml/roar/internal/glaas"
	"github.com/roar-ml/roar/internal/rerr"
)

func newAuthCommand(gf *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth {register|test|status}",
		Short: "Manage the signed-request identity used to talk to the LaaS server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := setupApp(cmd, gf)
			if err != nil {
				return err
			}
			defer app.Close()

			switch args[0] {
			case "status":
				return authStatus(app)
			case "test":
				return authTest(cmd, app)
			case "register":
				return authRegister(app)
			default:
				return rerr.New(rerr.KindPreflight, fmt.Sprintf("unknown auth subcommand %q", args[0]))
			}
		},
	}
	return cmd
}

func authStatus(app *appContext) error {
	signer, err := glaas.NewSigner(app.cfg.Glaas.SSHKeyPath)
	if err != nil {
		return err
	}
	app.log.Infof("fingerprint: %s", signer.Fingerprint())
	app.log.Infof("glaas url: %s", app.cfg.Glaas.URL)
	return nil
}

func authTest(cmd *cobra.Command, app *appContext) error {
	if app.cfg.Glaas.URL == "" {
		return rerr.New(rerr.KindPreflight, "glaas.url is not configured")
	}
	client, err := glaas.New(app.cfg.Glaas.URL, app.cfg.Glaas.SSHKeyPath)
	if err != nil {
		return err
	}
	// A 404 on a nonexistent artifact prefix is a positive signal: it means
	// the request was authenticated and routed, just not found.
	_, err = client.Do(cmd.Context(), "GET", "/api/v1/artifacts/00000000", nil)
	if err != nil {
		app.log.Warnf("auth probe: %v", err)
		return err
	}
	app.log.Infof("authenticated successfully against %s", app.cfg.Glaas.URL)
	return nil
}

func authRegister(app *appContext) error {
	signer, err := glaas.NewSigner(app.cfg.Glaas.SSHKeyPath)
	if err != nil {
		return err
	}
	app.log.Infof("share this fingerprint with the LaaS operator to authorize this key:")
	app.log.Infof("%s", signer.Fingerprint())
	return nil
}
