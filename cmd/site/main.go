// Command site serves the sitekit starter site.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/pitabwire/util"
	"github.com/spf13/cobra"

	"github.com/pitabwire/sitekit"
	"github.com/pitabwire/sitekit/config"
	"github.com/pitabwire/sitekit/internal/site"
	"github.com/pitabwire/sitekit/version"
)

const serviceName = "sitekit"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "site",
		Short:         "Localized starter site with error pages and SEO metadata",
		SilenceUsage: true,
	}

	root.AddCommand(newServeCommand(), newVersionCommand())
	return root
}

type serveFlags struct {
	config string
	addr   string
	public string
}

func newServeCommand() *cobra.Command {
	flags := &serveFlags{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the site until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), flags)
		},
	}

	cmd.Flags().StringVar(&flags.config, "config", "", "site configuration file (yaml or toml), overrides SITE_CONFIG_PATH")
	cmd.Flags().StringVar(&flags.addr, "addr", "", "listen address, overrides HTTP_PORT")
	cmd.Flags().StringVar(&flags.public, "public", "", "public directory, overrides PUBLIC_DIR")
	return cmd
}

func serve(ctx context.Context, flags *serveFlags) error {
	cfg, err := config.FromEnv[config.ConfigurationDefault]()
	if err != nil {
		return fmt.Errorf("read configuration: %w", err)
	}
	if flags.config != "" {
		cfg.SiteConfigPath = flags.config
	}
	if flags.public != "" {
		cfg.PublicDir = flags.public
	}
	if cfg.ServiceVersion == "" {
		cfg.ServiceVersion = version.Get().Version
	}

	ctx, svc := sitekit.NewServiceWithContext(ctx, serviceName,
		sitekit.WithConfig(&cfg),
		sitekit.WithTranslations(site.Translations()),
	)
	defer svc.Stop(ctx)

	handler, err := site.New(svc)
	if err != nil {
		return err
	}
	svc.Init(ctx, sitekit.WithHTTPHandler(handler))

	err = svc.Run(ctx, flags.addr)
	if errors.Is(err, context.Canceled) {
		util.Log(ctx).Info("site stopped")
		return nil
	}
	return err
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Println(version.Get().String())
		},
	}
}
