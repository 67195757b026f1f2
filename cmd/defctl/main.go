package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/digi-serve/ab-service-definition-manager/internal/application/services"
	"github.com/digi-serve/ab-service-definition-manager/internal/bootstrap"
	"github.com/digi-serve/ab-service-definition-manager/internal/config"
	"github.com/digi-serve/ab-service-definition-manager/internal/domain/models"
)

// definitionAPI is the part of the definition service the CLI drives.
type definitionAPI interface {
	Import(ctx context.Context, tenantID string, bundle *models.Bundle) (*services.ImportResult, error)
	ForRoles(ctx context.Context, tenantID string, roleIDs []string) ([]byte, error)
	CheckUpdate(ctx context.Context, tenantID string) (int64, error)
	MobileCheckUpdate(ctx context.Context, tenantID, appID string) (int64, error)
}

type appAPI interface {
	Export(ctx context.Context, tenantID, appID string) (*services.AppExport, error)
}

// backend is what a command runs against.
type backend struct {
	definitions definitionAPI
	apps        appAPI
	close       func() error
}

// opener connects a backend on demand, after flags are parsed.
type opener func(ctx context.Context, configPath string) (*backend, error)

func openServices(ctx context.Context, configPath string) (*backend, error) {
	if configPath != "" {
		if err := os.Setenv(config.ConfigPathEnv, configPath); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	svcMgr, infra, err := bootstrap.NewServiceManager(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &backend{definitions: svcMgr.Definitions, apps: svcMgr.Apps, close: infra.Close}, nil
}

func newRootCmd(open opener) *cobra.Command {
	var (
		configPath string
		tenantID   string
	)

	rootCmd := &cobra.Command{
		Use:           "defctl",
		Short:         "Definition manager command line",
		Long:          "Import, export and inspect the application definitions of a tenant without going through the HTTP API.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVarP(&tenantID, "tenant", "t", "", "Tenant id")
	_ = rootCmd.MarkPersistentFlagRequired("tenant")

	// run connects, hands the backend to fn and releases it afterwards.
	run := func(cmd *cobra.Command, fn func(ctx context.Context, b *backend) error) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		b, err := open(ctx, configPath)
		if err != nil {
			return err
		}
		if b.close != nil {
			defer b.close()
		}
		return fn(ctx, b)
	}
	tenant := func() string { return tenantID }

	rootCmd.AddCommand(
		newImportCmd(run, tenant),
		newExportCmd(run, tenant),
		newForRolesCmd(run, tenant),
		newCheckUpdateCmd(run, tenant),
	)
	return rootCmd
}

func main() {
	if err := newRootCmd(openServices).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}
