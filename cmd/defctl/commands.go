package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/digi-serve/ab-service-definition-manager/internal/domain/models"
)

type runner func(cmd *cobra.Command, fn func(ctx context.Context, b *backend) error) error

func newImportCmd(run runner, tenant func() string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a definition bundle",
		Long:  `Apply an exported application bundle to the tenant, creating or migrating its tables, fields, indexes and queries.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			var bundle models.Bundle
			if err := json.Unmarshal(data, &bundle); err != nil {
				return fmt.Errorf("failed to parse %s: %w", file, err)
			}

			return run(cmd, func(ctx context.Context, b *backend) error {
				result, err := b.definitions.Import(ctx, tenant(), &bundle)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "✅ Imported %d definitions into %s (%d developer / %d builder errors)\n",
					len(bundle.Definitions), tenant(), result.Developer, result.Builder)
				for _, e := range result.Errors {
					fmt.Fprintf(out, "  [%s] %s %s: %s\n", e.Audience, e.Phase, e.ItemID, e.Message)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Bundle file (JSON)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newExportCmd(run runner, tenant func() string) *cobra.Command {
	var (
		appID string
		out   string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export an application",
		Long:  `Write the bundle of an application, with its roles and scopes, as JSON.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, b *backend) error {
				export, err := b.apps.Export(ctx, tenant(), appID)
				if err != nil {
					return err
				}
				data, err := json.MarshalIndent(export, "", "  ")
				if err != nil {
					return err
				}
				if out == "" {
					_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
					return err
				}
				if err := os.WriteFile(out, data, 0o644); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✅ Exported %s to %s\n", export.Filename, out)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&appID, "app", "a", "", "Application id")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (default stdout)")
	_ = cmd.MarkFlagRequired("app")
	return cmd
}

func newForRolesCmd(run runner, tenant func() string) *cobra.Command {
	var roles []string
	cmd := &cobra.Command{
		Use:   "for-roles",
		Short: "Print the definitions visible to a set of roles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, b *backend) error {
				data, err := b.definitions.ForRoles(ctx, tenant(), roles)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return err
			})
		},
	}
	cmd.Flags().StringSliceVarP(&roles, "roles", "r", nil, "Comma separated role ids")
	_ = cmd.MarkFlagRequired("roles")
	return cmd
}

func newCheckUpdateCmd(run runner, tenant func() string) *cobra.Command {
	var appID string
	cmd := &cobra.Command{
		Use:   "check-update",
		Short: "Print the freshness stamp of the tenant's definitions",
		Long:  `Print the global freshness stamp, or the mobile stamp of one application when --app is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, b *backend) error {
				var (
					stamp int64
					err   error
				)
				if appID != "" {
					stamp, err = b.definitions.MobileCheckUpdate(ctx, tenant(), appID)
				} else {
					stamp, err = b.definitions.CheckUpdate(ctx, tenant())
				}
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), stamp)
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&appID, "app", "a", "", "Application id (mobile stamp)")
	return cmd
}
