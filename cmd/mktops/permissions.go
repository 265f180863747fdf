package main

import (
	"context"
	"fmt"
	"os"

	"github.com/boddenberg/mkt-demandas-bfa-go/internal/app"
	"github.com/boddenberg/mkt-demandas-bfa-go/internal/config"
	"github.com/boddenberg/mkt-demandas-bfa-go/internal/domain"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func permissionsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "permissions", Short: "Maintain the role permission matrix"}
	cmd.AddCommand(permissionsShowCmd(), permissionsBackfillCmd())
	return cmd
}

func permissionsShowCmd() *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the resolved matrix of a role",
		RunE: func(cmd *cobra.Command, args []string) error {
			if role == "" {
				return fmt.Errorf("--role is required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				m, err := a.Services.Permissions.LoadRole(ctx, role)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(m)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.SetTitle("Papel: " + m.Role)
				tw.AppendHeader(table.Row{"Recurso", "Ver", "Editar", "Excluir"})
				for _, res := range domain.KnownResources {
					set := m.Resources[res]
					if m.IsAdmin {
						set = domain.PermissionSet{View: true, Edit: true, Delete: true}
					}
					tw.AppendRow(table.Row{res, mark(set.View), mark(set.Edit), mark(set.Delete)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "role name")
	return cmd
}

func mark(b bool) string {
	if b {
		return "✓"
	}
	return "-"
}

func permissionsBackfillCmd() *cobra.Command {
	var roles []string
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Insert default-deny rows for missing (role, resource) pairs",
		Long: `Without --role every role already present in the matrix is checked.
Existing rows are never modified.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				n, err := a.Services.Permissions.Backfill(ctx, roles)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(map[string]int{"inserted": n})
				}
				fmt.Fprintf(os.Stdout, "%d linhas inseridas\n", n)
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&roles, "role", nil, "role to backfill (repeatable)")
	return cmd
}

func setupCmd() *cobra.Command {
	var s config.Settings
	var path string
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Save the Supabase connection settings to the settings file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				path = config.Load().SettingsFile
			}
			current, err := config.LoadSettings(path)
			if err != nil {
				return err
			}
			merge := func(dst *string, flag, v string) {
				if cmd.Flags().Changed(flag) {
					*dst = v
				}
			}
			merge(&current.Supabase.URL, "url", s.Supabase.URL)
			merge(&current.Supabase.AnonKey, "anon-key", s.Supabase.AnonKey)
			merge(&current.Supabase.ServiceRoleKey, "service-role-key", s.Supabase.ServiceRoleKey)
			merge(&current.Supabase.JWTSecret, "jwt-secret", s.Supabase.JWTSecret)

			if err := config.SaveSettings(path, current); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "configuração salva em %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "file", "", "settings file (default $SETTINGS_FILE)")
	cmd.Flags().StringVar(&s.Supabase.URL, "url", "", "Supabase project URL")
	cmd.Flags().StringVar(&s.Supabase.AnonKey, "anon-key", "", "anon key")
	cmd.Flags().StringVar(&s.Supabase.ServiceRoleKey, "service-role-key", "", "service role key")
	cmd.Flags().StringVar(&s.Supabase.JWTSecret, "jwt-secret", "", "JWT secret")
	return cmd
}
