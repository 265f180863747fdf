package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/boddenberg/mkt-demandas-bfa-go/internal/app"
	"github.com/boddenberg/mkt-demandas-bfa-go/internal/domain"
	"github.com/boddenberg/mkt-demandas-bfa-go/internal/service"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "report", Short: "Dashboard reports"}
	cmd.AddCommand(reportSummaryCmd(), reportExportCmd())
	return cmd
}

func reportSummaryCmd() *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print the dashboard summary for a period",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, t, err := parseRange(from, to)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				sum, err := a.Services.Analytics.Dashboard(ctx, f, t)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(sum)
				}
				renderSummary(sum)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "end date (YYYY-MM-DD)")
	return cmd
}

func renderSummary(sum *domain.DashboardSummary) {
	kpi := table.NewWriter()
	kpi.SetOutputMirror(os.Stdout)
	kpi.SetTitle("Resumo")
	kpi.AppendRows([]table.Row{
		{"Total", sum.Counters.Total},
		{"Concluídas", sum.ClosedCount},
		{"Atrasadas", sum.Counters.Delayed},
		{"SLA (%)", fmt.Sprintf("%.2f", sum.SLACompliance)},
		{"Lead time médio (dias)", fmt.Sprintf("%.2f", sum.AvgLeadTimeDays)},
	})
	kpi.Render()

	byStatus := table.NewWriter()
	byStatus.SetOutputMirror(os.Stdout)
	byStatus.AppendHeader(table.Row{"Status", "Tipo", "Demandas"})
	for _, s := range sum.ByStatus {
		byStatus.AppendRow(table.Row{s.Name, s.Kind, s.Total})
	}
	byStatus.Render()

	byAssignee := table.NewWriter()
	byAssignee.SetOutputMirror(os.Stdout)
	byAssignee.AppendHeader(table.Row{"Responsável", "Total", "Concluídas", "Atrasadas", "Lead time", "Produção"})
	for _, s := range sum.ByAssignee {
		name := s.Name
		if name == "" {
			name = "Sem responsável"
		}
		byAssignee.AppendRow(table.Row{
			name, s.Total, s.Completed, s.Delayed,
			fmt.Sprintf("%.2f", s.AvgLeadTimeDays), service.FormatHMS(s.ProductionSeconds),
		})
	}
	byAssignee.Render()
}

func reportExportCmd() *cobra.Command {
	var from, to, out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the period's demands to an xlsx file",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, t, err := parseRange(from, to)
			if err != nil {
				return err
			}
			if !strings.HasSuffix(out, ".xlsx") {
				return fmt.Errorf("--out must end in .xlsx")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				sum, rows, err := a.Services.Analytics.Report(ctx, f, t)
				if err != nil {
					return err
				}
				file, err := os.Create(out)
				if err != nil {
					return err
				}
				if err := service.WriteReport(file, sum, rows, a.Services.Location); err != nil {
					file.Close()
					return err
				}
				if err := file.Close(); err != nil {
					return err
				}
				fmt.Fprintf(os.Stdout, "%d demandas exportadas para %s\n", len(rows), out)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "end date (YYYY-MM-DD)")
	cmd.Flags().StringVarP(&out, "out", "o", "demandas.xlsx", "output file")
	return cmd
}

func demandsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "demands", Short: "Inspect demands"}

	var (
		f     domain.DemandFilter
		tab   string
		limit int
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List demands with the board filters",
		RunE: func(cmd *cobra.Command, args []string) error {
			t, ok := service.ParseTab(tab)
			if !ok {
				return fmt.Errorf("unknown tab %q", tab)
			}
			f.Tab = t
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				view, err := a.Services.Demands.Board(ctx, f)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(view)
				}
				now := a.Services.Analytics.Now()
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Código", "Título", "Status", "Prioridade", "Responsável", "Prazo", "Tempo"})
				for i, d := range view.Data {
					if limit > 0 && i >= limit {
						break
					}
					status := ""
					if d.Status != nil {
						status = d.Status.Name
					}
					deadline := d.Deadline.String()
					if service.IsDelayed(d, now) {
						deadline += " (atrasada)"
					}
					tw.AppendRow(table.Row{
						d.Code(), d.Title, status, d.Priority, d.ResponsibleName(), deadline,
						service.ElapsedOf(&d, now).Formatted,
					})
				}
				tw.AppendFooter(table.Row{"", "Total", view.Total})
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&f.Search, "q", "", "search title or code")
	list.Flags().StringVar(&f.DesignerID, "designer", "", "responsible profile id")
	list.Flags().StringVar(&tab, "tab", "", "backlog, approval, production, review or completed")
	list.Flags().BoolVar(&f.Delayed, "delayed", false, "only delayed demands")
	list.Flags().IntVar(&limit, "limit", 0, "max rows to print")

	cmd.AddCommand(list)
	return cmd
}
