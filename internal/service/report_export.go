package service

import (
	"fmt"
	"io"
	"time"

	"github.com/boddenberg/mkt-demandas-bfa-go/internal/domain"

	"github.com/xuri/excelize/v2"
)

const (
	sheetDemands = "Demandas"
	sheetSummary = "Resumo"
)

var demandColumns = []string{
	"Código", "Título", "Status", "Tipo", "Origem", "Responsável",
	"Prioridade", "Prazo", "Criada em", "Atrasada", "Tempo de produção",
}

// WriteReport renders the demand rows and their summary as an xlsx
// workbook into w.
func WriteReport(w io.Writer, sum *domain.DashboardSummary, demands []domain.Demand, loc *time.Location) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetDemands); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}

	if err := writeRow(f, sheetDemands, 1, toAny(demandColumns)); err != nil {
		return err
	}
	last, _ := excelize.CoordinatesToCellName(len(demandColumns), 1)
	if err := f.SetCellStyle(sheetDemands, "A1", last, header); err != nil {
		return err
	}

	now := sum.GeneratedAt
	for i, d := range demands {
		row := []any{
			d.Code(),
			d.Title,
			statusOf(d).Name,
			lookupName(d.Type),
			lookupName(d.Origin),
			d.ResponsibleName(),
			string(d.Priority),
			d.Deadline.String(),
			d.CreatedAt.In(loc).Format("2006-01-02 15:04"),
			yesNo(IsDelayed(d, now)),
			FormatHMS(ElapsedOf(&d, now).Seconds),
		}
		if err := writeRow(f, sheetDemands, i+2, row); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(sheetDemands, "B", "B", 40); err != nil {
		return err
	}

	if _, err := f.NewSheet(sheetSummary); err != nil {
		return fmt.Errorf("create summary sheet: %w", err)
	}
	summary := [][]any{
		{"Gerado em", sum.GeneratedAt.In(loc).Format("2006-01-02 15:04")},
		{"Período", fmt.Sprintf("%s a %s", orDash(sum.From.String()), orDash(sum.To.String()))},
		{"Total", sum.Counters.Total},
		{"Atrasadas", sum.Counters.Delayed},
		{"Concluídas", sum.ClosedCount},
		{"SLA (%)", sum.SLACompliance},
		{"Lead time médio (dias)", sum.AvgLeadTimeDays},
		{},
		{"Responsável", "Total", "Concluídas", "Atrasadas", "Lead time médio (dias)", "Tempo de produção"},
	}
	for _, a := range sum.ByAssignee {
		summary = append(summary, []any{a.Name, a.Total, a.Completed, a.Delayed, a.AvgLeadTimeDays, FormatHMS(a.ProductionSeconds)})
	}
	for i, row := range summary {
		if err := writeRow(f, sheetSummary, i+1, row); err != nil {
			return err
		}
	}

	return f.Write(w)
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	for col, v := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return fmt.Errorf("set %s!%s: %w", sheet, cell, err)
		}
	}
	return nil
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func lookupName(l *domain.Lookup) string {
	if l == nil {
		return ""
	}
	return l.Name
}

func yesNo(b bool) string {
	if b {
		return "Sim"
	}
	return "Não"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
