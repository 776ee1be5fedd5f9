// Package export builds downloadable member statements.
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"torch/internal/catalog"
	"torch/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	summarySheet  = "Summary"
	sessionsSheet = "Sessions"
	guestsSheet   = "Guests"
	historySheet  = "History"
)

// MemberStatement builds a workbook with the member's summary, sessions, guests and history.
// The caller owns the returned file and must Close it.
func MemberStatement(member *models.Member, tier models.Tier, generated time.Time) (*excelize.File, error) {
	f := excelize.NewFile()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	for _, name := range []string{sessionsSheet, guestsSheet, historySheet} {
		if _, err := f.NewSheet(name); err != nil {
			f.Close()
			return nil, fmt.Errorf("create sheet %s: %w", name, err)
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#D4AF37"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("header style: %w", err)
	}

	writeSummary(f, member, tier, generated)
	writeTable(f, sessionsSheet, headerStyle,
		[]interface{}{"Session ID", "Date", "Start", "End", "Type", "Hours", "Guests", "Status", "Notes"},
		sessionRows(member))
	writeTable(f, guestsSheet, headerStyle,
		[]interface{}{"Name", "Email", "Phone", "Session", "Session Date"},
		guestRows(member))
	writeTable(f, historySheet, headerStyle,
		[]interface{}{"Date", "Type", "Hours"},
		historyRows(member))

	f.SetActiveSheet(0)
	return f, nil
}

// WriteStatement streams a member statement as .xlsx.
func WriteStatement(w io.Writer, member *models.Member, tier models.Tier, generated time.Time) error {
	f, err := MemberStatement(member, tier, generated)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write statement: %w", err)
	}
	return nil
}

// Filename is the download name, e.g. "torch_statement_TM001_2026-03.xlsx".
func Filename(member *models.Member, generated time.Time) string {
	return fmt.Sprintf("torch_statement_%s_%s.xlsx", member.ID, generated.Format("2006-01"))
}

// ExportAll writes one statement per member into dir and returns the written paths.
func ExportAll(dir string, members []*models.Member, cat *catalog.Catalog, generated time.Time) ([]string, error) {
	// Создаем папку для экспорта, если не существует
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("error creating export directory: %w", err)
	}

	paths := make([]string, 0, len(members))
	for _, m := range members {
		tier, err := cat.Tier(m.Tier)
		if err != nil {
			return paths, fmt.Errorf("member %s: %w", m.ID, err)
		}
		f, err := MemberStatement(m, tier, generated)
		if err != nil {
			return paths, err
		}
		path := filepath.Join(dir, Filename(m, generated))
		err = f.SaveAs(path)
		f.Close()
		if err != nil {
			return paths, fmt.Errorf("error saving file: %w", err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeSummary(f *excelize.File, member *models.Member, tier models.Tier, generated time.Time) {
	founding := "No"
	if member.Founding {
		founding = "Yes"
	}
	rows := [][]interface{}{
		{"Torch ATL Member Statement"},
		{"Generated", generated.Format("2006-01-02 15:04")},
		{},
		{"Member ID", member.ID},
		{"Name", member.Name},
		{"Email", member.Email},
		{"Company", member.Company},
		{"Tier", tier.Name + " Membership"},
		{"Founding", founding},
		{"Monthly Rate", tier.Rate(member.Founding)},
		{"Member Since", member.JoinDate},
		{},
		{"Hours Allocated", tier.Hours},
		{"Hours Used", member.HoursUsed},
		{"Hours Scheduled", member.HoursScheduled},
		{"Hours Available", member.HoursRemaining(tier)},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		_ = f.SetSheetRow(summarySheet, cell, &row)
	}

	title, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 14}})
	_ = f.SetCellStyle(summarySheet, "A1", "A1", title)
	_ = f.MergeCell(summarySheet, "A1", "B1")
	_ = f.SetColWidth(summarySheet, "A", "A", 20)
	_ = f.SetColWidth(summarySheet, "B", "B", 32)
}

func writeTable(f *excelize.File, sheet string, headerStyle int, headers []interface{}, rows [][]interface{}) {
	_ = f.SetSheetRow(sheet, "A1", &headers)
	lastCol, _ := excelize.ColumnNumberToName(len(headers))
	_ = f.SetCellStyle(sheet, "A1", lastCol+"1", headerStyle)
	_ = f.SetColWidth(sheet, "A", lastCol, 16)

	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		_ = f.SetSheetRow(sheet, cell, &row)
	}
}

func sessionRows(member *models.Member) [][]interface{} {
	rows := make([][]interface{}, 0, len(member.Sessions))
	for _, s := range member.Sessions {
		rows = append(rows, []interface{}{s.ID, s.Date, s.StartTime, s.EndTime, s.Type, s.Hours, s.Guests, s.Status, s.Notes})
	}
	return rows
}

func guestRows(member *models.Member) [][]interface{} {
	rows := make([][]interface{}, 0, len(member.Guests))
	for _, g := range member.Guests {
		date := models.UnknownSessionLabel
		if s, ok := member.FindSession(g.Session); ok {
			date = s.Date
		}
		rows = append(rows, []interface{}{g.Name, g.Email, g.Phone, g.Session, date})
	}
	return rows
}

func historyRows(member *models.Member) [][]interface{} {
	rows := make([][]interface{}, 0, len(member.History))
	for _, h := range member.History {
		rows = append(rows, []interface{}{h.Date, strings.TrimSpace(h.Type), h.Hours})
	}
	return rows
}
