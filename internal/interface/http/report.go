package http

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/collegeconnect/collegeconnect-hub/internal/application/query"
	"github.com/collegeconnect/collegeconnect-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// PREVIEW WORKBOOK
// ══════════════════════════════════════════════════════════════════════════════

// XLSXContentType is the media type of the preview export.
const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const (
	sheetUsers   = "Users"
	sheetSummary = "Summary"
)

var userColumns = []any{
	"User ID", "Email", "Full name", "Cohort",
	"From role", "To role", "Current year", "New current year",
	"Admission year", "Graduation year",
}

// BuildPreviewWorkbook renders a preview as a workbook with one row per user
// that the sweep would change and a summary sheet. The caller closes it.
func BuildPreviewWorkbook(res *query.PreviewRoleSweepResult) (*excelize.File, error) {
	f := excelize.NewFile()

	if err := writeUsersSheet(f, res); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("preview workbook: %w", err)
	}
	if err := writeSummarySheet(f, res); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("preview workbook: %w", err)
	}

	return f, nil
}

func writeUsersSheet(f *excelize.File, res *query.PreviewRoleSweepResult) error {
	if err := f.SetSheetName("Sheet1", sheetUsers); err != nil {
		return err
	}

	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheetUsers, "A1", &userColumns); err != nil {
		return err
	}
	if err := f.SetRowStyle(sheetUsers, 1, 1, header); err != nil {
		return err
	}

	for i, r := range res.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{
			r.UserID, r.Email, r.FullName, string(r.Cohort),
			string(r.FromRole), string(r.ToRole), r.CurrentYear, r.NewCurrentYear,
			optionalYear(r.AdmissionYear), optionalYear(r.GraduationYear),
		}
		if err := f.SetSheetRow(sheetUsers, cell, &row); err != nil {
			return err
		}
	}

	if err := f.SetColWidth(sheetUsers, "A", "C", 28); err != nil {
		return err
	}
	if err := f.SetColWidth(sheetUsers, "D", "J", 18); err != nil {
		return err
	}
	return f.SetPanes(sheetUsers, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

func writeSummarySheet(f *excelize.File, res *query.PreviewRoleSweepResult) error {
	if _, err := f.NewSheet(sheetSummary); err != nil {
		return err
	}

	s := res.Summary
	rows := [][]any{
		{"Date", timeutil.FormatDate(res.Today)},
		{"Students to senior", s.StudentsToSenior},
		{"Seniors to alumni", s.SeniorsToAlumni},
		{"Overdue", s.Overdue},
		{"Total", s.TotalUpgraded},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheetSummary, cell, &row); err != nil {
			return err
		}
	}
	return f.SetColWidth(sheetSummary, "A", "A", 22)
}

func optionalYear(y *int) any {
	if y == nil {
		return ""
	}
	return *y
}
