package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"candor/internal/repo"
)

const (
	SummarySheet   = "Summary"
	ResponsesSheet = "Responses"
)

var responseHeader = []any{"#", "Skill", "Category", "Question", "Answer", "Score", "Speaking Quality", "Feedback"}

// WriteXLSX renders a workbook with a Summary and a Responses sheet
func WriteXLSX(w io.Writer, sub repo.Submission) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		return err
	}
	if _, err := f.NewSheet(ResponsesSheet); err != nil {
		return err
	}

	if err := summarySheet(f, sub); err != nil {
		return fmt.Errorf("failed to create summary sheet: %w", err)
	}
	if err := responsesSheet(f, sub); err != nil {
		return fmt.Errorf("failed to create responses sheet: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func summarySheet(f *excelize.File, sub repo.Submission) error {
	_ = f.SetColWidth(SummarySheet, "A", "A", 26)
	_ = f.SetColWidth(SummarySheet, "B", "B", 60)

	labelStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	p, v := sub.Profile, sub.Verdict
	rows := [][2]any{
		{"Candidate Name", p.Name},
		{"Email", p.Email},
		{"Phone", p.Phone},
		{"Position", p.Position},
		{"Experience", p.Tier.Label()},
		{"Skills", strings.Join(p.Skills, ", ")},
		{"Interview Date", p.RegisteredAt.Format(timestampLayout)},
		{"Introduction Transcript", sub.Introduction.Transcript},
		{"Overall Score", percent(v.OverallScore)},
		{"Status", string(v.Verdict)},
		{"Speaking Quality", v.Quality.String()},
		{"Technical Average", v.TechnicalAverage},
		{"Project Average", v.ProjectAverage},
		{"Skipped Questions", v.SkipCount},
		{"Skip Penalty", v.SkipPenalty},
		{"Secondary Adjustment", v.SecondaryAdjustment},
	}
	if sub.Introduction.Skipped {
		rows = append(rows, [2]any{"Introduction Penalty", sub.Introduction.Penalty})
	}
	for i, s := range sub.Secondary {
		value := fmt.Sprintf("%d%%", s.Confidence)
		if s.Skipped {
			value = "skipped"
		}
		rows = append(rows, [2]any{fmt.Sprintf("Secondary %d Confidence", i+1), value})
	}

	for i, r := range rows {
		label, _ := excelize.CoordinatesToCellName(1, i+1)
		value, _ := excelize.CoordinatesToCellName(2, i+1)
		if err := f.SetCellValue(SummarySheet, label, r[0]); err != nil {
			return err
		}
		if err := f.SetCellValue(SummarySheet, value, r[1]); err != nil {
			return err
		}
		if err := f.SetCellStyle(SummarySheet, label, label, labelStyle); err != nil {
			return err
		}
	}
	return nil
}

func responsesSheet(f *excelize.File, sub repo.Submission) error {
	_ = f.SetColWidth(ResponsesSheet, "D", "E", 60)
	_ = f.SetColWidth(ResponsesSheet, "H", "H", 60)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
	})
	if err != nil {
		return err
	}

	if err := f.SetSheetRow(ResponsesSheet, "A1", &responseHeader); err != nil {
		return err
	}
	last, _ := excelize.CoordinatesToCellName(len(responseHeader), 1)
	if err := f.SetCellStyle(ResponsesSheet, "A1", last, headerStyle); err != nil {
		return err
	}

	for i, a := range sub.Results {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := []any{
			a.QuestionIndex + 1, a.Skill, string(a.Category), a.Question, a.Answer,
			a.Score, a.Quality.String(), strings.Join(a.Feedback, " "),
		}
		if err := f.SetSheetRow(ResponsesSheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}
