package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"candor/internal/repo"
)

const timestampLayout = "2006-01-02 15:04:05"

// Header returns the CSV column names for a report with n answered questions
func Header(n int) []string {
	cols := []string{
		"Candidate_Name", "Email", "Phone", "Position", "Experience", "Skills",
		"Interview_Date", "Introduction_Transcript", "Overall_Score", "Status",
	}
	for i := 1; i <= n; i++ {
		cols = append(cols,
			fmt.Sprintf("Question_%d", i),
			fmt.Sprintf("Answer_%d_Transcript", i),
			fmt.Sprintf("Answer_%d_Score", i))
	}
	return cols
}

// Row flattens a submission in Header order
func Row(sub repo.Submission) []string {
	p, v := sub.Profile, sub.Verdict
	row := []string{
		p.Name, p.Email, p.Phone, p.Position, p.Tier.Label(), p.RawSkills,
		p.RegisteredAt.Format(timestampLayout), sub.Introduction.Transcript,
		percent(v.OverallScore), string(v.Verdict),
	}
	for _, a := range sub.Results {
		row = append(row, a.Question, a.Answer, percent(a.Score))
	}
	return row
}

// WriteCSV writes one header row and one row per submission. Rows with fewer answers
// than the widest submission are padded.
func WriteCSV(w io.Writer, subs ...repo.Submission) error {
	width := 0
	for _, s := range subs {
		width = max(width, len(s.Results))
	}
	header := Header(width)

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, s := range subs {
		row := Row(s)
		for len(row) < len(header) {
			row = append(row, "")
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// FileName is the download name of a report, e.g. "Jane Doe_Interview_Report_2026-05-04_09-30-00.csv"
func FileName(sub repo.Submission, ext string) string {
	stamp := sub.Profile.RegisteredAt.Format(timestampLayout)
	stamp = strings.NewReplacer(":", "-", " ", "_").Replace(stamp)
	name := strings.Map(func(r rune) rune {
		if strings.ContainsRune(`/\"`, r) {
			return '_'
		}
		return r
	}, sub.Profile.Name)
	return fmt.Sprintf("%s_Interview_Report_%s.%s", name, stamp, strings.TrimPrefix(ext, "."))
}

func percent(score int) string {
	return fmt.Sprintf("%d%%", score)
}
