// Package export renders study material as downloadable workbooks.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/muse/internal/curriculum"
)

// Sheet names of an exported unit test, in order.
const (
	SheetSummary    = "Summary"
	SheetMCQs       = "MCQs"
	SheetBlanks     = "Fill in the Blanks"
	SheetTwoMarks   = "2 Marks"
	SheetThreeMarks = "3 Marks"
	SheetFiveMarks  = "5 Marks"
)

// WriteUnitTest writes the unit test as an XLSX workbook with one sheet per
// section. Answers are included on the MCQ and fill-in-the-blank sheets.
func WriteUnitTest(w io.Writer, chapter string, test curriculum.UnitTest) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetDocProps(&excelize.DocProperties{
		Title:   chapter + " Unit Test",
		Creator: "Muse",
	}); err != nil {
		return fmt.Errorf("set properties: %w", err)
	}

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#E2E8F0"}},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	wrap, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
	})
	if err != nil {
		return fmt.Errorf("create body style: %w", err)
	}
	b := &book{f: f, header: header, wrap: wrap}

	// The default sheet becomes the summary.
	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	b.rows(SheetSummary, []any{"Chapter", chapter}, [][]any{
		{"Multiple choice", len(test.MCQs), len(test.MCQs)},
		{"Fill in the blanks", len(test.FillInTheBlanks), len(test.FillInTheBlanks)},
		{"2 mark questions", len(test.TwoMarkQuestions), 2 * len(test.TwoMarkQuestions)},
		{"3 mark questions", len(test.ThreeMarkQuestions), 3 * len(test.ThreeMarkQuestions)},
		{"5 mark questions", len(test.FiveMarkQuestions), 5 * len(test.FiveMarkQuestions)},
		{"Total marks", "", test.TotalMarks()},
	})
	b.width(SheetSummary, "A", 22)
	b.width(SheetSummary, "B", 40)

	var mcqs [][]any
	for i, q := range test.MCQs {
		row := []any{i + 1, q.Question}
		for _, o := range q.Options {
			row = append(row, o)
		}
		for len(row) < 2+curriculum.MCQOptions {
			row = append(row, "")
		}
		mcqs = append(mcqs, append(row, q.CorrectAnswer))
	}
	b.sheet(SheetMCQs, []any{"No.", "Question", "A", "B", "C", "D", "Answer"}, mcqs)
	b.width(SheetMCQs, "B", 60)
	b.width(SheetMCQs, "C", 24)
	b.width(SheetMCQs, "D", 24)
	b.width(SheetMCQs, "E", 24)
	b.width(SheetMCQs, "F", 24)
	b.width(SheetMCQs, "G", 24)

	var blanks [][]any
	for i, q := range test.FillInTheBlanks {
		blanks = append(blanks, []any{i + 1, q.Question, q.Answer})
	}
	b.sheet(SheetBlanks, []any{"No.", "Question", "Answer"}, blanks)
	b.width(SheetBlanks, "B", 60)
	b.width(SheetBlanks, "C", 24)

	for _, s := range []struct {
		name string
		qs   []curriculum.ShortAnswerQuestion
	}{
		{SheetTwoMarks, test.TwoMarkQuestions},
		{SheetThreeMarks, test.ThreeMarkQuestions},
		{SheetFiveMarks, test.FiveMarkQuestions},
	} {
		var rows [][]any
		for i, q := range s.qs {
			rows = append(rows, []any{i + 1, q.Question})
		}
		b.sheet(s.name, []any{"No.", "Question"}, rows)
		b.width(s.name, "B", 80)
	}

	if b.err != nil {
		return b.err
	}
	f.SetActiveSheet(0)
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// book collects the first error of a sequence of sheet writes.
type book struct {
	f      *excelize.File
	header int
	wrap   int
	err    error
}

func (b *book) sheet(name string, header []any, rows [][]any) {
	if b.err != nil {
		return
	}
	if _, err := b.f.NewSheet(name); err != nil {
		b.err = fmt.Errorf("create sheet %s: %w", name, err)
		return
	}
	b.rows(name, header, rows)
}

func (b *book) rows(sheet string, header []any, rows [][]any) {
	if b.err != nil {
		return
	}
	if err := b.f.SetSheetRow(sheet, "A1", &header); err != nil {
		b.err = fmt.Errorf("write %s header: %w", sheet, err)
		return
	}
	last, _ := excelize.CoordinatesToCellName(len(header), 1)
	if err := b.f.SetCellStyle(sheet, "A1", last, b.header); err != nil {
		b.err = fmt.Errorf("style %s header: %w", sheet, err)
		return
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := b.f.SetSheetRow(sheet, cell, &row); err != nil {
			b.err = fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
			return
		}
	}
	if len(rows) > 0 {
		end, _ := excelize.CoordinatesToCellName(len(header)+1, len(rows)+1)
		if err := b.f.SetCellStyle(sheet, "A2", end, b.wrap); err != nil {
			b.err = fmt.Errorf("style %s rows: %w", sheet, err)
		}
	}
}

func (b *book) width(sheet, col string, w float64) {
	if b.err != nil {
		return
	}
	if err := b.f.SetColWidth(sheet, col, col, w); err != nil {
		b.err = fmt.Errorf("size %s column %s: %w", sheet, col, err)
	}
}
