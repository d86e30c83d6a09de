package export_test

import (
	"bytes"
	"slices"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/muse/internal/curriculum"
	"github.com/p-n-ai/muse/internal/export"
)

func sampleTest() curriculum.UnitTest {
	mcq := curriculum.MCQ{
		Question:      "Which keyword defines a function?",
		Options:       []string{"func", "def", "fn", "lambda"},
		CorrectAnswer: "def",
	}
	blank := curriculum.FillInTheBlank{Question: "A ___ returns a value.", Answer: "function"}
	return curriculum.UnitTest{
		MCQs:               []curriculum.MCQ{mcq, mcq, mcq, mcq, mcq},
		FillInTheBlanks:    []curriculum.FillInTheBlank{blank, blank, blank, blank, blank},
		TwoMarkQuestions:   []curriculum.ShortAnswerQuestion{{Question: "Define scope."}, {Question: "What is an argument?"}, {Question: "What is a parameter?"}},
		ThreeMarkQuestions: []curriculum.ShortAnswerQuestion{{Question: "Compare local and global."}, {Question: "Explain return."}},
		FiveMarkQuestions:  []curriculum.ShortAnswerQuestion{{Question: "Write a factorial function."}, {Question: "Explain recursion."}},
	}
}

func TestWriteUnitTest(t *testing.T) {
	var buf bytes.Buffer
	if err := export.WriteUnitTest(&buf, "Functions", sampleTest()); err != nil {
		t.Fatalf("WriteUnitTest() error = %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()

	wantSheets := []string{
		export.SheetSummary, export.SheetMCQs, export.SheetBlanks,
		export.SheetTwoMarks, export.SheetThreeMarks, export.SheetFiveMarks,
	}
	if got := f.GetSheetList(); !slices.Equal(got, wantSheets) {
		t.Errorf("GetSheetList() = %q, want %q", got, wantSheets)
	}

	tests := []struct {
		sheet    string
		rows     int
		wantRow1 []string
	}{
		{export.SheetMCQs, 6, []string{"1", "Which keyword defines a function?", "func", "def", "fn", "lambda", "def"}},
		{export.SheetBlanks, 6, []string{"1", "A ___ returns a value.", "function"}},
		{export.SheetTwoMarks, 4, []string{"1", "Define scope."}},
		{export.SheetThreeMarks, 3, []string{"1", "Compare local and global."}},
		{export.SheetFiveMarks, 3, []string{"1", "Write a factorial function."}},
	}

	for _, tt := range tests {
		t.Run(tt.sheet, func(t *testing.T) {
			rows, err := f.GetRows(tt.sheet)
			if err != nil {
				t.Fatalf("GetRows() error = %v", err)
			}
			if len(rows) != tt.rows {
				t.Fatalf("len(rows) = %d, want %d", len(rows), tt.rows)
			}
			if !slices.Equal(rows[1], tt.wantRow1) {
				t.Errorf("rows[1] = %q, want %q", rows[1], tt.wantRow1)
			}
		})
	}

	summary, err := f.GetRows(export.SheetSummary)
	if err != nil {
		t.Fatalf("GetRows(summary) error = %v", err)
	}
	if !slices.Equal(summary[0], []string{"Chapter", "Functions"}) {
		t.Errorf("summary header = %q", summary[0])
	}
	total := summary[len(summary)-1]
	if total[0] != "Total marks" || total[2] != "32" {
		t.Errorf("total row = %q, want 32 marks", total)
	}

	props, err := f.GetDocProps()
	if err != nil {
		t.Fatalf("GetDocProps() error = %v", err)
	}
	if props.Title != "Functions Unit Test" {
		t.Errorf("Title = %q", props.Title)
	}
}

func TestWriteUnitTest_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := export.WriteUnitTest(&buf, "Strings", curriculum.UnitTest{}); err != nil {
		t.Fatalf("WriteUnitTest() error = %v", err)
	}
	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(export.SheetMCQs)
	if err != nil {
		t.Fatalf("GetRows() error = %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("len(rows) = %d, want header only", len(rows))
	}
}
