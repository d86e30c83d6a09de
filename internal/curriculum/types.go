package curriculum

// SubjectStyle tunes the prompt guidance given for a subject.
type SubjectStyle string

const (
	StyleGeneral     SubjectStyle = "general"
	StyleProgramming SubjectStyle = "programming"
	StyleLifeScience SubjectStyle = "life-science"
)

// Catalog is the static subject → standard → chapter catalog.
type Catalog struct {
	Subjects []Subject `yaml:"subjects" json:"subjects"`
}

// Subject represents a subject offered for one or more standards
// (e.g., Computer Science).
type Subject struct {
	Name      string       `yaml:"name" json:"name"`
	Style     SubjectStyle `yaml:"style" json:"style"`
	Standards []Standard   `yaml:"standards" json:"standards"`
}

// Standard represents a grade within a subject (e.g., 1st PUC) and the
// ordered chapters it covers.
type Standard struct {
	Name     string   `yaml:"name" json:"name"`
	Chapters []string `yaml:"chapters" json:"chapters"`
}

// MCQ is a four-option multiple-choice question with a single correct answer.
type MCQ struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correctAnswer"`
}

// FillInTheBlank is a question with a blank marker and the word that fills it.
type FillInTheBlank struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// ShortAnswerQuestion is an open question graded by marks.
type ShortAnswerQuestion struct {
	Question string `json:"question"`
}

// UnitTest is a chapter-wide test with a fixed shape.
type UnitTest struct {
	MCQs               []MCQ                 `json:"mcqs"`
	FillInTheBlanks    []FillInTheBlank      `json:"fillInTheBlanks"`
	TwoMarkQuestions   []ShortAnswerQuestion `json:"twoMarkQuestions"`
	ThreeMarkQuestions []ShortAnswerQuestion `json:"threeMarkQuestions"`
	FiveMarkQuestions  []ShortAnswerQuestion `json:"fiveMarkQuestions"`
}

// Unit test section sizes.
const (
	UnitTestMCQs       = 5
	UnitTestBlanks     = 5
	UnitTestTwoMarks   = 3
	UnitTestThreeMarks = 2
	UnitTestFiveMarks  = 2
	MCQOptions         = 4
)

// TotalMarks returns the marks available in the test, counting one mark per
// MCQ and blank.
func (u UnitTest) TotalMarks() int {
	return len(u.MCQs) + len(u.FillInTheBlanks) +
		2*len(u.TwoMarkQuestions) + 3*len(u.ThreeMarkQuestions) + 5*len(u.FiveMarkQuestions)
}
