package domain

// ReportQuestion is one row of the final report. Positions are 1-based;
// Selected is nil when the slot was never answered.
type ReportQuestion struct {
	SN       string   `json:"sn"`
	Source   string   `json:"source"`
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Correct  int      `json:"correct"`
	Selected *int     `json:"selected"`
}

// Report is the inert payload handed to a document renderer.
type Report struct {
	Type       Mode             `json:"type"`
	Title      string           `json:"title"`
	Module     string           `json:"module,omitempty"`
	Subject    string           `json:"subject,omitempty"`
	Lesson     string           `json:"lesson,omitempty"`
	Tags       []string         `json:"tags,omitempty"`
	Questions  []ReportQuestion `json:"questions"`
	Score      int              `json:"scoreValue"`
	Total      int              `json:"total"`
	Percentage float64          `json:"percentage"`
	ScoreText  string           `json:"score"`
}
