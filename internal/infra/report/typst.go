package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"poll-quiz-service/internal/domain"
)

const (
	DefaultTypstBin      = "typst"
	DefaultTypstTemplate = "@local/quizst:0.1.0"

	dataFile   = "data.json"
	sourceFile = "report.typ"
	outputFile = "report.pdf"
)

// TypstRenderer compiles the report payload into a PDF with the typst CLI.
// The template package receives the payload through json("data.json").
type TypstRenderer struct {
	bin      string
	template string
	workDir  string
}

// NewTypstRenderer builds a renderer. Empty arguments fall back to the
// defaults; an empty workDir means the system temp dir.
func NewTypstRenderer(bin, template, workDir string) *TypstRenderer {
	if bin == "" {
		bin = DefaultTypstBin
	}
	if template == "" {
		template = DefaultTypstTemplate
	}
	return &TypstRenderer{bin: bin, template: template, workDir: workDir}
}

func (r *TypstRenderer) Render(ctx context.Context, rep domain.Report) (domain.Document, error) {
	dir, err := os.MkdirTemp(r.workDir, "quiz-report-")
	if err != nil {
		return domain.Document{}, fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(dir)

	data, err := json.Marshal(rep)
	if err != nil {
		return domain.Document{}, fmt.Errorf("encode report: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, dataFile), data, 0o600); err != nil {
		return domain.Document{}, fmt.Errorf("write report data: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, sourceFile), []byte(r.Source()), 0o600); err != nil {
		return domain.Document{}, fmt.Errorf("write report source: %w", err)
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.bin, "compile", sourceFile, outputFile)
	cmd.Dir = dir
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return domain.Document{}, fmt.Errorf("compile report: %s", msg)
		}
		return domain.Document{}, fmt.Errorf("compile report: %w", err)
	}

	pdf, err := os.ReadFile(filepath.Join(dir, outputFile))
	if err != nil {
		return domain.Document{}, fmt.Errorf("read compiled report: %w", err)
	}
	return domain.Document{
		Name:        FileName(rep.Title, ".pdf"),
		ContentType: "application/pdf",
		Data:        pdf,
	}, nil
}

// Source is the typst entry file handed to the compiler.
func (r *TypstRenderer) Source() string {
	return fmt.Sprintf("#import %q: *\n\n#let quiz_data = json(%q)\n\n#show: quiz.with(quiz_data)\n", r.template, dataFile)
}

// FileName turns a quiz title into a safe file name with ext appended.
func FileName(title, ext string) string {
	var b strings.Builder
	lastDash := false
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		case !lastDash && b.Len() > 0:
			b.WriteByte('-')
			lastDash = true
		}
	}
	name := strings.TrimSuffix(b.String(), "-")
	if name == "" {
		name = "quiz"
	}
	return name + "-report" + ext
}
