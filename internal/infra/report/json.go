package report

import (
	"context"
	"encoding/json"
	"fmt"

	"poll-quiz-service/internal/domain"
)

// JSONRenderer returns the report payload itself as an indented JSON file.
type JSONRenderer struct{}

func (JSONRenderer) Render(_ context.Context, rep domain.Report) (domain.Document, error) {
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return domain.Document{}, fmt.Errorf("encode report: %w", err)
	}
	return domain.Document{
		Name:        FileName(rep.Title, ".json"),
		ContentType: "application/json",
		Data:        data,
	}, nil
}
