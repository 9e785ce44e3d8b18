package manual

import (
	"context"
	"encoding/json"
	"log"
	"strings"

	"github.com/jonathan/compliance-reviewer/internal/llm"
	"github.com/jonathan/compliance-reviewer/internal/prompts"
	"github.com/jonathan/compliance-reviewer/internal/schemas"
	"github.com/jonathan/compliance-reviewer/internal/types"
)

type extractedEntry struct {
	Section  *string `json:"section"`
	Letter   *string `json:"letter"`
	Name     string  `json:"name"`
	Status   *string `json:"status"`
	Comments *string `json:"comments"`
}

// BuildExtractionPrompt returns the prompt that turns a free-text review into entries.
func BuildExtractionPrompt(reviewText string) string {
	schema := llm.ManualReviewSchema(prompts.MustGet("manual.json", "extract-manual-review"))
	return llm.BuildExtractionPrompt(schema, reviewText)
}

// ExtractFromText converts a free-text manual review into entries with one lite-tier model call.
// Answers and comments are copied verbatim; status normalization happens at comparison time.
func ExtractFromText(ctx context.Context, client llm.Client, reviewText string) ([]types.ManualReviewEntry, error) {
	if strings.TrimSpace(reviewText) == "" {
		return nil, &ExtractionError{Message: "review text is empty"}
	}

	raw, err := client.GenerateJSON(ctx, BuildExtractionPrompt(reviewText), llm.TierLite)
	if err != nil {
		return nil, &ExtractionError{Message: "model call failed", Cause: err}
	}
	return ParseExtraction(raw)
}

// ParseExtraction decodes a model reply produced from BuildExtractionPrompt.
func ParseExtraction(raw string) ([]types.ManualReviewEntry, error) {
	cleaned := llm.CleanJSONBlock(raw)
	if err := schemas.Validate(schemas.ManualEntries, cleaned); err != nil {
		return nil, &ExtractionError{Message: "reply does not match the entries shape", Cause: err}
	}

	var reply struct {
		Entries []extractedEntry `json:"entries"`
	}
	if err := json.Unmarshal([]byte(cleaned), &reply); err != nil {
		return nil, &ExtractionError{Message: "failed to decode entries", Cause: err}
	}

	entries := make([]types.ManualReviewEntry, 0, len(reply.Entries))
	for _, e := range reply.Entries {
		if strings.TrimSpace(e.Name) == "" {
			continue
		}
		entries = append(entries, types.ManualReviewEntry{
			Section:      strings.TrimSpace(deref(e.Section)),
			ElementLabel: FormatLabel(deref(e.Letter), e.Name),
			RawStatus:    strings.TrimSpace(deref(e.Status)),
			Comments:     strings.TrimSpace(deref(e.Comments)),
		})
	}
	log.Printf("[MANUAL] Extracted %d entries from review text", len(entries))
	return entries, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
