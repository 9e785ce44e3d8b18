package validation

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jonathan/compliance-reviewer/internal/prompts"
	"github.com/jonathan/compliance-reviewer/internal/types"
)

const promptFile = "validation.json"

// RequirementCount returns the number of elements the prompt commits the model to validating.
func RequirementCount(rules []types.ComplianceChapter) int {
	return types.CountElements(rules)
}

// SystemInstruction returns the system message sent with every validation prompt.
func SystemInstruction() string {
	return prompts.MustGet(promptFile, "system-instruction")
}

// BuildPrompt serializes every chapter and element of rules together with the document text.
// The stated requirement count always equals RequirementCount(rules).
func BuildPrompt(rules []types.ComplianceChapter, documentText string) string {
	return prompts.MustRender(promptFile, "bulk-validation", map[string]string{
		"SectionCount":     strconv.Itoa(len(rules)),
		"RequirementCount": strconv.Itoa(RequirementCount(rules)),
		"StatusPolicy":     prompts.MustGet(promptFile, "status-policy"),
		"EvidenceFormat":   prompts.MustGet(promptFile, "evidence-format"),
		"Requirements":     serializeRequirements(rules),
		"DocumentText":     documentText,
	})
}

// BuildChapterPrompt builds the single-chapter prompt used by the fallback path.
func BuildChapterPrompt(chapter types.ComplianceChapter, documentText string) string {
	return prompts.MustRender(promptFile, "chapter-validation", map[string]string{
		"SectionName":      chapter.SectionName,
		"RequirementCount": strconv.Itoa(len(chapter.Elements)),
		"StatusPolicy":     prompts.MustGet(promptFile, "status-policy"),
		"EvidenceFormat":   prompts.MustGet(promptFile, "evidence-format"),
		"Requirements":     serializeRequirements([]types.ComplianceChapter{chapter}),
		"DocumentText":     documentText,
	})
}

func serializeRequirements(rules []types.ComplianceChapter) string {
	var sb strings.Builder
	for i, chapter := range rules {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(fmt.Sprintf("SECTION %d: %s\n", i+1, chapter.SectionName))
		sb.WriteString(fmt.Sprintf("Chapter: %s\n", chapter.ChapterTitle))
		if chapter.AuthorityCitation != "" {
			sb.WriteString(fmt.Sprintf("Authority: %s\n", chapter.AuthorityCitation))
		}
		for j, element := range chapter.Elements {
			sb.WriteString(fmt.Sprintf("  REQUIREMENT %d.%d: %s\n", i+1, j+1, oneLine(element.Label)))
			sb.WriteString(fmt.Sprintf("    Requirement: %s\n", oneLine(element.RequirementText)))
			if len(element.MustAddress) > 0 {
				sb.WriteString(fmt.Sprintf("    Must address: %s\n", joinItems(element.MustAddress)))
			}
			if len(element.ChecklistItems) > 0 {
				sb.WriteString(fmt.Sprintf("    Checklist: %s\n", joinItems(element.ChecklistItems)))
			}
			if element.ReviewHint != "" {
				sb.WriteString(fmt.Sprintf("    Review hint: %s\n", oneLine(element.ReviewHint)))
			}
			if element.ApplicabilityNote != "" {
				sb.WriteString(fmt.Sprintf("    Applicability: %s\n", oneLine(element.ApplicabilityNote)))
			}
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func joinItems(items []string) string {
	cleaned := make([]string, 0, len(items))
	for _, item := range items {
		if s := oneLine(item); s != "" {
			cleaned = append(cleaned, s)
		}
	}
	return strings.Join(cleaned, "; ")
}

// oneLine keeps each serialized field on a single line so requirement headers stay countable.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
