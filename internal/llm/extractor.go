package llm

import (
	"fmt"
	"strings"
)

// ExtractionSchema defines the structure for LLM-based content extraction.
type ExtractionSchema struct {
	Name        string        // Schema name (e.g., "ManualReview")
	Description string        // Preamble describing the extraction task
	Root        string        // Optional wrapping key; when set the reply is {"<Root>": [ {fields...} ]}
	Fields      []SchemaField // Expected output fields
}

// SchemaField defines a single field in the extraction output.
type SchemaField struct {
	Name        string // JSON field name
	Type        string // Type hint: "string", "[]string", "map[string]string"
	Description string // Description for the LLM
	Required    bool   // Whether this field is required
}

// BuildExtractionPrompt constructs the LLM prompt from schema and input text.
func BuildExtractionPrompt(schema ExtractionSchema, inputText string) string {
	var sb strings.Builder

	sb.WriteString(schema.Description)
	sb.WriteString("\n\n")

	indent := "  "
	sb.WriteString("Return ONLY valid JSON matching this exact structure:\n")
	if schema.Root != "" {
		sb.WriteString(fmt.Sprintf("{\n  \"%s\": [\n    {\n", schema.Root))
		indent = "      "
	} else {
		sb.WriteString("{\n")
	}
	for i, field := range schema.Fields {
		typeHint := field.Type
		if typeHint == "" {
			typeHint = "string"
		}
		requiredHint := ""
		if field.Required {
			requiredHint = " (required)"
		}
		sb.WriteString(fmt.Sprintf("%s\"%s\": %s%s", indent, field.Name, typeHint, requiredHint))
		if field.Description != "" {
			sb.WriteString(fmt.Sprintf(" // %s", field.Description))
		}
		if i < len(schema.Fields)-1 {
			sb.WriteString(",")
		}
		sb.WriteString("\n")
	}
	if schema.Root != "" {
		sb.WriteString("    }\n  ]\n}\n\n")
	} else {
		sb.WriteString("}\n\n")
	}

	sb.WriteString("IMPORTANT:\n")
	sb.WriteString("- Extract information directly from the text, do not invent or summarize.\n")
	sb.WriteString("- Return ONLY the JSON object, no markdown, no explanation, no code blocks.\n\n")

	sb.WriteString("Input text:\n\"\"\"\n")
	sb.WriteString(inputText)
	sb.WriteString("\n\"\"\"\n")

	return sb.String()
}

// ManualReviewSchema returns the extraction schema for project-officer review documents.
// Each extracted entry describes one element judgment.
func ManualReviewSchema(description string) ExtractionSchema {
	return ExtractionSchema{
		Name:        "ManualReview",
		Description: description,
		Root:        "entries",
		Fields: []SchemaField{
			{
				Name:        "section",
				Type:        "\"string\"",
				Description: "Review section or chapter name, e.g. 'Sliding Fee Discount Program'",
			},
			{
				Name:        "letter",
				Type:        "\"string\"",
				Description: "Element letter only, e.g. 'b'",
			},
			{
				Name:        "name",
				Type:        "\"string\"",
				Description: "Element name without the letter prefix, copied verbatim",
				Required:    true,
			},
			{
				Name:        "status",
				Type:        "\"string\"",
				Description: "The reviewer's answer copied verbatim, e.g. 'Yes, ...', 'No, ...', 'N/A'",
			},
			{
				Name:        "comments",
				Type:        "\"string\"",
				Description: "Reviewer comments for this element, copied verbatim",
			},
		},
	}
}
