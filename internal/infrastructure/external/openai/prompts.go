package openai

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

// PromptSection holds one prompt and its model parameters
type PromptSection struct {
	Temperature  float32 `yaml:"temperature"`
	MaxTokens    int     `yaml:"max_tokens"`
	System       string  `yaml:"system"`
	UserTemplate string  `yaml:"user_template"`
}

// PromptConfig holds the prompts used by the document intelligence adapter
type PromptConfig struct {
	ProformaExtraction PromptSection `yaml:"proforma_extraction"`
	ReceiptExtraction  PromptSection `yaml:"receipt_extraction"`
}

// LoadPrompts loads prompt configuration from a YAML file
func LoadPrompts(promptsPath string) (*PromptConfig, error) {
	data, err := os.ReadFile(promptsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts file: %w", err)
	}

	var prompts PromptConfig
	if err := yaml.Unmarshal(data, &prompts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prompts: %w", err)
	}

	return &prompts, nil
}

// DefaultPrompts returns the built-in prompts used when no prompts file is
// configured
func DefaultPrompts() *PromptConfig {
	return &PromptConfig{
		ProformaExtraction: PromptSection{
			Temperature: 0.3,
			MaxTokens:   1000,
			System: "You are an assistant that extracts structured data from procurement documents. " +
				"Always respond with a single valid JSON object and nothing else.",
			UserTemplate: `Extract the following information from this proforma invoice or quotation:
- vendor: seller name
- vendor_contact: seller contact information
- items: array of {name, quantity, unit_price}
- total_amount: numeric total
- currency
- terms: terms and conditions
- payment_terms
- delivery_terms

Text:
{{.Text}}

Return the data as a JSON object with exactly those keys.`,
		},
		ReceiptExtraction: PromptSection{
			Temperature: 0.3,
			MaxTokens:   1000,
			System: "You are an assistant that extracts structured data from purchase receipts. " +
				"Always respond with a single valid JSON object and nothing else.",
			UserTemplate: `Extract the following information from this receipt:
- seller: vendor name
- items: array of {name, quantity, unit_price}
- total_amount: numeric total
- currency
- purchase_date
- receipt_number

Text:
{{.Text}}

Return the data as a JSON object with exactly those keys.`,
		},
	}
}

// renderTemplate renders a prompt template with the provided data
func renderTemplate(templateStr string, data interface{}) (string, error) {
	tmpl, err := template.New("prompt").Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.String(), nil
}

// extractJSON pulls a JSON object out of a markdown-fenced response
func extractJSON(content string) string {
	content = strings.TrimSpace(content)

	if idx := strings.Index(content, "```json"); idx >= 0 {
		content = content[idx+len("```json"):]
	} else if idx := strings.Index(content, "```"); idx >= 0 {
		content = content[idx+len("```"):]
	}
	if idx := strings.LastIndex(content, "```"); idx >= 0 {
		content = content[:idx]
	}

	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "{") && strings.HasSuffix(content, "}") {
		return content
	}
	return ""
}
