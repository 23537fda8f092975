package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dmarkova/procureflow/internal/application/port"
	"github.com/dmarkova/procureflow/internal/domain/entity"
)

// amountTolerance absorbs rounding differences between documents
var amountTolerance = decimal.NewFromFloat(0.01)

// Intelligence implements port.DocumentIntelligence using OpenAI chat
// completions. PDFs go through the mupdf text layer; images go to the model
// directly as vision input. Calls are bounded by the caller's context.
type Intelligence struct {
	client  *openai.Client
	model   string
	prompts *PromptConfig
	logger  *zap.Logger
}

// NewIntelligence creates a new document intelligence adapter
func NewIntelligence(apiKey, model string, prompts *PromptConfig, logger *zap.Logger) *Intelligence {
	if prompts == nil {
		prompts = DefaultPrompts()
	}
	return &Intelligence{
		client:  openai.NewClient(apiKey),
		model:   model,
		prompts: prompts,
		logger:  logger,
	}
}

// proformaPayload mirrors the JSON shape the proforma prompt asks for
type proformaPayload struct {
	Vendor        string            `json:"vendor"`
	VendorContact string            `json:"vendor_contact"`
	Items         []entity.LineItem `json:"items"`
	TotalAmount   decimal.Decimal   `json:"total_amount"`
	Currency      string            `json:"currency"`
	Terms         string            `json:"terms"`
	PaymentTerms  string            `json:"payment_terms"`
	DeliveryTerms string            `json:"delivery_terms"`
}

// receiptPayload mirrors the JSON shape the receipt prompt asks for
type receiptPayload struct {
	Seller        string            `json:"seller"`
	Items         []entity.LineItem `json:"items"`
	TotalAmount   decimal.Decimal   `json:"total_amount"`
	Currency      string            `json:"currency"`
	PurchaseDate  string            `json:"purchase_date"`
	ReceiptNumber string            `json:"receipt_number"`
}

// ExtractProforma extracts structured fields from a proforma invoice
func (i *Intelligence) ExtractProforma(ctx context.Context, file port.DocumentFile) (*entity.ProformaData, error) {
	i.logger.Debug("Extracting proforma", zap.String("file", file.Name))

	content, rawText, err := i.complete(ctx, i.prompts.ProformaExtraction, file)
	if err != nil {
		return nil, err
	}

	var payload proformaPayload
	if err := parseJSONResponse(content, &payload); err != nil {
		i.logger.Error("Failed to parse extraction response",
			zap.String("file", file.Name),
			zap.Error(err))
		return nil, fmt.Errorf("failed to parse extraction response: %w", err)
	}

	data := &entity.ProformaData{
		Vendor:        payload.Vendor,
		VendorContact: payload.VendorContact,
		Items:         payload.Items,
		TotalAmount:   payload.TotalAmount,
		Currency:      payload.Currency,
		Terms:         payload.Terms,
		PaymentTerms:  payload.PaymentTerms,
		DeliveryTerms: payload.DeliveryTerms,
		RawText:       truncate(rawText, 500),
	}

	i.logger.Info("Proforma extracted",
		zap.String("file", file.Name),
		zap.String("vendor", data.Vendor),
		zap.String("total", data.TotalAmount.String()))
	return data, nil
}

// ValidateReceipt extracts the receipt and compares it against the expected
// amount and the proforma reference data. Detected mismatches come back as a
// discrepancy result, not an error.
func (i *Intelligence) ValidateReceipt(ctx context.Context, file port.DocumentFile, expectedAmount decimal.Decimal, reference *entity.ProformaData) (*entity.ReceiptData, *entity.ReceiptValidation, error) {
	i.logger.Debug("Validating receipt", zap.String("file", file.Name))

	content, _, err := i.complete(ctx, i.prompts.ReceiptExtraction, file)
	if err != nil {
		return nil, nil, err
	}

	var payload receiptPayload
	if err := parseJSONResponse(content, &payload); err != nil {
		i.logger.Error("Failed to parse receipt response",
			zap.String("file", file.Name),
			zap.Error(err))
		return nil, nil, fmt.Errorf("failed to parse receipt response: %w", err)
	}

	data := &entity.ReceiptData{
		Seller:        payload.Seller,
		Items:         payload.Items,
		TotalAmount:   payload.TotalAmount,
		Currency:      payload.Currency,
		PurchaseDate:  payload.PurchaseDate,
		ReceiptNumber: payload.ReceiptNumber,
	}

	validation := compareReceipt(data, expectedAmount, reference)

	i.logger.Info("Receipt validated",
		zap.String("file", file.Name),
		zap.String("status", validation.Status),
		zap.Int("discrepancies", len(validation.Discrepancies)))
	return data, validation, nil
}

// compareReceipt checks the extracted receipt against the request's amount
// and, when available, the proforma reference data
func compareReceipt(receipt *entity.ReceiptData, expectedAmount decimal.Decimal, reference *entity.ProformaData) *entity.ReceiptValidation {
	validation := &entity.ReceiptValidation{
		Discrepancies: []entity.Discrepancy{},
	}

	switch {
	case receipt.TotalAmount.IsZero():
		validation.Discrepancies = append(validation.Discrepancies, entity.Discrepancy{
			Field:    "total_amount",
			Expected: expectedAmount.StringFixed(2),
			Actual:   "",
			Message:  "no total amount could be read from the receipt",
		})
	case expectedAmount.Sub(receipt.TotalAmount).Abs().GreaterThan(amountTolerance):
		validation.Discrepancies = append(validation.Discrepancies, entity.Discrepancy{
			Field:    "total_amount",
			Expected: expectedAmount.StringFixed(2),
			Actual:   receipt.TotalAmount.StringFixed(2),
			Message: fmt.Sprintf("amount mismatch: expected %s, receipt shows %s",
				expectedAmount.StringFixed(2), receipt.TotalAmount.StringFixed(2)),
		})
	default:
		validation.Matches = append(validation.Matches, "total amount matches")
	}

	if reference != nil {
		if reference.Vendor != "" && receipt.Seller != "" {
			expected := strings.ToLower(reference.Vendor)
			actual := strings.ToLower(receipt.Seller)
			if strings.Contains(actual, expected) || strings.Contains(expected, actual) {
				validation.Matches = append(validation.Matches, "vendor name matches")
			} else {
				validation.Discrepancies = append(validation.Discrepancies, entity.Discrepancy{
					Field:    "vendor",
					Expected: reference.Vendor,
					Actual:   receipt.Seller,
					Message:  "vendor name mismatch",
				})
			}
		}

		if len(reference.Items) > 0 && len(receipt.Items) > 0 && len(reference.Items) != len(receipt.Items) {
			validation.Discrepancies = append(validation.Discrepancies, entity.Discrepancy{
				Field:    "items_count",
				Expected: fmt.Sprintf("%d", len(reference.Items)),
				Actual:   fmt.Sprintf("%d", len(receipt.Items)),
				Message: fmt.Sprintf("number of items mismatch: proforma has %d, receipt has %d",
					len(reference.Items), len(receipt.Items)),
			})
		}
	}

	if len(validation.Discrepancies) == 0 {
		validation.Status = entity.ValidationMatch
	} else {
		validation.Status = entity.ValidationDiscrepancy
	}
	return validation
}

// complete runs one chat completion for the document and returns the raw
// response content plus any text layer that was extracted locally
func (i *Intelligence) complete(ctx context.Context, section PromptSection, file port.DocumentFile) (string, string, error) {
	messages, rawText, err := i.buildMessages(section, file)
	if err != nil {
		return "", "", err
	}

	resp, err := i.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       i.model,
		Temperature: section.Temperature,
		MaxTokens:   section.MaxTokens,
		Messages:    messages,
	})
	if err != nil {
		i.logger.Error("OpenAI API call failed", zap.Error(err))
		return "", "", fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", "", fmt.Errorf("no response from OpenAI")
	}

	return resp.Choices[0].Message.Content, rawText, nil
}

func (i *Intelligence) buildMessages(section PromptSection, file port.DocumentFile) ([]openai.ChatCompletionMessage, string, error) {
	system := openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: section.System,
	}

	switch documentKind(file) {
	case kindPDF:
		text, err := pdfText(file.Content)
		if err != nil {
			return nil, "", err
		}
		if strings.TrimSpace(text) == "" {
			return nil, "", fmt.Errorf("no text could be extracted from %s", file.Name)
		}
		prompt, err := renderTemplate(section.UserTemplate, map[string]string{"Text": text})
		if err != nil {
			return nil, "", err
		}
		return []openai.ChatCompletionMessage{
			system,
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		}, text, nil

	case kindImage:
		prompt, err := renderTemplate(section.UserTemplate, map[string]string{"Text": "(see the attached image)"})
		if err != nil {
			return nil, "", err
		}
		dataURL := fmt.Sprintf("data:%s;base64,%s",
			imageMIME(file), base64.StdEncoding.EncodeToString(file.Content))
		return []openai.ChatCompletionMessage{
			system,
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: prompt},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    dataURL,
							Detail: openai.ImageURLDetailAuto,
						},
					},
				},
			},
		}, "", nil

	default:
		return nil, "", fmt.Errorf("unsupported document format: %s", file.Name)
	}
}

type documentKindT int

const (
	kindUnsupported documentKindT = iota
	kindPDF
	kindImage
)

func documentKind(file port.DocumentFile) documentKindT {
	switch strings.ToLower(filepath.Ext(file.Name)) {
	case ".pdf":
		return kindPDF
	case ".png", ".jpg", ".jpeg":
		return kindImage
	}

	switch file.ContentType {
	case "application/pdf":
		return kindPDF
	case "image/png", "image/jpeg":
		return kindImage
	}
	return kindUnsupported
}

func imageMIME(file port.DocumentFile) string {
	if strings.ToLower(filepath.Ext(file.Name)) == ".png" || file.ContentType == "image/png" {
		return "image/png"
	}
	return "image/jpeg"
}

func parseJSONResponse(content string, target interface{}) error {
	if err := json.Unmarshal([]byte(content), target); err == nil {
		return nil
	}
	if jsonStr := extractJSON(content); jsonStr != "" {
		return json.Unmarshal([]byte(jsonStr), target)
	}
	return fmt.Errorf("response is not valid JSON")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// Verify interface compliance
var _ port.DocumentIntelligence = (*Intelligence)(nil)
