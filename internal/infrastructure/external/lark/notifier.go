package lark

import (
	"context"
	"encoding/json"
	"fmt"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"go.uber.org/zap"

	"github.com/dmarkova/procureflow/internal/application/port"
	"github.com/dmarkova/procureflow/internal/domain/entity"
)

// Config holds Lark client configuration
type Config struct {
	AppID     string
	AppSecret string
}

// Notifier implements port.Notifier by sending a Lark text message to the
// requester. Users without an open_id are skipped silently; everyone else's
// delivery trouble bubbles up so the caller can log it.
type Notifier struct {
	client *lark.Client
	logger *zap.Logger
}

// NewNotifier creates a new Lark notifier
func NewNotifier(cfg Config, logger *zap.Logger) *Notifier {
	client := lark.NewClient(cfg.AppID, cfg.AppSecret,
		lark.WithLogLevel(larkcore.LogLevelInfo),
		lark.WithEnableTokenCache(true),
	)
	return &Notifier{
		client: client,
		logger: logger,
	}
}

// NotifyDecision sends the decision outcome to the requester
func (n *Notifier) NotifyDecision(ctx context.Context, request *entity.PurchaseRequest, recipient *entity.User, approval *entity.Approval) error {
	if recipient.OpenID == "" {
		n.logger.Debug("Recipient has no open_id, skipping notification",
			zap.String("user_id", recipient.ID))
		return nil
	}

	text := fmt.Sprintf("Your purchase request %q was %s.", request.Title, request.Status)
	if approval.Comments != "" {
		text += fmt.Sprintf(" Comments: %s", approval.Comments)
	}

	content, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return fmt.Errorf("failed to marshal message content: %w", err)
	}

	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType("open_id").
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(recipient.OpenID).
			MsgType("text").
			Content(string(content)).
			Build()).
		Build()

	resp, err := n.client.Im.Message.Create(ctx, req)
	if err != nil {
		n.logger.Error("Failed to send notification",
			zap.String("open_id", recipient.OpenID),
			zap.Error(err))
		return fmt.Errorf("failed to send notification: %w", err)
	}
	if !resp.Success() {
		n.logger.Error("Lark API returned failure",
			zap.String("open_id", recipient.OpenID),
			zap.Int("code", resp.Code),
			zap.String("msg", resp.Msg))
		return fmt.Errorf("lark API error: code=%d, msg=%s", resp.Code, resp.Msg)
	}

	n.logger.Info("Decision notification sent",
		zap.String("request_id", request.ID),
		zap.String("open_id", recipient.OpenID))
	return nil
}

// NoopNotifier is used when Lark credentials are not configured
type NoopNotifier struct{}

// NotifyDecision does nothing
func (NoopNotifier) NotifyDecision(ctx context.Context, request *entity.PurchaseRequest, recipient *entity.User, approval *entity.Approval) error {
	return nil
}

// Verify interface compliance
var (
	_ port.Notifier = (*Notifier)(nil)
	_ port.Notifier = NoopNotifier{}
)
