package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// DiscordSender posts notifications to a webhook URL.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordSender creates a sender for the given webhook.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: senderTimeout},
	}
}

func (d *DiscordSender) Name() string { return "discord" }

// Send posts the title bolded in Discord markdown. Discord answers 204 on
// success.
func (d *DiscordSender) Send(ctx context.Context, title, message string) error {
	payload, err := json.Marshal(map[string]string{
		"content": fmt.Sprintf("**%s**\n%s", title, message),
	})
	if err != nil {
		return fmt.Errorf("discord: marshal: %w", err)
	}
	return postJSON(ctx, d.client, "discord", d.webhookURL, payload)
}
