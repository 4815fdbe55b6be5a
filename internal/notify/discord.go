package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DiscordSender delivers notifications via a Discord webhook. Beyond plain
// announcements it can create a message whose ID it reports back, and edit a
// message in place; the dispatcher uses those two calls to maintain the
// pinned summary of open auctions.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordSender creates a DiscordSender for the given webhook URL. It uses a
// default HTTP client with a 10-second timeout.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Send posts a message to the Discord webhook. The title is rendered in bold
// using Discord markdown syntax.
func (d *DiscordSender) Send(ctx context.Context, title, message string) error {
	content := fmt.Sprintf("**%s**\n%s", title, message)
	_, err := d.post(ctx, d.webhookURL, map[string]string{"content": content})
	return err
}

// CreateMessage posts content through the webhook with wait=true so Discord
// returns the created message object, and reports its ID.
func (d *DiscordSender) CreateMessage(ctx context.Context, content string) (string, error) {
	body, err := d.post(ctx, d.webhookURL+"?wait=true", map[string]string{"content": content})
	if err != nil {
		return "", err
	}

	var msg struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &msg); err != nil {
		return "", fmt.Errorf("discord: decode message response: %w", err)
	}
	if msg.ID == "" {
		return "", fmt.Errorf("discord: message response missing id")
	}
	return msg.ID, nil
}

// EditMessage replaces the content of a message previously created through
// this webhook.
func (d *DiscordSender) EditMessage(ctx context.Context, messageID, content string) error {
	url := fmt.Sprintf("%s/messages/%s", d.webhookURL, messageID)

	payload, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return fmt.Errorf("discord: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("discord: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord: edit message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("discord: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// post sends a JSON payload and returns the response body on a 2xx status.
func (d *DiscordSender) post(ctx context.Context, url string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("discord: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("discord: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("discord: send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	// Discord returns 204 No Content for plain webhook posts.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("discord: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

// Name returns the sender identifier.
func (d *DiscordSender) Name() string {
	return "discord"
}

// DiscordDM sends direct messages through the Discord REST API using a bot
// token. A DM requires opening (or reusing) the DM channel for the user
// first, so each send is two API calls.
type DiscordDM struct {
	token  string
	client *http.Client
}

// NewDiscordDM creates a DiscordDM for the given bot token.
func NewDiscordDM(token string) *DiscordDM {
	return &DiscordDM{
		token:  token,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

const discordAPIBase = "https://discord.com/api/v10"

// SendDM delivers a private message to the given user.
func (d *DiscordDM) SendDM(ctx context.Context, userID, message string) error {
	channelID, err := d.openDMChannel(ctx, userID)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/channels/%s/messages", discordAPIBase, channelID)
	if _, err := d.post(ctx, url, map[string]string{"content": message}); err != nil {
		return fmt.Errorf("discord: dm user %s: %w", userID, err)
	}
	return nil
}

// openDMChannel creates or fetches the DM channel for a user.
func (d *DiscordDM) openDMChannel(ctx context.Context, userID string) (string, error) {
	url := discordAPIBase + "/users/@me/channels"
	body, err := d.post(ctx, url, map[string]string{"recipient_id": userID})
	if err != nil {
		return "", fmt.Errorf("discord: open dm channel for %s: %w", userID, err)
	}

	var channel struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &channel); err != nil {
		return "", fmt.Errorf("discord: decode dm channel: %w", err)
	}
	if channel.ID == "" {
		return "", fmt.Errorf("discord: dm channel response missing id")
	}
	return channel.ID, nil
}

func (d *DiscordDM) post(ctx context.Context, url string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bot "+d.token)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}
