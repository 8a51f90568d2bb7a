package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"mealagent"
)

type doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Client struct {
	webhookURL string
	httpClient doer
}

func NewClient(webhookURL string, httpClient doer) *Client {
	return &Client{
		webhookURL: webhookURL,
		httpClient: httpClient,
	}
}

func (c *Client) PostMessage(ctx context.Context, channel string, message string) error {
	payload, err := json.Marshal(map[string]any{
		"channel": channel,
		"text":    message,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to post message: %s", resp.Status)
	}

	return nil
}

// FormatTurnResult renders a RunResult as a short Slack message: the reply
// line plus the meal totals when present.
func FormatTurnResult(res mealagent.RunResult) string {
	var b strings.Builder
	b.WriteString(res.Message)
	if res.Summary != nil && res.OK {
		fmt.Fprintf(&b, "\n%s (P %.0f / C %.0f / F %.0f)",
			res.Summary.Text, res.Summary.Protein, res.Summary.Carbs, res.Summary.Fat)
	}
	return b.String()
}
