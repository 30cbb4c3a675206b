package slack

import (
	"context"
	"fmt"
	"time"

	goslack "github.com/slack-go/slack"
)

// Client posts Block Kit messages to one Slack channel.
type Client struct {
	api       *goslack.Client
	channelID string
}

// NewClient creates a client for channelID. Extra options, such as
// goslack.OptionAPIURL for a mock server, are passed to the SDK.
func NewClient(token, channelID string, opts ...goslack.Option) *Client {
	return &Client{api: goslack.New(token, opts...), channelID: channelID}
}

// PostMessage sends blocks with plain fallback text and returns the
// message timestamp.
func (c *Client) PostMessage(ctx context.Context, fallback string, blocks []goslack.Block, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, ts, err := c.api.PostMessageContext(ctx, c.channelID,
		goslack.MsgOptionText(fallback, false),
		goslack.MsgOptionBlocks(blocks...),
	)
	if err != nil {
		return "", fmt.Errorf("chat.postMessage to %s failed: %w", c.channelID, err)
	}
	return ts, nil
}
