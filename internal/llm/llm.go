package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// DraftedIssue holds the fields an LLM drafted from free-form text.
type DraftedIssue struct {
	IssueTitle string `json:"issue_title"`
	IssueText  string `json:"issue_text"`
}

// Client wraps the Anthropic API for issue drafting.
type Client struct {
	api   *anthropic.Client
	model anthropic.Model
}

// NewClient creates an LLM client with the given API key and model.
func NewClient(apiKey, model string) *Client {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)
	return &Client{
		api:   &client,
		model: anthropic.Model(model),
	}
}

// buildDraftPrompt constructs the system and user prompts for drafting an issue.
func buildDraftPrompt(text, project string) (system string, user string) {
	system = `You turn rough notes into an issue for a bug tracker. Return ONLY a JSON object with exactly two fields:

- "issue_title": a concise title, at most 80 characters
- "issue_text": a clear description of the problem or request, keeping every concrete detail from the notes (steps, versions, error messages)

Rules:
- Return valid JSON only, no markdown fencing or explanation
- Do not invent details that are not in the notes
- Both fields must be non-empty`

	var sb strings.Builder
	if project != "" {
		sb.WriteString("Project: ")
		sb.WriteString(project)
		sb.WriteString("\n\n")
	}
	sb.WriteString("Notes:\n\n")
	sb.WriteString(text)
	user = sb.String()
	return
}

// parseDraft extracts a DraftedIssue from a model response, tolerating markdown fencing.
func parseDraft(text string) (*DraftedIssue, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		lines := strings.SplitN(text, "\n", 2)
		if len(lines) > 1 {
			text = lines[1]
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	var draft DraftedIssue
	if err := json.Unmarshal([]byte(text), &draft); err != nil {
		return nil, fmt.Errorf("parse LLM response as JSON: %w\nraw response: %s", err, text)
	}
	if draft.IssueTitle == "" || draft.IssueText == "" {
		return nil, fmt.Errorf("LLM response is missing issue_title or issue_text: %s", text)
	}
	return &draft, nil
}

// DraftIssue sends free-form notes to the LLM and returns a title and text.
func (c *Client) DraftIssue(ctx context.Context, text, project string) (*DraftedIssue, error) {
	systemPrompt, userPrompt := buildDraftPrompt(text, project)

	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 1024,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic API call: %w", err)
	}

	var out string
	for _, block := range msg.Content {
		if block.Type == "text" {
			out = block.Text
			break
		}
	}
	if out == "" {
		return nil, fmt.Errorf("no text content in API response")
	}

	return parseDraft(out)
}
