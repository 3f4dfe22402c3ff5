package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	openaisdk "github.com/openai/openai-go/v3"

	"github.com/hively/engine/internal/models"
)

// ErrNoChatResponse is returned when the chat API returns no choices.
var ErrNoChatResponse = errors.New("openai: no chat response")

const themeSystemPrompt = `You are labelling themes in a pool of user-submitted feedback.
For each numbered cluster you receive sample responses. Reply with JSON only:
{"themes":[{"cluster_index":0,"name":"...","description":"..."}]}
Names are at most five words; descriptions one sentence.`

const consolidateSystemPrompt = `You are consolidating similar feedback responses into shared statements.
For each numbered cluster you receive responses with ids. Group near-duplicates and reply with JSON only:
{"buckets":[{"cluster_index":0,"statement":"...","response_ids":["..."]}]}
Leave out responses that do not belong with any others.`

// GenerateThemes asks the chat model for a name and description per cluster,
// given bounded samples of each cluster's texts.
func (c *Client) GenerateThemes(ctx context.Context, samples map[int][]string) ([]models.ThemeDraft, error) {
	if len(samples) == 0 {
		return nil, nil
	}

	var sb strings.Builder
	for _, idx := range sortedKeys(samples) {
		fmt.Fprintf(&sb, "Cluster %d:\n", idx)
		for _, text := range samples[idx] {
			fmt.Fprintf(&sb, "- %s\n", text)
		}
		sb.WriteString("\n")
	}

	content, err := c.chat(ctx, themeSystemPrompt, sb.String())
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Themes []models.ThemeDraft `json:"themes"`
	}
	if err := json.Unmarshal([]byte(stripFences(content)), &parsed); err != nil {
		return nil, fmt.Errorf("openai themes: parse response: %w", err)
	}

	return parsed.Themes, nil
}

// ConsolidateClusters asks the chat model to group near-duplicate responses
// under shared statements. Responses not covered by any returned bucket are
// reported as leftovers. This stage is best-effort; callers log and continue
// on error.
func (c *Client) ConsolidateClusters(
	ctx context.Context, clusters map[int][]models.ResponseText,
) (*models.ConsolidationResult, error) {
	if len(clusters) == 0 {
		return &models.ConsolidationResult{}, nil
	}

	all := make(map[uuid.UUID]bool)

	var sb strings.Builder
	for _, idx := range sortedKeys(clusters) {
		fmt.Fprintf(&sb, "Cluster %d:\n", idx)
		for _, r := range clusters[idx] {
			fmt.Fprintf(&sb, "- [%s] %s\n", r.ID, r.Text)
			all[r.ID] = true
		}
		sb.WriteString("\n")
	}

	content, err := c.chat(ctx, consolidateSystemPrompt, sb.String())
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Buckets []models.ConsolidationDraft `json:"buckets"`
	}
	if err := json.Unmarshal([]byte(stripFences(content)), &parsed); err != nil {
		return nil, fmt.Errorf("openai consolidate: parse response: %w", err)
	}

	result := &models.ConsolidationResult{Buckets: parsed.Buckets}
	for _, bucket := range parsed.Buckets {
		for _, id := range bucket.ResponseIDs {
			delete(all, id)
		}
	}
	for id := range all {
		result.LeftoverIDs = append(result.LeftoverIDs, id)
	}

	return result, nil
}

func (c *Client) chat(ctx context.Context, system, user string) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}

	resp, err := c.sdk.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model: c.chatModel,
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.SystemMessage(system),
			openaisdk.UserMessage(user),
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai chat: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", ErrNoChatResponse
	}

	return resp.Choices[0].Message.Content, nil
}

// stripFences removes a markdown code fence if the model wrapped its JSON in one.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")

	return strings.TrimSpace(s)
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	return keys
}
