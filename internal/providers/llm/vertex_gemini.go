package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	vertexgenai "cloud.google.com/go/vertexai/genai"
)

type VertexGemini struct {
	client *vertexgenai.Client
	model  *vertexgenai.GenerativeModel
}

func NewVertexGemini(ctx context.Context, projectID, location, modelName string) (*VertexGemini, error) {
	c, err := vertexgenai.NewClient(ctx, projectID, location)
	if err != nil {
		return nil, err
	}

	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}

	m := c.GenerativeModel(modelName)
	m.SetTemperature(0.1)
	m.SetMaxOutputTokens(300)
	return &VertexGemini{client: c, model: m}, nil
}

func (v *VertexGemini) Close() error { return v.client.Close() }

const extractConceptsPrompt = `You are an assistant that extracts 0-3 key concepts from a single message in a conversation.
A concept is a short, self-contained description of a distinct subject, theme, or problem discussed.
Do not include chit-chat, pleasantries, or unrelated text.

Guidelines:
- Each concept must have both a title and a one-sentence summary.
- The title must be 2-6 words.
- Use plain language, no hashtags.
- Prefer combining closely related details into one clear concept.
- If no meaningful concept is present, return an empty list.

Output:
- Return JSON only. No extra text, no code fences, no markdown.
- Use exactly this schema and field names:

{
  "concepts": [
    {
      "title": "short title (2-6 words)",
      "summary": "one-sentence summary of the concept"
    }
  ]
}

If none, return: {"concepts": []}

Message: %s`

func (v *VertexGemini) ExtractConcepts(ctx context.Context, content string) ([]Concept, error) {
	text, err := v.generate(ctx, fmt.Sprintf(extractConceptsPrompt, content))
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Concepts []Concept `json:"concepts"`
	}
	if err := unmarshalLooseJSON(text, &parsed); err != nil {
		return nil, fmt.Errorf("concept extraction returned unparseable output: %w", err)
	}

	concepts := parsed.Concepts
	if len(concepts) > 3 {
		concepts = concepts[:3]
	}
	return concepts, nil
}

const summarizeClusterPrompt = `You are analyzing clusters of professional conversations where people use AI for work assistance.

Here are the top technical concepts from a cluster:
%s

Create a study guide title and description:
- Title: 3-5 words describing the technical domain
- Description: 2 sentences explaining what professionals would learn from this cluster

Format as JSON: {"title": "...", "description": "..."}`

func (v *VertexGemini) SummarizeCluster(ctx context.Context, topConcepts []string) (*ClusterSummary, error) {
	if len(topConcepts) > 8 {
		topConcepts = topConcepts[:8]
	}

	text, err := v.generate(ctx, fmt.Sprintf(summarizeClusterPrompt, strings.Join(topConcepts, ", ")))
	if err != nil {
		return nil, err
	}

	var summary ClusterSummary
	if err := unmarshalLooseJSON(text, &summary); err != nil {
		return nil, fmt.Errorf("cluster labeling returned unparseable output: %w", err)
	}
	summary.Title = strings.TrimSpace(summary.Title)
	summary.Description = strings.TrimSpace(summary.Description)
	if summary.Title == "" {
		return nil, errors.New("cluster labeling returned an empty title")
	}
	return &summary, nil
}

func (v *VertexGemini) generate(ctx context.Context, prompt string) (string, error) {
	resp, err := v.model.GenerateContent(ctx, vertexgenai.Text(prompt))
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(vertexgenai.Text); ok {
				sb.WriteString(string(t))
			}
		}
	}

	out := strings.TrimSpace(sb.String())
	if out == "" {
		return "", errors.New("model returned no text")
	}
	return out, nil
}

// unmarshalLooseJSON tolerates prose or code fences around a JSON object by
// decoding the span between the first '{' and the last '}'.
func unmarshalLooseJSON(text string, dst any) error {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return errors.New("no JSON object found in response")
	}
	return json.Unmarshal([]byte(text[start:end+1]), dst)
}
