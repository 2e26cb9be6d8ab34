package completion

import (
	"context"
	"fmt"
)

// Token budgets per operation.
const (
	generateMaxTokens = 8000
	rewriteMaxTokens  = 3000
	sampleMaxTokens   = 800
)

// AgeGuidance returns the storytelling guidance injected into the system
// prompt for a child's age. The bands are descriptive text only; nothing
// enforces them on the output.
func AgeGuidance(age int) string {
	switch {
	case age <= 5:
		return "Create simple, colorful stories with clear lessons. Use basic vocabulary and short sentences."
	case age <= 8:
		return "Create engaging stories with simple adventures. Use age-appropriate vocabulary and moderate complexity."
	case age <= 12:
		return "Create interesting stories with meaningful themes. Use varied vocabulary and good narrative structure."
	default:
		return "Create compelling stories with deeper themes. Use rich vocabulary and sophisticated storytelling."
	}
}

func storytellerSystem(age int) string {
	return "You are a creative storyteller for children. " + AgeGuidance(age)
}

// GenerateStory produces a new story from a free-form prompt, tuned to the
// child's age.
func (c *Client) GenerateStory(ctx context.Context, prompt string, age int) (string, error) {
	user := fmt.Sprintf(
		"Story request: %s\n\n"+
			"Write a complete, engaging story based on this request. "+
			"Make it appropriate and enjoyable for the target age group.",
		prompt,
	)
	return c.Complete(ctx, []Message{
		{Role: "system", Content: storytellerSystem(age)},
		{Role: "user", Content: user},
	}, generateMaxTokens)
}

// RewriteStory rewrites an existing story according to a free-form
// instruction, tuned to the child's age.
func (c *Client) RewriteStory(ctx context.Context, originalStory, instruction string, age int) (string, error) {
	user := fmt.Sprintf(
		"Original Story:\n%s\n\n"+
			"Rewrite Instruction: %s\n\n"+
			"Rewrite the story according to the instruction above. "+
			"Keep the main characters and setting the same. "+
			"Ensure the rewritten story has a proper and natural ending. "+
			"Do NOT stop mid-sentence.",
		originalStory, instruction,
	)
	return c.Complete(ctx, []Message{
		{Role: "system", Content: storytellerSystem(age)},
		{Role: "user", Content: user},
	}, rewriteMaxTokens)
}

// SampleCompletion produces a short assistant response for the sample
// endpoint.
func (c *Client) SampleCompletion(ctx context.Context, prompt string) (string, error) {
	return c.Complete(ctx, []Message{
		{Role: "system", Content: "You are a helpful assistant for kids."},
		{Role: "user", Content: prompt},
	}, sampleMaxTokens)
}
