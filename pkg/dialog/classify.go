package dialog

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/chriscow/livekit-postop-sub000/pkg/llm"
	"github.com/chriscow/livekit-postop-sub000/pkg/models"
)

// Classification is the verdict for one user turn.
type Classification struct {
	IsInstruction bool
	Category      models.InstructionCategory
}

// Classifier decides whether an utterance is a true discharge
// instruction.
type Classifier interface {
	Classify(ctx context.Context, utterance string) Classification
}

const classifySystemPrompt = `You label single utterances from a hospital discharge conversation.
An utterance is a discharge instruction when it tells the patient
something to do or avoid during recovery. Respond with STRICT JSON only:

{"is_instruction": true|false, "category": "medication|activity|wound|diet|followup|warning|device|precaution|other"}`

// LLMClassifier asks the LLM per turn and falls back to keyword rules
// when the LLM is unavailable or returns garbage. A turn is never lost
// to LLM trouble.
type LLMClassifier struct {
	llm   llm.Client
	model string
}

// NewClassifier creates the in-call utterance classifier.
func NewClassifier(client llm.Client, model string) *LLMClassifier {
	return &LLMClassifier{llm: client, model: model}
}

// Classify implements Classifier.
func (c *LLMClassifier) Classify(ctx context.Context, utterance string) Classification {
	resp, err := c.llm.ChatCompletion(ctx, llm.Request{
		Model: c.model,
		Messages: []llm.Message{
			{Role: "system", Content: classifySystemPrompt},
			{Role: "user", Content: utterance},
		},
		Temperature: 0,
		MaxTokens:   64,
	})
	if err != nil {
		slog.Warn("Utterance classification failed, using keyword rules", "error", err)
		return keywordClassify(utterance)
	}

	var wire struct {
		IsInstruction bool   `json:"is_instruction"`
		Category      string `json:"category"`
	}
	body := resp.Content
	if start, end := strings.Index(body, "{"), strings.LastIndex(body, "}"); start >= 0 && end > start {
		body = body[start : end+1]
	}
	if err := json.Unmarshal([]byte(body), &wire); err != nil {
		slog.Warn("Utterance classification malformed, using keyword rules", "error", err)
		return keywordClassify(utterance)
	}
	if !wire.IsInstruction {
		return Classification{}
	}
	return Classification{IsInstruction: true, Category: models.ParseInstructionCategory(wire.Category)}
}

// categoryKeywords drive the deterministic fallback. Checked in order;
// warnings win over everything else.
var categoryKeywords = []struct {
	category models.InstructionCategory
	words    []string
}{
	{models.CategoryWarning, []string{"call 911", "emergency", "fever", "bleeding", "warning sign", "chest pain"}},
	{models.CategoryMedication, []string{"medication", "pill", "tablet", "dose", " mg", "tylenol", "ibuprofen", "antibiotic", "take two", "take one"}},
	{models.CategoryWound, []string{"wound", "incision", "bandage", "dressing", "stitches", "keep it dry", "keep the wound"}},
	{models.CategoryDevice, []string{"compression", "sleeve", "stocking", "brace", "sling", "crutches"}},
	{models.CategoryActivity, []string{"avoid", "no lifting", "lift", "exercise", "drive", "driving", "strenuous", "walk", "rest"}},
	{models.CategoryDiet, []string{"eat", "drink", "diet", "fluids", "alcohol", "caffeine"}},
	{models.CategoryFollowup, []string{"appointment", "follow up", "follow-up", "clinic", "schedule", "call the office"}},
}

// keywordClassify is the LLM-free fallback: any category keyword makes
// the turn an instruction in that category.
func keywordClassify(utterance string) Classification {
	lower := strings.ToLower(utterance)
	for _, entry := range categoryKeywords {
		if containsAny(lower, entry.words) {
			return Classification{IsInstruction: true, Category: entry.category}
		}
	}
	return Classification{}
}
