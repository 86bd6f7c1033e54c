package analyzer

import (
	"fmt"
	"strings"

	"github.com/chriscow/livekit-postop-sub000/pkg/models"
)

const systemPrompt = `You are a post-operative care coordinator. You receive the discharge
instructions captured during a patient's discharge conversation and decide
which follow-up phone calls the patient should receive.

Respond with STRICT JSON only, no prose, matching this schema:

{
  "instructions": [
    {"index": 1, "urgency": 1-3, "timing": "<bucket>", "flags": ["..."]}
  ],
  "recommendations": [
    {
      "call_type": "discharge_reminder|wellness_check|medication_reminder|follow_up|urgent|compression_check|activity_guidance|general_followup",
      "timing": "immediate|next_day|two_days|three_days|one_week|two_weeks",
      "priority": 1-3,
      "prompt": "<full conversational instruction text for the calling agent>",
      "instruction_refs": [1, 2],
      "language_notes": "<optional>"
    }
  ],
  "complexity": "simple|moderate|complex",
  "confidence": 0.0-1.0,
  "recovery_timeline": "<one sentence>"
}

Urgency and priority use 1 for urgent and 3 for routine. Each prompt must
be self-contained: the calling agent sees nothing but that text.`

// buildUserPrompt flattens the instruction set into a numbered block with
// category labels, plus the patient context the prompts should use.
func buildUserPrompt(patient models.Patient, instructions []models.DischargeInstruction) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Patient: %s", patient.Name)
	if patient.Language != "" && !strings.EqualFold(patient.Language, "english") {
		fmt.Fprintf(&b, " (preferred language: %s)", patient.Language)
	}
	b.WriteString("\n\nCaptured discharge instructions:\n")
	for i, ins := range instructions {
		fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, ins.Category, ins.Text)
	}
	b.WriteString("\nProduce the JSON analysis now.")
	return b.String()
}
