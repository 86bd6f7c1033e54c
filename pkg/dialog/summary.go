package dialog

import (
	"fmt"
	"html"
	"strings"

	"github.com/chriscow/livekit-postop-sub000/pkg/models"
)

// BuildSummary renders the deterministic read-back: a numbered list of
// the deduplicated instructions with their category labels, in capture
// order.
func BuildSummary(instructions []models.DischargeInstruction) string {
	if len(instructions) == 0 {
		return "I didn't capture any discharge instructions during this conversation."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Here are the %d discharge instructions I captured:\n", len(instructions))
	for i, ins := range instructions {
		fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, ins.Category, ins.Text)
	}
	return b.String()
}

// summaryEmail renders the confirmation email for a verified summary.
func summaryEmail(patient models.Patient, instructions []models.DischargeInstruction) (subject, plain, htmlBody string) {
	subject = fmt.Sprintf("Discharge instructions for %s", patient.Name)
	plain = BuildSummary(instructions)

	var b strings.Builder
	fmt.Fprintf(&b, "<h2>Discharge instructions for %s</h2>\n<ol>\n", html.EscapeString(patient.Name))
	for _, ins := range instructions {
		fmt.Fprintf(&b, "<li><strong>%s</strong>: %s</li>\n",
			html.EscapeString(string(ins.Category)), html.EscapeString(ins.Text))
	}
	b.WriteString("</ol>\n")
	return subject, plain, b.String()
}
