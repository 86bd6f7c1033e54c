package scheduler

import (
	"strings"
	"time"

	"github.com/chriscow/livekit-postop-sub000/pkg/models"
)

// fillPromptTemplate substitutes patient and order fields into a call
// template's prompt. Unknown placeholders are left untouched so a typo in
// a template shows up in review instead of silently disappearing.
func fillPromptTemplate(tmpl string, patient models.Patient, order models.DischargeOrder, discharge time.Time) string {
	r := strings.NewReplacer(
		"{patient_name}", patient.Name,
		"{patient_phone}", patient.Phone,
		"{patient_language}", patient.Language,
		"{order_id}", order.ID,
		"{order_text}", order.Text,
		"{discharge_date}", discharge.UTC().Format("January 2, 2006"),
	)
	return r.Replace(tmpl)
}
