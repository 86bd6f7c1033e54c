package api

import (
	"time"

	"github.com/chriscow/livekit-postop-sub000/pkg/models"
)

// PatientRequest identifies and personalizes the patient for scheduling.
type PatientRequest struct {
	ID       string `json:"id" binding:"required"`
	Name     string `json:"name" binding:"required"`
	Phone    string `json:"phone" binding:"required"`
	Language string `json:"language"`
}

func (p PatientRequest) model() models.Patient {
	return models.Patient{ID: p.ID, Name: p.Name, Phone: p.Phone, Language: p.Language}
}

// OrderRequest is one discharge order in a scheduling request.
type OrderRequest struct {
	ID           string `json:"id" binding:"required"`
	Text         string `json:"text" binding:"required"`
	CallTemplate *struct {
		Timing         string `json:"timing" binding:"required"`
		CallType       string `json:"call_type"`
		Priority       int    `json:"priority"`
		PromptTemplate string `json:"prompt_template"`
	} `json:"call_template"`
}

// ScheduleCallsRequest is the POST /api/v1/calls body.
type ScheduleCallsRequest struct {
	Patient       PatientRequest `json:"patient" binding:"required"`
	DischargeTime time.Time      `json:"discharge_time" binding:"required"`
	Orders        []OrderRequest `json:"orders"`
}

func (r ScheduleCallsRequest) orders() []models.DischargeOrder {
	out := make([]models.DischargeOrder, 0, len(r.Orders))
	for _, o := range r.Orders {
		order := models.DischargeOrder{ID: o.ID, Text: o.Text}
		if o.CallTemplate != nil {
			order.CallTemplate = &models.CallTemplate{
				Timing:         o.CallTemplate.Timing,
				CallType:       models.ParseCallType(o.CallTemplate.CallType),
				Priority:       o.CallTemplate.Priority,
				PromptTemplate: o.CallTemplate.PromptTemplate,
			}
		}
		out = append(out, order)
	}
	return out
}

// AnalyzeDischargeRequest is the POST /api/v1/discharges/:id/analyze body.
// The URL id is the discharge session whose transcript was captured.
type AnalyzeDischargeRequest struct {
	Patient       PatientRequest       `json:"patient" binding:"required"`
	DischargeTime time.Time            `json:"discharge_time" binding:"required"`
	Instructions  []InstructionRequest `json:"instructions"`

	// Schedule controls whether the recommended calls are scheduled
	// immediately. Defaults to true.
	Schedule *bool `json:"schedule"`
}

// InstructionRequest is one captured discharge instruction.
type InstructionRequest struct {
	Text     string `json:"text" binding:"required"`
	Category string `json:"category"`
}

func (r AnalyzeDischargeRequest) instructions() []models.DischargeInstruction {
	out := make([]models.DischargeInstruction, 0, len(r.Instructions))
	for _, ins := range r.Instructions {
		out = append(out, models.DischargeInstruction{
			Text:     ins.Text,
			Category: models.ParseInstructionCategory(ins.Category),
		})
	}
	return out
}
