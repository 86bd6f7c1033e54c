package dialog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chriscow/livekit-postop-sub000/pkg/llm"
	"github.com/chriscow/livekit-postop-sub000/pkg/models"
)

func TestClassifyParsesLLMVerdict(t *testing.T) {
	mock := llm.NewMock().Respond(`{"is_instruction": true, "category": "medication"}`)
	c := NewClassifier(mock, "test-model")

	cls := c.Classify(context.Background(), "Take two Tylenol every four hours")
	assert.True(t, cls.IsInstruction)
	assert.Equal(t, models.CategoryMedication, cls.Category)
}

func TestClassifyToleratesWrappedJSON(t *testing.T) {
	mock := llm.NewMock().Respond("Sure: {\"is_instruction\": false, \"category\": \"other\"}")
	c := NewClassifier(mock, "test-model")

	cls := c.Classify(context.Background(), "Nice weather today")
	assert.False(t, cls.IsInstruction)
}

func TestClassifyFallsBackOnLLMFailure(t *testing.T) {
	mock := llm.NewMock().Fail(llm.ErrUnavailable)
	c := NewClassifier(mock, "test-model")

	cls := c.Classify(context.Background(), "Keep the incision dry for three days")
	assert.True(t, cls.IsInstruction)
	assert.Equal(t, models.CategoryWound, cls.Category)
}

func TestClassifyFallsBackOnGarbage(t *testing.T) {
	mock := llm.NewMock().Respond("not json at all")
	c := NewClassifier(mock, "test-model")

	cls := c.Classify(context.Background(), "Wear the compression sleeve during the day")
	assert.True(t, cls.IsInstruction)
	assert.Equal(t, models.CategoryDevice, cls.Category)
}

func TestKeywordClassify(t *testing.T) {
	tests := []struct {
		text string
		want Classification
	}{
		{"Take two Tylenol every four hours", Classification{true, models.CategoryMedication}},
		{"Call 911 if you have chest pain", Classification{true, models.CategoryWarning}},
		{"No lifting anything over ten pounds", Classification{true, models.CategoryActivity}},
		{"Drink plenty of fluids", Classification{true, models.CategoryDiet}},
		{"Schedule a follow up with the clinic next week", Classification{true, models.CategoryFollowup}},
		{"The nurse will be right back", Classification{}},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, keywordClassify(tt.text))
		})
	}
}
