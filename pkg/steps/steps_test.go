package steps

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xpzouying/starpath/pkg/analysis"
)

func TestClassifyAction(t *testing.T) {
	tests := []struct {
		action string
		want   Kind
	}{
		{"navigate", KindNavigate},
		{"NAVIGATE", KindNavigate},
		{"type", KindInput},
		{"Input", KindInput},
		{"fill", KindInput},
		{"click", KindClick},
		{"press", KindClick},
		{"tap", KindClick},
		{"toggle", KindClick},
		{"TOGGLE", KindClick},
		{"ToGgLe", KindClick},
		{"check", KindClick},
		{"uncheck", KindClick},
		{"assert", KindAssert},
		{"verify", KindAssert},
		{"check visibility", KindAssert},
		{"Check Visibility", KindAssert},
		{" click ", KindClick},
		{"banana", KindAssert},
		{"", KindAssert},
	}
	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyAction(tt.action))
		})
	}
}

func TestFromObservation_Values(t *testing.T) {
	tests := []struct {
		name string
		obs  analysis.Observation
		want Step
	}{
		{
			name: "click uses element",
			obs:  analysis.Observation{Description: "press add", Action: "Click", Element: "Add Task button", ExpectedResult: "Task added"},
			want: Step{Kind: KindClick, Value: "Add Task button"},
		},
		{
			name: "input uses element",
			obs:  analysis.Observation{Action: "type", Element: "Title input"},
			want: Step{Kind: KindInput, Value: "Title input"},
		},
		{
			name: "unknown verb with expected result",
			obs:  analysis.Observation{Description: "hover row", Action: "banana", Element: "row", ExpectedResult: "Row highlighted"},
			want: Step{Kind: KindAssert, Value: "Row highlighted"},
		},
		{
			name: "unknown verb falls back to description",
			obs:  analysis.Observation{Description: "hover row", Action: "banana", Element: "row"},
			want: Step{Kind: KindAssert, Value: "hover row"},
		},
		{
			name: "verify falls back to description",
			obs:  analysis.Observation{Description: "list is empty", Action: "verify"},
			want: Step{Kind: KindAssert, Value: "list is empty"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FromObservation(tt.obs))
		})
	}
}

func TestClassify_PreservesOrderAndDuplicates(t *testing.T) {
	obs := []analysis.Observation{
		{Action: "navigate", Element: "/login"},
		{Action: "click", Element: "Submit"},
		{Action: "click", Element: "Submit"},
		{Action: "fill", Element: "Email"},
		{Action: "assert", Description: "Dashboard visible"},
	}

	got := Classify(obs)
	require.Len(t, got, len(obs))
	assert.Equal(t, []Step{
		{Kind: KindNavigate, Value: "/login"},
		{Kind: KindClick, Value: "Submit"},
		{Kind: KindClick, Value: "Submit"},
		{Kind: KindInput, Value: "Email"},
		{Kind: KindAssert, Value: "Dashboard visible"},
	}, got)

	assert.Empty(t, Classify(nil))
}

func TestStep_JSON(t *testing.T) {
	data, err := json.Marshal([]Step{{Kind: KindClick, Value: "Save"}})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"type":"click","value":"Save"}]`, string(data))

	var s Step
	require.NoError(t, json.Unmarshal([]byte(`{"type":"navigate","value":"/home"}`), &s))
	assert.Equal(t, Step{Kind: KindNavigate, Value: "/home"}, s)

	assert.Error(t, json.Unmarshal([]byte(`{"type":"hover","value":"x"}`), &s))
}
