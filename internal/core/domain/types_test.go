package domain

import (
	"encoding/json"
	"testing"
)

func TestMessageUpdate_MarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		update  MessageUpdate
		present []string
		absent  []string
	}{
		{
			name:    "empty final answer keeps text and interrupted",
			update:  FinalAnswer("", false, nil, nil),
			present: []string{"type", "text", "interrupted"},
			absent:  []string{"usage", "webSources", "token"},
		},
		{
			name:    "final answer with usage",
			update:  FinalAnswer("done", true, nil, &UsageInfo{InputTokens: 1}),
			present: []string{"type", "text", "interrupted", "usage"},
		},
		{
			name:    "stream update stays compact",
			update:  StreamUpdate("hi"),
			present: []string{"type", "token"},
			absent:  []string{"text", "interrupted"},
		},
		{
			name:    "reasoning status",
			update:  ReasoningStatus("Started thinking..."),
			present: []string{"type", "subtype", "status"},
			absent:  []string{"text", "interrupted"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.update)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			var fields map[string]any
			if err := json.Unmarshal(data, &fields); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			for _, k := range tt.present {
				if _, ok := fields[k]; !ok {
					t.Errorf("%s missing from %s", k, data)
				}
			}
			for _, k := range tt.absent {
				if _, ok := fields[k]; ok {
					t.Errorf("%s unexpectedly present in %s", k, data)
				}
			}
		})
	}
}

func TestMessageUpdate_MarshalFinalAnswerValues(t *testing.T) {
	data, err := json.Marshal(FinalAnswer("Hello", true, nil, nil))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `{"type":"finalAnswer","text":"Hello","interrupted":true}`
	if string(data) != want {
		t.Errorf("Marshal() = %s, want %s", data, want)
	}
}
