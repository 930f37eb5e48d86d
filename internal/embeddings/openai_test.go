package embeddings

import "testing"

func TestNewOpenAIEmbedder_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  OpenAIConfig
	}{
		{"missing api key", OpenAIConfig{Model: "text-embedding-3-small", Dimensions: 256}},
		{"missing model", OpenAIConfig{APIKey: "sk-test", Dimensions: 256}},
		{"zero dimensions", OpenAIConfig{APIKey: "sk-test", Model: "text-embedding-3-small"}},
		{"negative dimensions", OpenAIConfig{APIKey: "sk-test", Model: "text-embedding-3-small", Dimensions: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewOpenAIEmbedder(tt.cfg); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestNewOpenAIEmbedder_Valid(t *testing.T) {
	e, err := NewOpenAIEmbedder(OpenAIConfig{
		APIKey:     "sk-test",
		BaseURL:    "http://localhost:9999/v1",
		Model:      "text-embedding-3-small",
		Dimensions: 256,
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if e.Dimensions() != 256 {
		t.Errorf("Expected dimensions 256, got %d", e.Dimensions())
	}
}
