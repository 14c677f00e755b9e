package langid

import "testing"

func TestIsTarget_English(t *testing.T) {
	c := New(ThresholdBatch)

	tests := []struct {
		name string
		text string
		want bool
	}{
		{"plain english", "the patient has a history of diabetes and is on insulin", true},
		{"english question", "can you tell me about the pain in your chest", true},
		{"gujarati romanized", "mane pet ma dukhavo thay chhe", false},
		{"hindi romanized", "mujhe bukhar aur khansi hai", false},
		{"empty", "", false},
		{"whitespace only", "   ", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.IsTarget(tt.text); got != tt.want {
				t.Errorf("IsTarget(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestIsTarget_ThresholdSensitivity(t *testing.T) {
	// Two function words out of seven tokens: ratio ~0.29.
	text := "the report lists fever cough and nausea"

	lenient := New(ThresholdLive)
	strict := New(0.5)

	if !lenient.IsTarget(text) {
		t.Error("expected lenient classifier to accept mixed text")
	}
	if strict.IsTarget(text) {
		t.Error("expected strict classifier to reject mixed text")
	}
}

func TestIsTarget_PunctuationStripped(t *testing.T) {
	c := New(ThresholdLive)

	if !c.IsTarget("The, patient. is? (stable)") {
		t.Error("expected punctuation-wrapped function words to match")
	}
}

func TestIsTarget_CaseInsensitive(t *testing.T) {
	c := New(ThresholdLive)

	if !c.IsTarget("THE PATIENT IS STABLE") {
		t.Error("expected uppercase text to match")
	}
}

func TestNewWithWords_CustomSet(t *testing.T) {
	c := NewWithWords([]string{"bonjour", "merci"}, 0.3)

	if !c.IsTarget("bonjour docteur merci") {
		t.Error("expected custom word set to match")
	}
	if c.IsTarget("the patient is stable") {
		t.Error("expected english to miss a french word set")
	}
}

func TestThreshold_Accessor(t *testing.T) {
	c := New(0.25)
	if c.Threshold() != 0.25 {
		t.Errorf("expected threshold 0.25, got %v", c.Threshold())
	}
}
