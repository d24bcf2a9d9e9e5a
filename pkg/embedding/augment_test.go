package embedding

import (
	"strings"
	"testing"
)

func TestAugmentEpisodic_RequiredMarkersOnly(t *testing.T) {
	got := augmentEpisodic("went to the park", TemporalContext{Time: "2026-07-30T10:00:00Z", SessionID: "s1"})
	want := "[TIME:2026-07-30T10:00:00Z] [SESSION:s1] went to the park"
	if got != want {
		t.Errorf("got %q want %q", got, want)
	}
}

func TestAugmentEpisodic_OptionalMarkersInOrder(t *testing.T) {
	seq, dur := 3, 120
	got := augmentEpisodic("text", TemporalContext{
		Time: "t", SessionID: "s",
		Sequence: &seq, DurationSecs: &dur,
		Location: "office", Participants: []string{"a", "b"},
	})
	want := "[TIME:t] [SESSION:s] [SEQUENCE:3] [DURATION:120s] [LOCATION:office] [PARTICIPANTS:a,b] text"
	if got != want {
		t.Errorf("got %q want %q", got, want)
	}
}

func TestAugmentSemantic_NoTransformation(t *testing.T) {
	if got := augmentSemantic("raw text"); got != "raw text" {
		t.Errorf("expected unchanged text, got %q", got)
	}
}

func TestAugmentProcedural(t *testing.T) {
	got := augmentProcedural("boil water")
	if !strings.HasPrefix(got, "[PROCEDURE] [STEPS] [HOW-TO] ") || !strings.HasSuffix(got, "boil water") {
		t.Errorf("unexpected procedural augmentation: %q", got)
	}
}

func TestAugmentEmotional_LabelThresholds(t *testing.T) {
	cases := []struct {
		state EmotionState
		want  string
	}{
		{EmotionState{Valence: 0.5, Arousal: 0.8, Dominance: 0.1}, "[VALENCE:POSITIVE] [AROUSAL:HIGH] [DOMINANCE:DOMINANT] text"},
		{EmotionState{Valence: -0.5, Arousal: 0.5, Dominance: -0.1}, "[VALENCE:NEGATIVE] [AROUSAL:MEDIUM] [DOMINANCE:SUBMISSIVE] text"},
		{EmotionState{Valence: 0, Arousal: 0.1, Dominance: 0}, "[VALENCE:NEUTRAL] [AROUSAL:LOW] [DOMINANCE:NEUTRAL] text"},
	}
	for _, tc := range cases {
		if got := augmentEmotional("text", tc.state); got != tc.want {
			t.Errorf("augmentEmotional(%+v) = %q, want %q", tc.state, got, tc.want)
		}
	}
}

func TestAugmentEmotional_OptionalEmotionUppercased(t *testing.T) {
	got := augmentEmotional("text", EmotionState{Emotion: "joy"})
	want := "[VALENCE:NEUTRAL] [AROUSAL:LOW] [DOMINANCE:NEUTRAL] [EMOTION:JOY] text"
	if got != want {
		t.Errorf("got %q want %q", got, want)
	}
}

func TestAugmentReflective_OmitsEmptyInsights(t *testing.T) {
	got := augmentReflective("text", ReflectiveContext{})
	want := "[REFLECTION] [META-COGNITION] text"
	if got != want {
		t.Errorf("got %q want %q", got, want)
	}
}

func TestAugmentReflective_InsightsSemicolonSeparated(t *testing.T) {
	got := augmentReflective("text", ReflectiveContext{Insights: []string{"a", "b", "c"}})
	want := "[REFLECTION] [META-COGNITION] [INSIGHTS:a;b;c] text"
	if got != want {
		t.Errorf("got %q want %q", got, want)
	}
}
