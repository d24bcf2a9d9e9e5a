package embedding

import (
	"fmt"
	"strings"
)

// Sector is one of the five fixed semantic projections every memory is
// embedded into (spec.md §4.2).
type Sector string

const (
	SectorEpisodic   Sector = "episodic"
	SectorSemantic   Sector = "semantic"
	SectorProcedural Sector = "procedural"
	SectorEmotional  Sector = "emotional"
	SectorReflective Sector = "reflective"
)

// Sectors lists all five in a fixed, stable order — used anywhere the
// engine needs to iterate "all sectors" deterministically (generate_all,
// batch partitioning, SectorEmbeddings slot ordering).
var Sectors = [5]Sector{SectorEpisodic, SectorSemantic, SectorProcedural, SectorEmotional, SectorReflective}

// TemporalContext augments the episodic sector.
type TemporalContext struct {
	Time         string // ISO-8601 timestamp, required
	SessionID    string // required
	Sequence     *int
	DurationSecs *int
	Location     string
	Participants []string
}

// EmotionState augments the emotional sector. Valence/arousal/dominance
// are the raw continuous signals; label derivation follows spec.md §4.2's
// thresholds exactly.
type EmotionState struct {
	Valence   float64
	Arousal   float64
	Dominance float64
	Emotion   string // optional named primary emotion
}

// ReflectiveContext augments the reflective sector.
type ReflectiveContext struct {
	Insights []string // optional
}

// augmentEpisodic prepends [TIME:...] [SESSION:...] followed by any
// optional markers present, in the order spec.md §4.2 names them.
func augmentEpisodic(text string, ctx TemporalContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[TIME:%s] [SESSION:%s]", ctx.Time, ctx.SessionID)
	if ctx.Sequence != nil {
		fmt.Fprintf(&b, " [SEQUENCE:%d]", *ctx.Sequence)
	}
	if ctx.DurationSecs != nil {
		fmt.Fprintf(&b, " [DURATION:%ds]", *ctx.DurationSecs)
	}
	if ctx.Location != "" {
		fmt.Fprintf(&b, " [LOCATION:%s]", ctx.Location)
	}
	if len(ctx.Participants) > 0 {
		fmt.Fprintf(&b, " [PARTICIPANTS:%s]", strings.Join(ctx.Participants, ","))
	}
	b.WriteString(" ")
	b.WriteString(text)
	return b.String()
}

// augmentSemantic performs no transformation — the semantic sector embeds
// raw text unchanged.
func augmentSemantic(text string) string {
	return text
}

func augmentProcedural(text string) string {
	return "[PROCEDURE] [STEPS] [HOW-TO] " + text
}

func valenceLabel(v float64) string {
	switch {
	case v > 0:
		return "POSITIVE"
	case v < 0:
		return "NEGATIVE"
	default:
		return "NEUTRAL"
	}
}

func arousalLabel(a float64) string {
	switch {
	case a > 0.7:
		return "HIGH"
	case a > 0.3:
		return "MEDIUM"
	default:
		return "LOW"
	}
}

func dominanceLabel(d float64) string {
	switch {
	case d > 0:
		return "DOMINANT"
	case d < 0:
		return "SUBMISSIVE"
	default:
		return "NEUTRAL"
	}
}

func augmentEmotional(text string, state EmotionState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[VALENCE:%s] [AROUSAL:%s] [DOMINANCE:%s]",
		valenceLabel(state.Valence), arousalLabel(state.Arousal), dominanceLabel(state.Dominance))
	if state.Emotion != "" {
		fmt.Fprintf(&b, " [EMOTION:%s]", strings.ToUpper(state.Emotion))
	}
	b.WriteString(" ")
	b.WriteString(text)
	return b.String()
}

func augmentReflective(text string, ctx ReflectiveContext) string {
	var b strings.Builder
	b.WriteString("[REFLECTION] [META-COGNITION]")
	if len(ctx.Insights) > 0 {
		fmt.Fprintf(&b, " [INSIGHTS:%s]", strings.Join(ctx.Insights, ";"))
	}
	b.WriteString(" ")
	b.WriteString(text)
	return b.String()
}

// temporalDigestParams (like emotionDigestParams and reflectiveDigestParams
// below) flattens a context value into the kind of stable-ordered map
// cache.Digest expects, so two calls with equivalent context built in
// different field-assignment orders hash identically.
func temporalDigestParams(ctx TemporalContext) map[string]any {
	m := map[string]any{"time": ctx.Time, "session_id": ctx.SessionID}
	if ctx.Sequence != nil {
		m["sequence"] = *ctx.Sequence
	}
	if ctx.DurationSecs != nil {
		m["duration_secs"] = *ctx.DurationSecs
	}
	if ctx.Location != "" {
		m["location"] = ctx.Location
	}
	if len(ctx.Participants) > 0 {
		m["participants"] = ctx.Participants
	}
	return m
}

func emotionDigestParams(state EmotionState) map[string]any {
	m := map[string]any{
		"valence":   state.Valence,
		"arousal":   state.Arousal,
		"dominance": state.Dominance,
	}
	if state.Emotion != "" {
		m["emotion"] = state.Emotion
	}
	return m
}

func reflectiveDigestParams(ctx ReflectiveContext) map[string]any {
	m := map[string]any{}
	if len(ctx.Insights) > 0 {
		m["insights"] = ctx.Insights
	}
	return m
}
