package summary

import (
	"log/slog"
	"strings"

	"github.com/goccy/go-json"
)

// Extraction limits. A summary payload is a few hundred bytes; the limits
// keep a turn full of stray braces from costing quadratic decode time.
const (
	maxCandidates   = 64
	maxPayloadBytes = 16 << 10
)

const (
	TonePositive = "positive"
	ToneNegative = "negative"
	ToneNeutral  = "neutral"
)

// Result is an end-of-call summary produced by the remote assistant.
type Result struct {
	Points    []string `json:"summary"`
	Sentiment string   `json:"sentiment"`
}

// Tone maps the free-form sentiment label onto one of the three display
// treatments. Anything that is not positive or negative is neutral.
func (r Result) Tone() string {
	switch strings.ToLower(strings.TrimSpace(r.Sentiment)) {
	case TonePositive:
		return TonePositive
	case ToneNegative:
		return ToneNegative
	default:
		return ToneNeutral
	}
}

type payload struct {
	Summary   *[]string `json:"summary"`
	Sentiment *string   `json:"sentiment"`
}

// Extract looks for the first embedded {"summary": [...], "sentiment": "..."}
// object in text. Each '{' is tried as the start of a candidate in order, up
// to maxCandidates of them, and a candidate must fit in maxPayloadBytes.
// Candidates that fail to decode or lack either field are skipped. It never
// returns an error: malformed payloads are logged and ignored.
func Extract(text string) (Result, bool) {
	tried := 0
	for i := 0; i < len(text); i++ {
		next := strings.IndexByte(text[i:], '{')
		if next < 0 {
			break
		}
		i += next

		if tried == maxCandidates {
			slog.Debug("summary: candidate limit reached", "offset", i)
			break
		}
		tried++

		end := min(len(text), i+maxPayloadBytes)
		res, err := decodeAt(text[i:end])
		if err != nil {
			slog.Debug("summary: skipping candidate payload", "offset", i, "error", err)
			continue
		}
		return res, true
	}
	return Result{}, false
}

// Recover is the last-chance scan run when a call ends without a parsed
// summary. texts are assistant turns in display order. The newest turn is
// tried first; if no single turn carries a payload, the turns are joined to
// catch a payload that was streamed across several messages.
func Recover(texts []string) (Result, bool) {
	for i := len(texts) - 1; i >= 0; i-- {
		if res, ok := Extract(texts[i]); ok {
			return res, true
		}
	}
	if len(texts) < 2 {
		return Result{}, false
	}
	return Extract(strings.Join(texts, ""))
}

func decodeAt(candidate string) (Result, error) {
	var p payload
	dec := json.NewDecoder(strings.NewReader(candidate))
	if err := dec.Decode(&p); err != nil {
		return Result{}, err
	}
	if p.Summary == nil {
		return Result{}, errMissingSummary
	}
	if p.Sentiment == nil || strings.TrimSpace(*p.Sentiment) == "" {
		return Result{}, errMissingSentiment
	}

	points := make([]string, 0, len(*p.Summary))
	for _, point := range *p.Summary {
		if trimmed := strings.TrimSpace(point); trimmed != "" {
			points = append(points, trimmed)
		}
	}
	return Result{Points: points, Sentiment: strings.TrimSpace(*p.Sentiment)}, nil
}
