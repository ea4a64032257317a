package summary

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestExtractEmbeddedPayload(t *testing.T) {
	text := `Thanks for the chat! {"summary":["a","b"],"sentiment":"Positive"} Bye.`

	res, ok := Extract(text)
	if !ok {
		t.Fatal("expected payload to be extracted")
	}
	if !reflect.DeepEqual(res.Points, []string{"a", "b"}) {
		t.Fatalf("unexpected points: %#v", res.Points)
	}
	if res.Sentiment != "Positive" {
		t.Fatalf("expected sentiment Positive, got %q", res.Sentiment)
	}
}

func TestExtractMissingSentiment(t *testing.T) {
	if _, ok := Extract(`{"summary":["a"]}`); ok {
		t.Fatal("expected missing sentiment to yield no result")
	}
}

func TestExtractMissingSummary(t *testing.T) {
	if _, ok := Extract(`{"sentiment":"Neutral"}`); ok {
		t.Fatal("expected missing summary to yield no result")
	}
}

func TestExtractNoJSON(t *testing.T) {
	if _, ok := Extract("no json here"); ok {
		t.Fatal("expected plain text to yield no result")
	}
}

func TestExtractSkipsUnrelatedBraces(t *testing.T) {
	text := `Use {curly braces} for sets. Also {"unrelated": true}. ` +
		`{"summary":["sets use braces"],"sentiment":"Neutral"}`

	res, ok := Extract(text)
	if !ok {
		t.Fatal("expected payload after unrelated braces to be found")
	}
	if len(res.Points) != 1 || res.Points[0] != "sets use braces" {
		t.Fatalf("unexpected points: %#v", res.Points)
	}
}

func TestExtractNestedPayload(t *testing.T) {
	text := `{"result": {"summary":["x"],"sentiment":"Negative"}}`

	res, ok := Extract(text)
	if !ok {
		t.Fatal("expected nested payload to be found")
	}
	if res.Sentiment != "Negative" {
		t.Fatalf("expected Negative, got %q", res.Sentiment)
	}
}

func TestExtractRejectsWrongTypes(t *testing.T) {
	cases := []string{
		`{"summary":"just a string","sentiment":"Positive"}`,
		`{"summary":["a"],"sentiment":42}`,
		`{"summary":["a"],"sentiment":"   "}`,
		`{"summary":null,"sentiment":"Positive"}`,
		`{"summary":["a"],"sentiment":"Positive"`,
	}
	for _, c := range cases {
		if res, ok := Extract(c); ok {
			t.Errorf("expected %q to be rejected, got %#v", c, res)
		}
	}
}

func TestExtractDropsBlankPoints(t *testing.T) {
	res, ok := Extract(`{"summary":[" first ",""," "],"sentiment":" positive "}`)
	if !ok {
		t.Fatal("expected payload")
	}
	if !reflect.DeepEqual(res.Points, []string{"first"}) {
		t.Fatalf("unexpected points: %#v", res.Points)
	}
	if res.Sentiment != "positive" {
		t.Fatalf("expected trimmed sentiment, got %q", res.Sentiment)
	}
}

func TestTone(t *testing.T) {
	cases := map[string]string{
		"Positive": TonePositive,
		"POSITIVE": TonePositive,
		"negative": ToneNegative,
		"Neutral":  ToneNeutral,
		"mixed":    ToneNeutral,
		"":         ToneNeutral,
	}
	for sentiment, want := range cases {
		if got := (Result{Sentiment: sentiment}).Tone(); got != want {
			t.Errorf("Tone(%q) = %q, want %q", sentiment, got, want)
		}
	}
}

func TestRecoverPrefersNewestTurn(t *testing.T) {
	texts := []string{
		`{"summary":["old"],"sentiment":"Negative"}`,
		"small talk",
		`{"summary":["new"],"sentiment":"Positive"}`,
	}

	res, ok := Recover(texts)
	if !ok {
		t.Fatal("expected recovery to succeed")
	}
	if res.Points[0] != "new" {
		t.Fatalf("expected newest payload, got %#v", res.Points)
	}
}

func TestRecoverJoinsSplitPayload(t *testing.T) {
	texts := []string{
		"Here is your recap:",
		`{"summary":["split`,
		` across"],"sentiment":"Neutral"}`,
	}

	res, ok := Recover(texts)
	if !ok {
		t.Fatal("expected split payload to be recovered")
	}
	if res.Points[0] != "split across" {
		t.Fatalf("unexpected points: %#v", res.Points)
	}
}

func TestRecoverNothing(t *testing.T) {
	if _, ok := Recover(nil); ok {
		t.Fatal("expected no result for empty input")
	}
	if _, ok := Recover([]string{"Hi! I'm your learning coach."}); ok {
		t.Fatal("expected no result for plain opening utterance")
	}
}

func TestExtractBoundsCandidates(t *testing.T) {
	// Unclosed nesting makes every candidate run to the end of its window.
	junk := strings.Repeat(`{"s":[`, 50000)

	start := time.Now()
	if _, ok := Extract(junk); ok {
		t.Fatal("expected no payload in unclosed junk")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("expected bounded extraction time, took %s", elapsed)
	}

	payload := `{"summary":["late"],"sentiment":"Neutral"}`
	if _, ok := Extract(strings.Repeat("{} ", maxCandidates) + payload); ok {
		t.Fatal("expected payload past the candidate limit to be ignored")
	}
	res, ok := Extract(strings.Repeat("{} ", maxCandidates-1) + payload)
	if !ok || res.Points[0] != "late" {
		t.Fatalf("expected payload at the candidate limit to be found, got %+v ok=%v", res, ok)
	}
}

func TestExtractRejectsOversizedPayload(t *testing.T) {
	long := strings.Repeat("x", maxPayloadBytes)
	text := `{"summary":["` + long + `"],"sentiment":"Positive"}`
	if _, ok := Extract(text); ok {
		t.Fatal("expected payload larger than the decode window to be ignored")
	}
}

func TestExtractEmptySentimentRejected(t *testing.T) {
	if _, ok := Extract(`{"summary":["a"],"sentiment":"  "}`); ok {
		t.Fatal("expected blank sentiment to yield no result")
	}
}
