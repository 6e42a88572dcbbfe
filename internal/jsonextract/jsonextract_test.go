package jsonextract

import (
	"errors"
	"testing"
)

func TestExtractPlainJSON(t *testing.T) {
	got, err := Extract(`{"a": 1, "b": "x"}`)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got["b"] != "x" {
		t.Fatalf("b = %v, want x", got["b"])
	}
}

func TestExtractFenceRoundTrip(t *testing.T) {
	raw := "Sure! Here is the JSON you asked for:\n```json\n{\"course_title\": \"Photosynthesis\", \"units\": []}\n```\nLet me know if you need anything else."
	got, err := Extract(raw)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got["course_title"] != "Photosynthesis" {
		t.Fatalf("course_title = %v", got["course_title"])
	}
}

func TestExtractBareFence(t *testing.T) {
	got, err := Extract("```\n{\"k\": true}\n```")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got["k"] != true {
		t.Fatalf("k = %v", got["k"])
	}
}

func TestExtractProseAroundBraces(t *testing.T) {
	got, err := Extract(`The answer follows. {"score": 92} Hope that helps.`)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got["score"].(float64) != 92 {
		t.Fatalf("score = %v", got["score"])
	}
}

func TestExtractRepairsTrailingCommas(t *testing.T) {
	got, err := Extract(`{"items": [1, 2, 3,], "name": "t",}`)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got["name"] != "t" {
		t.Fatalf("name = %v", got["name"])
	}
	if len(got["items"].([]any)) != 3 {
		t.Fatalf("items = %v", got["items"])
	}
}

func TestExtractEscapesControlBytes(t *testing.T) {
	got, err := Extract("{\"a\": \"x\x01y\"}")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got["a"] != "x\x01y" {
		t.Fatalf("a = %q", got["a"])
	}
}

func TestExtractKeepsPrettyPrintedNewlines(t *testing.T) {
	got, err := Extract("{\n\t\"a\": \"line one\",\n\t\"b\": 2\r\n}")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got["a"] != "line one" || got["b"].(float64) != 2 {
		t.Fatalf("got = %v", got)
	}
}

func TestExtractSlice(t *testing.T) {
	got, err := ExtractSlice("```json\n[{\"id\": 1}, {\"id\": 2}]\n```")
	if err != nil {
		t.Fatalf("ExtractSlice: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d", len(got))
	}
}

func TestExtractMalformed(t *testing.T) {
	_, err := Extract("I could not produce JSON for that request.")
	if err == nil {
		t.Fatal("expected error")
	}
	var mo *MalformedOutputError
	if !errors.As(err, &mo) {
		t.Fatalf("error type = %T", err)
	}
	if mo.Raw == "" || mo.Cleaned == "" {
		t.Fatalf("error should carry raw and cleaned output: %+v", mo)
	}
}
