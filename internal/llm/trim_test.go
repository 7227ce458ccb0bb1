package llm

import "testing"

func TestTrimForSpeech_StripsMarkdown(t *testing.T) {
	got := TrimForSpeech("**大事な点**は、`コード`と_強調_です。")
	want := "大事な点は、コードと強調です。"
	if got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestTrimForSpeech_CollapsesWhitespace(t *testing.T) {
	got := TrimForSpeech("はい。\n\nそうです。\t 以上です。")
	want := "はい。 そうです。 以上です。"
	if got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestTrimForSpeech_CapsSentences(t *testing.T) {
	got := TrimForSpeech("一。二。三。四。五。")
	want := "一。二。三。"
	if got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestTrimForSpeech_MixedTerminators(t *testing.T) {
	got := TrimForSpeech("そうですね！本当に？はい。もう一つ。")
	want := "そうですね！本当に？はい。"
	if got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestTrimForSpeech_NoTerminator(t *testing.T) {
	got := TrimForSpeech("終端記号のない返答")
	if got != "終端記号のない返答" {
		t.Errorf("Expected input unchanged, got %q", got)
	}
}

func TestTrimForSpeech_Empty(t *testing.T) {
	if got := TrimForSpeech(""); got != "" {
		t.Errorf("Expected empty output, got %q", got)
	}
	if got := TrimForSpeech("  \n\t "); got != "" {
		t.Errorf("Expected empty output for whitespace, got %q", got)
	}
}
