package message

import "testing"

func TestFailedCarriesErrorNumberAndText(t *testing.T) {
	m := Failed(ClassSceneOutput, "backend", "frontend", 42, "boom")
	if m.Ident != IdentFailed {
		t.Errorf("Ident = %v, want Failed", m.Ident)
	}
	if m.Attributes["ErrorNumber"] != 42 {
		t.Errorf("ErrorNumber = %v, want 42", m.Attributes["ErrorNumber"])
	}
	if m.Attributes["EnglishText"] != "boom" {
		t.Errorf("EnglishText = %v, want boom", m.Attributes["EnglishText"])
	}
}

func TestDoneCarriesResultAttributes(t *testing.T) {
	m := Done(ClassViewControl, "backend", "frontend", map[string]any{"ViewId": "v1"})
	if m.Ident != IdentDone {
		t.Errorf("Ident = %v, want Done", m.Ident)
	}
	if m.Attributes["ViewId"] != "v1" {
		t.Errorf("ViewId = %v, want v1", m.Attributes["ViewId"])
	}
}
