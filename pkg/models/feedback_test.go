package models

import "testing"

func TestFeedback_CanonicalText(t *testing.T) {
	f := Feedback{
		Observation: Observation{Name: "user_request", Content: "book a table for two"},
		Action:      ActionRecord{Name: "send_message_to_user", Content: "Sure, what time?"},
	}

	want := "user_request: book a table for two\nsend_message_to_user: Sure, what time?"
	if got := f.CanonicalText(); got != want {
		t.Errorf("CanonicalText() = %q, want %q", got, want)
	}
}

func TestFeedback_DeriveTags(t *testing.T) {
	f := Feedback{
		Observation: Observation{Name: "user_request"},
		StateName:   "booking",
	}
	tags := f.DeriveTags()
	if len(tags) != 2 || tags[0] != "observation_name:user_request" || tags[1] != "state_name:booking" {
		t.Errorf("DeriveTags() = %v", tags)
	}
}

func TestFeedback_DeriveTags_NoStateName(t *testing.T) {
	f := Feedback{Observation: Observation{Name: "user_request"}}
	tags := f.DeriveTags()
	if len(tags) != 1 || tags[0] != "observation_name:user_request" {
		t.Errorf("DeriveTags() = %v", tags)
	}
}
