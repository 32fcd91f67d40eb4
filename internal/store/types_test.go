package store

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestConversationMetaIsZero(t *testing.T) {
	if !(ConversationMeta{}).IsZero() {
		t.Error("empty meta not zero")
	}
	cases := []ConversationMeta{
		{PostID: "P1"},
		{Caption: "hello"},
		{Permalink: "https://example.com"},
		{ImageURLs: []string{"https://cdn.example/1.jpg"}},
		{Raw: json.RawMessage(`{"x":1}`)},
	}
	for i, m := range cases {
		if m.IsZero() {
			t.Errorf("case %d reported zero: %+v", i, m)
		}
	}
}

func TestBindingTokenNeverSerialized(t *testing.T) {
	data, err := json.Marshal(Binding{AccessToken: "EAAB-secret"})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "EAAB-secret") {
		t.Errorf("access token leaked into JSON: %s", data)
	}
}
