package autoresponder

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/unibox/internal/config"
	"github.com/nextlevelbuilder/unibox/internal/store"
)

func TestHTTPResponderGreeting(t *testing.T) {
	convID := uuid.Must(uuid.NewV7())
	var gotPath, gotAuth string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	r := NewHTTPResponder(config.AutoresponderConfig{Endpoint: srv.URL, Token: "rt"})
	if err := r.SendGreeting(context.Background(), convID, store.PlatformFacebook); err != nil {
		t.Fatalf("SendGreeting: %v", err)
	}

	if gotPath != "/v1/replies/greeting" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer rt" {
		t.Errorf("auth = %q", gotAuth)
	}
	if gotBody["conversation_id"] != convID.String() || gotBody["platform"] != "facebook" {
		t.Errorf("body = %v", gotBody)
	}
}

func TestHTTPResponderGenerateDecodesResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/replies/generate" {
			t.Errorf("path = %q", r.URL.Path)
		}
		fmt.Fprint(w, `{"reply_text":"We ship worldwide!"}`)
	}))
	defer srv.Close()

	r := NewHTTPResponder(config.AutoresponderConfig{Endpoint: srv.URL})
	res, err := r.GenerateAndSend(context.Background(), uuid.Must(uuid.NewV7()), "do you ship overseas?", store.PlatformFacebook)
	if err != nil {
		t.Fatalf("GenerateAndSend: %v", err)
	}
	if res.ReplyText != "We ship worldwide!" {
		t.Errorf("reply = %q", res.ReplyText)
	}
}

func TestHTTPResponderNon2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "reply engine overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	r := NewHTTPResponder(config.AutoresponderConfig{Endpoint: srv.URL})
	if _, err := r.GenerateAndSend(context.Background(), uuid.Must(uuid.NewV7()), "hi", store.PlatformFacebook); err == nil {
		t.Fatal("expected error on 503")
	}
}

func TestDisabledResponderIsNoOp(t *testing.T) {
	var d Disabled
	if err := d.SendGreeting(context.Background(), uuid.Must(uuid.NewV7()), store.PlatformInstagram); err != nil {
		t.Fatal(err)
	}
	res, err := d.GenerateAndSend(context.Background(), uuid.Must(uuid.NewV7()), "hi", store.PlatformInstagram)
	if err != nil {
		t.Fatal(err)
	}
	if res == nil {
		t.Fatal("nil result")
	}
}
