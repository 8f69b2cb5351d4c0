package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestClickSendAdapterSendSuccess(t *testing.T) {
	t.Parallel()

	var got clickSendRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v3/sms/send" {
			t.Errorf("path = %s, want /v3/sms/send", r.URL.Path)
		}
		user, key, ok := r.BasicAuth()
		if !ok || user != "acme" || key != "secret" {
			t.Errorf("basic auth = (%q, %q, %v)", user, key, ok)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"response_code":"SUCCESS","data":{"messages":[{"message_id":"cs-1","status":"SUCCESS"}]}}`))
	}))
	defer server.Close()

	a, err := NewClickSendAdapter("clicksend", ClickSendConfig{
		BaseURL:  server.URL,
		Username: "acme",
		APIKey:   "secret",
		SenderID: "SMS",
	}, nil)
	if err != nil {
		t.Fatalf("NewClickSendAdapter() error = %v", err)
	}

	resp, err := a.Send(context.Background(), "+15551234567", "hi there")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if resp.MessageID != "cs-1" {
		t.Fatalf("MessageID = %q, want cs-1", resp.MessageID)
	}
	if len(got.Messages) != 1 || got.Messages[0].To != "+15551234567" || got.Messages[0].Body != "hi there" || got.Messages[0].From != "SMS" {
		t.Fatalf("request = %+v", got)
	}
}

func TestClickSendAdapterSendFailures(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		statusCode int
		body       string
		wantMsg    string
	}{
		{
			name:       "unauthorized",
			statusCode: http.StatusUnauthorized,
			body:       `{"response_code":"UNAUTHORIZED","response_msg":"Invalid credentials"}`,
			wantMsg:    "Invalid credentials",
		},
		{
			name:       "message status not success",
			statusCode: http.StatusOK,
			body:       `{"response_code":"SUCCESS","data":{"messages":[{"message_id":"x","status":"INVALID_RECIPIENT"}]}}`,
			wantMsg:    "INVALID_RECIPIENT",
		},
		{
			name:       "no messages",
			statusCode: http.StatusOK,
			body:       `{"response_code":"SUCCESS","response_msg":"nothing queued","data":{"messages":[]}}`,
			wantMsg:    "nothing queued",
		},
		{
			name:       "garbage body",
			statusCode: http.StatusOK,
			body:       `<html>`,
			wantMsg:    "decode",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.statusCode)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			a, err := NewClickSendAdapter("clicksend", ClickSendConfig{BaseURL: server.URL, Username: "u", APIKey: "k"}, nil)
			if err != nil {
				t.Fatalf("NewClickSendAdapter() error = %v", err)
			}

			_, err = a.Send(context.Background(), "+15551234567", "hi")
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.wantMsg) {
				t.Fatalf("error = %q, want to contain %q", err.Error(), tc.wantMsg)
			}
		})
	}
}

func TestNewClickSendAdapterRequiresCredentials(t *testing.T) {
	t.Parallel()

	if _, err := NewClickSendAdapter("clicksend", ClickSendConfig{Username: "u"}, nil); err == nil {
		t.Fatal("expected error without api key")
	}
}
