package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xpzouying/starpath/pkg/apperr"
)

func TestValidateWebhookURL(t *testing.T) {
	tests := []struct {
		url     string
		wantErr bool
	}{
		{"https://example.com/hook", false},
		{"http://127.0.0.1:8080/cb", false},
		{"", true},
		{"ftp://example.com/hook", true},
		{"http://", true},
		{"://bad", true},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			err := ValidateWebhookURL(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestWebhookSender_Send(t *testing.T) {
	var gotUA, gotCT string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotCT = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := NewWebhookSender().Send(context.Background(), srv.URL, NewCompletedPayload("https://example.com/v.mp4", &GenerateResponse{RunID: "r"}))
	require.NoError(t, err)
	assert.Equal(t, "starpath-webhook/1.0", gotUA)
	assert.Equal(t, "application/json", gotCT)
}

func TestWebhookSender_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := NewWebhookSender().Send(context.Background(), srv.URL, WebhookPayload{Event: EventGenerateCompleted})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestNewFailedPayload(t *testing.T) {
	p := NewFailedPayload("https://www.loom.com/share/x", apperr.New(apperr.KindTimeout, "limit"), "too long")
	assert.Equal(t, EventGenerateFailed, p.Event)
	assert.Equal(t, &WebhookError{Kind: "timeout", Message: "too long"}, p.Error)

	p = NewFailedPayload("u", errors.New("plain"), "plain")
	assert.Equal(t, "unknown", p.Error.Kind)
}
