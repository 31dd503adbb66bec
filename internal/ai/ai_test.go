package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/generative-ai-go/genai"

	"github.com/facturaIA/captcha-ocr-service/internal/ocr"
)

func TestFilter(t *testing.T) {
	tests := []struct {
		reply, whitelist, want string
	}{
		{" 042\n", "0123456789", "042"},
		{"`A1 b2`", "", "A1b2"},
		{"The code is 7391", "0123456789", "7391"},
		{"\"xy\"", "", "xy"},
		{"", "", ""},
	}
	for _, tt := range tests {
		if got := Filter(tt.reply, tt.whitelist); got != tt.want {
			t.Errorf("Filter(%q, %q) = %q, want %q", tt.reply, tt.whitelist, got, tt.want)
		}
	}
}

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sample.png")
	if err := os.WriteFile(path, []byte("\x89PNG\r\n\x1a\nfake"), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestOpenAIVisionBackend(t *testing.T) {
	var gotModel, gotImage string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Content []struct {
					Type     string `json:"type"`
					ImageURL *struct {
						URL string `json:"url"`
					} `json:"image_url"`
				} `json:"content"`
			} `json:"messages"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		gotModel = req.Model
		for _, m := range req.Messages {
			for _, c := range m.Content {
				if c.ImageURL != nil {
					gotImage = c.ImageURL.URL
				}
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":" 4 2 7 "}}]}`))
	}))
	defer srv.Close()

	backend := NewVisionBackend(NewOpenAIProvider("test-key", srv.URL, "gpt-test"), "0123456789")
	text, err := backend.Recognize(context.Background(), writeSample(t))
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	if text != "427" {
		t.Fatalf("expected 427, got %q", text)
	}
	if gotModel != "gpt-test" {
		t.Fatalf("unexpected model %q", gotModel)
	}
	if !strings.HasPrefix(gotImage, "data:image/png;base64,") {
		t.Fatalf("image not sent as data URI: %q", gotImage)
	}
}

func TestOpenAIFailureIsBackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	backend := NewVisionBackend(NewOpenAIProvider("bad", srv.URL, ""), "")
	_, err := backend.Recognize(context.Background(), writeSample(t))
	if !errors.Is(err, ocr.ErrBackendExecution) {
		t.Fatalf("expected backend execution error, got %v", err)
	}
	if backend.Name() != "openai" {
		t.Fatalf("unexpected name %q", backend.Name())
	}
}

func TestGeminiRequiresKey(t *testing.T) {
	if _, err := NewGeminiProvider(context.Background(), "", ""); err == nil {
		t.Fatal("expected error without API key")
	}
}

func TestResponseText(t *testing.T) {
	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Parts: []genai.Part{genai.Text("ab"), genai.Text("12")}},
	}}}
	text, err := responseText(resp)
	if err != nil || text != "ab12" {
		t.Fatalf("responseText() = %q, %v", text, err)
	}
	if _, err := responseText(&genai.GenerateContentResponse{}); err == nil {
		t.Fatal("expected error for empty response")
	}
}

type slowProvider struct{}

func (slowProvider) Name() string { return "slow" }

func (slowProvider) Describe(ctx context.Context, prompt string, image []byte, mimeType string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestVisionTimeoutIsBackendError(t *testing.T) {
	backend := NewVisionBackend(slowProvider{}, "")
	backend.Timeout = 10 * time.Millisecond
	_, err := backend.Recognize(context.Background(), writeSample(t))
	if !errors.Is(err, ocr.ErrBackendExecution) {
		t.Fatalf("expected backend execution error, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = backend.Recognize(ctx, writeSample(t))
	if !errors.Is(err, context.Canceled) || errors.Is(err, ocr.ErrBackendExecution) {
		t.Fatalf("expected plain cancellation, got %v", err)
	}
}
