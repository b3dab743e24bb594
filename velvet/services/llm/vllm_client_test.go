package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"velvet/velvet/utils/logging"
)

func newClient(url string) *VLLMClient {
	logging.Nop()
	return NewVLLMClient(url, "velvet-14b", 5*time.Second, LoadPrompts(""), DefaultOptions())
}

func TestGenerateSendsChatCompletion(t *testing.T) {
	var got ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  Inflation was 2.1%.  "}}]}`))
	}))
	defer srv.Close()

	out, err := newClient(srv.URL).Generate(context.Background(), GenerateRequest{
		Message: "What was inflation?",
		History: []Message{{Role: "user", Content: "Hello"}, {Role: "assistant", Content: "Hi there"}},
		Context: "CPI rose 2.1% in January.",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "Inflation was 2.1%." {
		t.Errorf("unexpected output %q", out)
	}

	if got.Model != "velvet-14b" || got.Stream {
		t.Errorf("unexpected request %+v", got)
	}
	// system, context, two history turns, current message
	if len(got.Messages) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(got.Messages))
	}
	if !strings.Contains(got.Messages[1].Content, "CPI rose 2.1%") {
		t.Errorf("context not injected: %q", got.Messages[1].Content)
	}
	if last := got.Messages[4]; last.Role != "user" || last.Content != "What was inflation?" {
		t.Errorf("unexpected last message %+v", last)
	}
}

func TestGenerateUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "loading", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	if _, err := newClient(srv.URL).Generate(context.Background(), GenerateRequest{Message: "hi"}); err == nil {
		t.Fatal("expected error on 503")
	}
}

func TestGenerateStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, piece := range []string{"Hel", "lo", ""} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", piece)
		}
		fmt.Fprint(w, ": keep-alive\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	ch, err := newClient(srv.URL).GenerateStream(context.Background(), GenerateRequest{Message: "hi"})
	if err != nil {
		t.Fatalf("GenerateStream: %v", err)
	}
	var sb strings.Builder
	for c := range ch {
		if c.Err != nil {
			t.Fatalf("unexpected stream error: %v", c.Err)
		}
		sb.WriteString(c.Text)
	}
	if sb.String() != "Hello" {
		t.Errorf("expected Hello, got %q", sb.String())
	}
}

func TestGenerateStreamCutOff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hal\"}}]}\n\n")
	}))
	defer srv.Close()

	ch, err := newClient(srv.URL).GenerateStream(context.Background(), GenerateRequest{Message: "hi"})
	if err != nil {
		t.Fatalf("GenerateStream: %v", err)
	}
	var chunks []Chunk
	for c := range ch {
		chunks = append(chunks, c)
	}
	if len(chunks) != 2 || chunks[0].Text != "Hal" {
		t.Fatalf("unexpected chunks: %+v", chunks)
	}
	if !errors.Is(chunks[1].Err, io.ErrUnexpectedEOF) {
		t.Errorf("expected ErrUnexpectedEOF on the last chunk, got %v", chunks[1].Err)
	}
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	if got := newClient(srv.URL).Health(context.Background()); got != "healthy" {
		t.Errorf("expected healthy, got %s", got)
	}
	srv.Close()
	if got := newClient(srv.URL).Health(context.Background()); got != "unhealthy" {
		t.Errorf("expected unhealthy after shutdown, got %s", got)
	}
}

func TestLoadPromptsFromProperties(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.properties")
	body := "system_prompt = Be brief.\ncontext_template = CTX: ${context}\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	p := LoadPrompts(path)
	if p.SystemPrompt != "Be brief." {
		t.Errorf("unexpected system prompt %q", p.SystemPrompt)
	}
	msgs := p.BuildMessages(GenerateRequest{Message: "q", Context: "abc"})
	if msgs[1].Content != "CTX: abc" {
		t.Errorf("unexpected context message %q", msgs[1].Content)
	}
}

func TestLoadPromptsMissingFileFallsBack(t *testing.T) {
	logging.Nop()
	p := LoadPrompts(filepath.Join(t.TempDir(), "missing.properties"))
	if p.SystemPrompt != defaultSystemPrompt {
		t.Errorf("expected default prompt")
	}
	if n := len(p.BuildMessages(GenerateRequest{Message: "q"})); n != 2 {
		t.Errorf("expected system+user only, got %d", n)
	}
}
