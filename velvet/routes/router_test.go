package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"velvet/velvet/config"
	"velvet/velvet/controllers"
	"velvet/velvet/services/bcrp"
	"velvet/velvet/services/files"
	"velvet/velvet/services/llm"
	"velvet/velvet/services/rag"
	"velvet/velvet/sources/psql/psqltest"
	"velvet/velvet/utils/types"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

type echoGenerator struct{}

func (echoGenerator) Generate(ctx context.Context, req llm.GenerateRequest) (string, error) {
	return "echo: " + req.Message, nil
}

func (echoGenerator) GenerateStream(ctx context.Context, req llm.GenerateRequest) (<-chan llm.Chunk, error) {
	ch := make(chan llm.Chunk, 2)
	ch <- llm.Chunk{Text: "echo: "}
	ch <- llm.Chunk{Text: req.Message}
	close(ch)
	return ch, nil
}

type memStore struct{ objects map[string][]byte }

func (m *memStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	b, err := io.ReadAll(r)
	m.objects[key] = b
	return err
}

func (m *memStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(m.objects[key])), nil
}

func (m *memStore) Delete(ctx context.Context, key string) error {
	delete(m.objects, key)
	return nil
}

// heldGenerator blocks each generation until release is closed or its
// context ends.
type heldGenerator struct {
	echoGenerator
	started chan struct{}
	release chan struct{}
}

func (g heldGenerator) Generate(ctx context.Context, req llm.GenerateRequest) (string, error) {
	close(g.started)
	select {
	case <-g.release:
		return "late: " + req.Message, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func newTestServer(t *testing.T) *httptest.Server {
	return newTestServerWith(t, echoGenerator{})
}

func newTestServerWith(t *testing.T, gen llm.Generator) *httptest.Server {
	t.Helper()
	db := psqltest.NewTestDB(t)

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(upstream.Close)

	ragSvc := rag.NewService(db)
	stats := bcrp.NewClient(upstream.URL, bcrp.HealthSeries, nil, time.Minute)
	auth := controllers.NewAuthController(db, config.Config{JWTSecret: "route-secret", JWTExpiryHours: 1})

	handler := NewRouter(Deps{
		Auth:           auth,
		Chat:           controllers.NewChatController(db, gen, ragSvc, stats, 10),
		Health:         controllers.NewHealthController(map[string]controllers.HealthChecker{"rag": ragSvc}),
		Files:          files.NewProcessor(db, &memStore{objects: map[string][]byte{}}, ragSvc, 1<<10),
		BCRP:           stats,
		Origins:        []string{"http://localhost:3000"},
		RequestTimeout: 5 * time.Second,
		Version:        "test",
	})
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, token string, body any) (*http.Response, []byte) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rdr = bytes.NewReader(b)
	}
	req, _ := http.NewRequest(method, url, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	return resp, out
}

func register(t *testing.T, srv *httptest.Server, email string) string {
	t.Helper()
	resp, body := do(t, http.MethodPost, srv.URL+"/auth/register", "",
		types.RegisterRequest{Email: email, Password: "secret1", Name: "Tester"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("register: %d %s", resp.StatusCode, body)
	}
	var tok types.TokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		t.Fatal(err)
	}
	if tok.TokenType != "bearer" || tok.UserID == nil {
		t.Fatalf("unexpected token response %s", body)
	}
	return tok.AccessToken
}

func TestChatLifecycle(t *testing.T) {
	srv := newTestServer(t)
	token := register(t, srv, "ana@example.com")

	resp, body := do(t, http.MethodPost, srv.URL+"/chats", token, types.CreateChatRequest{Title: "Demo"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: %d %s", resp.StatusCode, body)
	}
	var chat types.Chat
	json.Unmarshal(body, &chat)

	resp, body = do(t, http.MethodPost, srv.URL+"/chats/"+chat.ID.String()+"/messages", token,
		types.SendMessageRequest{Content: "Hello"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("send: %d %s", resp.StatusCode, body)
	}
	var turn types.TurnResult
	json.Unmarshal(body, &turn)
	if turn.AssistantMessage.Content != "echo: Hello" {
		t.Errorf("unexpected reply %q", turn.AssistantMessage.Content)
	}

	resp, body = do(t, http.MethodGet, srv.URL+"/chats/"+chat.ID.String(), token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get: %d %s", resp.StatusCode, body)
	}
	var full types.ChatWithMessages
	json.Unmarshal(body, &full)
	if len(full.Messages) != 2 || full.Messages[0].Role != types.RoleUser || full.Messages[1].Role != types.RoleAssistant {
		t.Errorf("unexpected messages %+v", full.Messages)
	}

	resp, body = do(t, http.MethodGet, srv.URL+"/chats", token, nil)
	var list []types.ChatSummary
	json.Unmarshal(body, &list)
	if resp.StatusCode != http.StatusOK || len(list) != 1 || list[0].MessageCount != 2 {
		t.Errorf("unexpected list %d %s", resp.StatusCode, body)
	}

	resp, body = do(t, http.MethodPatch, srv.URL+"/chats/"+chat.ID.String(), token, types.RenameChatRequest{Title: "Renamed"})
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "Renamed") {
		t.Errorf("rename: %d %s", resp.StatusCode, body)
	}

	resp, _ = do(t, http.MethodDelete, srv.URL+"/chats/"+chat.ID.String(), token, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete: %d", resp.StatusCode)
	}
	resp, body = do(t, http.MethodGet, srv.URL+"/chats/"+chat.ID.String(), token, nil)
	if resp.StatusCode != http.StatusNotFound || !strings.Contains(string(body), `"error"`) {
		t.Errorf("deleted chat: %d %s", resp.StatusCode, body)
	}
}

func TestSendMessageSurvivesClientDisconnect(t *testing.T) {
	gen := heldGenerator{started: make(chan struct{}), release: make(chan struct{})}
	srv := newTestServerWith(t, gen)
	token := register(t, srv, "gone@example.com")

	_, body := do(t, http.MethodPost, srv.URL+"/chats", token, types.CreateChatRequest{Title: "Leaving"})
	var chat types.Chat
	json.Unmarshal(body, &chat)

	ctx, cancel := context.WithCancel(context.Background())
	b, _ := json.Marshal(types.SendMessageRequest{Content: "hello"})
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, srv.URL+"/chats/"+chat.ID.String()+"/messages", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	errCh := make(chan error, 1)
	go func() {
		resp, err := http.DefaultClient.Do(req)
		if err == nil {
			resp.Body.Close()
		}
		errCh <- err
	}()

	select {
	case <-gen.started:
	case <-time.After(5 * time.Second):
		t.Fatal("generation never started")
	}
	cancel()
	if err := <-errCh; err == nil {
		t.Fatal("expected the cancelled request to fail on the client side")
	}
	// let the server notice the dropped connection before the model answers
	time.Sleep(100 * time.Millisecond)
	close(gen.release)

	var full types.ChatWithMessages
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		_, body = do(t, http.MethodGet, srv.URL+"/chats/"+chat.ID.String(), token, nil)
		full = types.ChatWithMessages{}
		json.Unmarshal(body, &full)
		if len(full.Messages) == 2 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if len(full.Messages) != 2 {
		t.Fatalf("expected user and assistant messages, got %+v", full.Messages)
	}
	if full.Messages[1].Content != "late: hello" {
		t.Errorf("expected the model reply to be stored, got %q", full.Messages[1].Content)
	}
}

func TestChatAccessControl(t *testing.T) {
	srv := newTestServer(t)
	owner := register(t, srv, "owner@example.com")
	other := register(t, srv, "other@example.com")

	_, body := do(t, http.MethodPost, srv.URL+"/chats", owner, types.CreateChatRequest{Title: "Mine"})
	var chat types.Chat
	json.Unmarshal(body, &chat)

	if resp, _ := do(t, http.MethodGet, srv.URL+"/chats", "", nil); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no token: expected 401, got %d", resp.StatusCode)
	}
	if resp, _ := do(t, http.MethodGet, srv.URL+"/chats/"+chat.ID.String(), other, nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("foreign chat: expected 404, got %d", resp.StatusCode)
	}
	if resp, _ := do(t, http.MethodGet, srv.URL+"/chats/not-a-uuid", owner, nil); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad id: expected 400, got %d", resp.StatusCode)
	}
	if resp, _ := do(t, http.MethodPost, srv.URL+"/chats/"+chat.ID.String()+"/messages", owner,
		types.SendMessageRequest{Content: "   "}); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("blank message: expected 400, got %d", resp.StatusCode)
	}
}

func TestLoginWithQueryParams(t *testing.T) {
	srv := newTestServer(t)
	register(t, srv, "q@example.com")

	resp, body := do(t, http.MethodPost, srv.URL+"/auth/login?email=q@example.com&password=secret1", "", nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "access_token") {
		t.Errorf("login: %d %s", resp.StatusCode, body)
	}
	resp, _ = do(t, http.MethodPost, srv.URL+"/auth/login?email=q@example.com&password=nope00", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad password: expected 401, got %d", resp.StatusCode)
	}
	resp, _ = do(t, http.MethodPost, srv.URL+"/auth/register", "",
		types.RegisterRequest{Email: "q@example.com", Password: "secret1", Name: "Again"})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate: expected 409, got %d", resp.StatusCode)
	}
}

func upload(t *testing.T, srv *httptest.Server, token, filename, contentType, content string) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	h.Set("Content-Type", contentType)
	part, _ := mw.CreatePart(h)
	part.Write([]byte(content))
	mw.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/files/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, body
}

func TestUploadAndAskAboutFile(t *testing.T) {
	srv := newTestServer(t)
	token := register(t, srv, "files@example.com")

	resp, body := upload(t, srv, token, "inflation.csv", "text/csv", "region,inflation\nLima,2.1\n")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upload: %d %s", resp.StatusCode, body)
	}
	var up types.FileUploadResponse
	json.Unmarshal(body, &up)
	if up.Status != "processed" || up.FileType != files.TypeCSV {
		t.Errorf("unexpected upload result %s", body)
	}

	_, body = do(t, http.MethodPost, srv.URL+"/chats", token, types.CreateChatRequest{})
	var chat types.Chat
	json.Unmarshal(body, &chat)
	resp, body = do(t, http.MethodPost, srv.URL+"/chats/"+chat.ID.String()+"/messages", token,
		types.SendMessageRequest{Content: "What was inflation in Lima?", FileIDs: []string{up.FileID.String()}})
	var turn types.TurnResult
	json.Unmarshal(body, &turn)
	if resp.StatusCode != http.StatusOK || !turn.ContextUsed {
		t.Errorf("expected document context to be used: %d %s", resp.StatusCode, body)
	}

	resp, body = do(t, http.MethodGet, srv.URL+"/files/"+up.FileID.String(), token, nil)
	if resp.StatusCode != http.StatusOK || string(body) != "region,inflation\nLima,2.1\n" {
		t.Errorf("download: %d %q", resp.StatusCode, body)
	}
	if resp, _ := do(t, http.MethodDelete, srv.URL+"/files/"+up.FileID.String(), token, nil); resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete: expected 204, got %d", resp.StatusCode)
	}
	resp, body = do(t, http.MethodGet, srv.URL+"/files", token, nil)
	if resp.StatusCode != http.StatusOK || strings.TrimSpace(string(body)) != "[]" {
		t.Errorf("list after delete: %d %s", resp.StatusCode, body)
	}

	if resp, _ := upload(t, srv, token, "notes.txt", "text/plain", "hello"); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unsupported type: expected 400, got %d", resp.StatusCode)
	}
	if resp, _ := upload(t, srv, token, "big.csv", "text/csv", strings.Repeat("a,b\n", 1024)); resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Errorf("oversized: expected 413, got %d", resp.StatusCode)
	}
}

func TestSeriesRoute(t *testing.T) {
	srv := newTestServer(t)
	token := register(t, srv, "stats@example.com")

	resp, body := do(t, http.MethodPost, srv.URL+"/bcrp/series", token, types.SeriesRequest{Series: []string{"PN01288PM"}})
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), bcrp.StatusDemo) {
		t.Errorf("expected demo data when upstream fails: %d %s", resp.StatusCode, body)
	}
	resp, _ = do(t, http.MethodPost, srv.URL+"/bcrp/series", token, types.SeriesRequest{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty series: expected 400, got %d", resp.StatusCode)
	}
}

func TestHealthAndBanner(t *testing.T) {
	srv := newTestServer(t)

	resp, body := do(t, http.MethodGet, srv.URL+"/health", "", nil)
	var h types.HealthResponse
	json.Unmarshal(body, &h)
	if resp.StatusCode != http.StatusOK || h.Services["rag"] != "healthy" {
		t.Errorf("health: %d %s", resp.StatusCode, body)
	}
	resp, body = do(t, http.MethodGet, srv.URL+"/", "", nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "Velvet") {
		t.Errorf("banner: %d %s", resp.StatusCode, body)
	}
}

func TestStreamOverWebsocket(t *testing.T) {
	srv := newTestServer(t)
	token := register(t, srv, "ws@example.com")
	_, body := do(t, http.MethodPost, srv.URL+"/chats", token, types.CreateChatRequest{Title: "Stream"})
	var chat types.Chat
	json.Unmarshal(body, &chat)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/chats/" + chat.ID.String() + "/ws?token=" + token
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	if err := wsjson.Write(ctx, conn, types.SendMessageRequest{Content: "Hola"}); err != nil {
		t.Fatal(err)
	}
	var streamed strings.Builder
	for {
		var ev types.StreamEvent
		if err := wsjson.Read(ctx, conn, &ev); err != nil {
			t.Fatalf("read: %v", err)
		}
		if ev.Type == types.EventChunk {
			streamed.WriteString(ev.Content)
			continue
		}
		if ev.Type != types.EventDone || ev.Result == nil {
			t.Fatalf("unexpected event %+v", ev)
		}
		if ev.Result.AssistantMessage.Content != "echo: Hola" {
			t.Errorf("unexpected persisted reply %q", ev.Result.AssistantMessage.Content)
		}
		break
	}
	if streamed.String() != "echo: Hola" {
		t.Errorf("unexpected streamed text %q", streamed.String())
	}
	conn.Close(websocket.StatusNormalClosure, "")

	if _, _, err := websocket.Dial(ctx, strings.Replace(wsURL, "token="+token, "token=bad", 1), nil); err == nil {
		t.Error("expected dial with a bad token to fail")
	}
}
