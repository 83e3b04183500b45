package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"raggate/internal/retrieval"
	"raggate/internal/session"
	"raggate/pkg/types"
)

type fakeAdmin struct {
	pingErr error
	models  types.ModelListResponse
	status  types.StatusResponse
	ack     types.SwitchModelResponse
}

func (f *fakeAdmin) Ping(ctx context.Context) error { return f.pingErr }
func (f *fakeAdmin) ListModels(ctx context.Context) (types.ModelListResponse, error) {
	return f.models, nil
}
func (f *fakeAdmin) Status(ctx context.Context) (types.StatusResponse, error) {
	return f.status, nil
}
func (f *fakeAdmin) SwitchModel(ctx context.Context, name string, kind types.ModelKind) (types.SwitchModelResponse, error) {
	return f.ack, nil
}

type fakeKnowledge struct {
	source  string
	text    string
	err     error
	docs    []retrieval.DocumentInfo
	deleted string
	removed int
}

func (f *fakeKnowledge) Ingest(ctx context.Context, source, text string) (int, error) {
	f.source, f.text = source, text
	if f.err != nil {
		return 0, f.err
	}
	return 2, nil
}

func (f *fakeKnowledge) Documents(ctx context.Context) ([]retrieval.DocumentInfo, error) {
	return f.docs, f.err
}

func (f *fakeKnowledge) DeleteDocument(ctx context.Context, source string) (int, error) {
	f.deleted = source
	return f.removed, f.err
}

func newTestServer(t *testing.T, inf Streamer, admin InferenceAdmin, kb KnowledgeBase, modelsDir string) *httptest.Server {
	t.Helper()
	store := session.NewMemoryStore(0)
	t.Cleanup(store.Close)
	orch := NewOrchestrator(store, &fakeRetriever{}, inf, zerolog.Nop())
	_, handler := NewServer(Config{
		Orchestrator: orch,
		Inference:    admin,
		Knowledge:    kb,
		ModelsDir:    modelsDir,
		Logger:       zerolog.Nop(),
	})
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestChatEndpointBuffersAnswer(t *testing.T) {
	srv := newTestServer(t, &fakeStreamer{tokens: []string{"he", "llo"}}, &fakeAdmin{}, nil, "")

	body, _ := json.Marshal(types.ChatAPIRequest{Query: "hi", SessionID: "s1"})
	resp, err := http.Post(srv.URL+"/api/chat", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	var out types.ChatAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.SessionID != "s1" || out.Answer != "hello" {
		t.Fatalf("out=%+v", out)
	}
}

func TestChatEndpointRequiresQuery(t *testing.T) {
	srv := newTestServer(t, &fakeStreamer{}, &fakeAdmin{}, nil, "")
	resp, err := http.Post(srv.URL+"/api/chat", "application/json", strings.NewReader(`{"query":""}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status=%d", resp.StatusCode)
	}
}

func TestChatEndpointUpstreamFailure(t *testing.T) {
	srv := newTestServer(t, &fakeStreamer{err: errors.New("inference down")}, &fakeAdmin{}, nil, "")
	body, _ := json.Marshal(types.ChatAPIRequest{Query: "hi"})
	resp, err := http.Post(srv.URL+"/api/chat", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status=%d", resp.StatusCode)
	}
}

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) types.WSFrame {
	t.Helper()
	var f types.WSFrame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return f
}

func TestWebSocketTurn(t *testing.T) {
	srv := newTestServer(t, &fakeStreamer{tokens: []string{"a", "b"}}, &fakeAdmin{}, nil, "")
	conn := dialWS(t, srv)

	if err := conn.WriteJSON(types.QueryFrame{Query: "hi"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	idFrame := readFrame(t, conn)
	if idFrame.Event != types.EventSessionID || idFrame.SessionID == "" {
		t.Fatalf("expected session id frame, got %+v", idFrame)
	}
	var answer strings.Builder
	for {
		f := readFrame(t, conn)
		if f.Event == types.EventDone {
			break
		}
		if f.Event == types.EventError {
			t.Fatalf("unexpected error frame: %+v", f)
		}
		if f.SessionID != idFrame.SessionID {
			t.Fatalf("token frame session=%q want %q", f.SessionID, idFrame.SessionID)
		}
		answer.WriteString(f.Token)
	}
	if answer.String() != "ab" {
		t.Fatalf("answer=%q", answer.String())
	}
}

func TestWebSocketKeepsSessionAcrossTurns(t *testing.T) {
	srv := newTestServer(t, &fakeStreamer{tokens: []string{"x"}}, &fakeAdmin{}, nil, "")
	conn := dialWS(t, srv)

	// client supplies its own id: no id frame, straight to tokens
	if err := conn.WriteJSON(types.QueryFrame{Query: "one", SessionID: "s1"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	f := readFrame(t, conn)
	if f.Token != "x" || f.SessionID != "s1" {
		t.Fatalf("frame=%+v", f)
	}
	if f = readFrame(t, conn); f.Event != types.EventDone {
		t.Fatalf("expected terminal frame, got %+v", f)
	}

	// second turn on the same connection
	if err := conn.WriteJSON(types.QueryFrame{Query: "two", SessionID: "s1"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if f = readFrame(t, conn); f.Token != "x" {
		t.Fatalf("frame=%+v", f)
	}
	if f = readFrame(t, conn); f.Event != types.EventDone {
		t.Fatalf("expected terminal frame, got %+v", f)
	}
}

func TestWebSocketErrorThenDone(t *testing.T) {
	srv := newTestServer(t, &fakeStreamer{tokens: []string{"par"}, err: errors.New("model crashed")}, &fakeAdmin{}, nil, "")
	conn := dialWS(t, srv)

	if err := conn.WriteJSON(types.QueryFrame{Query: "hi", SessionID: "s1"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	var sawToken, sawError bool
	for {
		f := readFrame(t, conn)
		if f.Event == types.EventDone {
			break
		}
		if f.Event == types.EventError {
			if !strings.Contains(f.Detail, "model crashed") {
				t.Fatalf("detail=%q", f.Detail)
			}
			sawError = true
			continue
		}
		sawToken = true
	}
	if !sawToken || !sawError {
		t.Fatalf("sawToken=%v sawError=%v; partial output must precede the error frame", sawToken, sawError)
	}
}

func TestIngestEndpoint(t *testing.T) {
	kb := &fakeKnowledge{}
	srv := newTestServer(t, &fakeStreamer{}, &fakeAdmin{}, kb, "")

	body := `{"source":"policy.txt","text":"Refunds within 30 days."}`
	resp, err := http.Post(srv.URL+"/api/knowledge", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	if kb.source != "policy.txt" || !strings.Contains(kb.text, "Refunds") {
		t.Fatalf("knowledge base got source=%q text=%q", kb.source, kb.text)
	}
}

func TestListDocumentsEndpoint(t *testing.T) {
	kb := &fakeKnowledge{docs: []retrieval.DocumentInfo{
		{Source: "policy.txt", Chunks: 3},
		{Source: "faq.txt", Chunks: 1},
	}}
	srv := newTestServer(t, &fakeStreamer{}, &fakeAdmin{}, kb, "")

	resp, err := http.Get(srv.URL + "/api/knowledge")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	var docs []retrieval.DocumentInfo
	if err := json.NewDecoder(resp.Body).Decode(&docs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(docs) != 2 || docs[0].Source != "policy.txt" || docs[0].Chunks != 3 {
		t.Fatalf("docs=%+v", docs)
	}
}

func TestListDocumentsEmptyIsJSONArray(t *testing.T) {
	srv := newTestServer(t, &fakeStreamer{}, &fakeAdmin{}, &fakeKnowledge{}, "")

	resp, err := http.Get(srv.URL + "/api/knowledge")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if strings.TrimSpace(string(raw)) != "[]" {
		t.Fatalf("body=%q want empty array", raw)
	}
}

func deleteDocument(t *testing.T, url string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodDelete, url, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	return resp
}

func TestDeleteDocumentEndpoint(t *testing.T) {
	kb := &fakeKnowledge{removed: 4}
	srv := newTestServer(t, &fakeStreamer{}, &fakeAdmin{}, kb, "")

	resp := deleteDocument(t, srv.URL+"/api/knowledge/policy.txt")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	if kb.deleted != "policy.txt" {
		t.Fatalf("deleted=%q", kb.deleted)
	}
}

func TestDeleteDocumentNotFound(t *testing.T) {
	srv := newTestServer(t, &fakeStreamer{}, &fakeAdmin{}, &fakeKnowledge{removed: 0}, "")

	resp := deleteDocument(t, srv.URL+"/api/knowledge/ghost.txt")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status=%d want 404", resp.StatusCode)
	}
}

func uploadFile(t *testing.T, url, name, content string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	fw.Write([]byte(content))
	mw.Close()

	resp, err := http.Post(url+"/api/models/upload", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestUploadModelNoOverwrite(t *testing.T) {
	dir := t.TempDir()
	srv := newTestServer(t, &fakeStreamer{}, &fakeAdmin{}, nil, dir)

	if resp := uploadFile(t, srv.URL, "new-model.gguf", "weights"); resp.StatusCode != http.StatusCreated {
		t.Fatalf("first upload status=%d", resp.StatusCode)
	}
	data, err := os.ReadFile(filepath.Join(dir, "new-model.gguf"))
	if err != nil || string(data) != "weights" {
		t.Fatalf("stored file=%q err=%v", data, err)
	}

	if resp := uploadFile(t, srv.URL, "new-model.gguf", "other"); resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate upload status=%d", resp.StatusCode)
	}
	data, _ = os.ReadFile(filepath.Join(dir, "new-model.gguf"))
	if string(data) != "weights" {
		t.Fatal("existing model was overwritten")
	}
}

func TestUploadModelUnconfigured(t *testing.T) {
	srv := newTestServer(t, &fakeStreamer{}, &fakeAdmin{}, nil, "")
	if resp := uploadFile(t, srv.URL, "m.gguf", "w"); resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", resp.StatusCode)
	}
}

func TestReadyzReflectsInference(t *testing.T) {
	admin := &fakeAdmin{}
	srv := newTestServer(t, &fakeStreamer{}, admin, nil, "")

	resp, _ := http.Get(srv.URL + "/readyz")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ready status=%d", resp.StatusCode)
	}

	admin.pingErr = errors.New("unreachable")
	resp, _ = http.Get(srv.URL + "/readyz")
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("not-ready status=%d", resp.StatusCode)
	}
}

func TestModelProxies(t *testing.T) {
	admin := &fakeAdmin{
		models: types.ModelListResponse{GenerationModels: []string{"g.gguf"}, Device: "cpu"},
		ack:    types.SwitchModelResponse{Success: true, Message: "loading started"},
	}
	srv := newTestServer(t, &fakeStreamer{}, admin, nil, "")

	resp, err := http.Get(srv.URL + "/api/models")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	var models types.ModelListResponse
	json.NewDecoder(resp.Body).Decode(&models)
	resp.Body.Close()
	if len(models.GenerationModels) != 1 || models.Device != "cpu" {
		t.Fatalf("models=%+v", models)
	}

	body, _ := json.Marshal(types.SwitchModelRequest{ModelName: "g.gguf", ModelType: types.KindGeneration})
	resp, err = http.Post(srv.URL+"/api/models/switch", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	var ack types.SwitchModelResponse
	json.NewDecoder(resp.Body).Decode(&ack)
	resp.Body.Close()
	if !ack.Success {
		t.Fatalf("ack=%+v", ack)
	}
}
