package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meikuraledutech/flow"
	"github.com/meikuraledutech/flow/memstore"
	"github.com/meikuraledutech/flow/sqlite"
)

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	s, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "flow.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	lock := flow.NewEditLock(s)
	return New(Deps{
		Store:    s,
		Compiler: flow.NewCompiler(s, lock, zerolog.Nop()),
		Lock:     lock,
		Runtime:  flow.NewRuntime(s, memstore.New(100, time.Hour), memstore.New(10, time.Hour), zerolog.Nop()),
		Log:      zerolog.Nop(),
	})
}

func call(t *testing.T, app *fiber.App, method, path, user string, body any) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set(UserHeader, user)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func createFlow(t *testing.T, app *fiber.App) string {
	t.Helper()
	code, body := call(t, app, http.MethodPost, "/flows", "", map[string]any{"chatbot_id": "bot"})
	require.Equal(t, http.StatusCreated, code)
	id, _ := body["id"].(string)
	require.NotEmpty(t, id)
	return id
}

func onboardingGraph(publish bool) map[string]any {
	return map[string]any{
		"chatbot_id":    "bot",
		"start_node_id": "welcome",
		"publish":       publish,
		"nodes": []map[string]any{
			{"id": "welcome", "type": "text", "content": "Hi!", "next_node_id": "policy"},
			{"id": "policy", "type": "data_policy", "next_node_id": "email"},
			{"id": "email", "type": "email", "variable_key": "email", "next_node_id": "bye"},
			{"id": "bye", "type": "text", "content": "Thanks", "end_conversation": true},
		},
	}
}

func TestServer_Health(t *testing.T) {
	app := newTestApp(t)
	code, body := call(t, app, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])

	code, _ = call(t, app, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestServer_SaveAndPublish(t *testing.T) {
	app := newTestApp(t)
	id := createFlow(t, app)

	code, _ := call(t, app, http.MethodPut, "/flows/"+id+"/graph", "", onboardingGraph(true))
	assert.Equal(t, http.StatusBadRequest, code, "editor header is required")

	code, body := call(t, app, http.MethodPut, "/flows/"+id+"/graph", "alice", onboardingGraph(true))
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "flow published", body["message"])
	idMap, ok := body["id_map"].(map[string]any)
	require.True(t, ok)
	assert.Len(t, idMap, 4)

	code, body = call(t, app, http.MethodGet, "/flows/"+id, "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["locked"])
	f := body["flow"].(map[string]any)
	assert.Equal(t, "published", f["status"])
	assert.EqualValues(t, 1, f["version"])
	assert.Equal(t, idMap["welcome"], f["start_node_id"])
	assert.Len(t, body["nodes"], 4)
}

func TestServer_SaveRejectsUnsafeGraph(t *testing.T) {
	app := newTestApp(t)
	id := createFlow(t, app)

	graph := onboardingGraph(true)
	nodes := graph["nodes"].([]map[string]any)
	nodes[0]["next_node_id"] = "email"
	graph["nodes"] = append(nodes[:1:1], nodes[2:]...)

	code, body := call(t, app, http.MethodPut, "/flows/"+id+"/graph", "alice", graph)
	require.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "consent_violation", body["kind"])
	assert.Equal(t, "email", body["node_id"])

	graph["publish"] = false
	code, body = call(t, app, http.MethodPut, "/flows/"+id+"/graph", "alice", graph)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "draft saved", body["message"])
}

func TestServer_BadRequests(t *testing.T) {
	app := newTestApp(t)

	code, _ := call(t, app, http.MethodPost, "/flows", "", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = call(t, app, http.MethodGet, "/flows/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, code)

	id := createFlow(t, app)
	graph := onboardingGraph(false)
	delete(graph, "start_node_id")
	code, _ = call(t, app, http.MethodPut, "/flows/"+id+"/graph", "alice", graph)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestServer_Validate(t *testing.T) {
	app := newTestApp(t)
	id := createFlow(t, app)
	body := map[string]any{
		"start_node_id": "a",
		"nodes":         []map[string]any{{"id": "a", "type": "text", "next_node_id": "b"}},
	}

	code, _ := call(t, app, http.MethodPost, "/flows/"+id+"/validate", "", body)
	assert.Equal(t, http.StatusOK, code)

	code, resp := call(t, app, http.MethodPost, "/flows/"+id+"/validate?strict=true", "", body)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "dangling_edge", resp["kind"])
}

func TestServer_EditLock(t *testing.T) {
	app := newTestApp(t)
	id := createFlow(t, app)

	code, _ := call(t, app, http.MethodPost, "/flows/"+id+"/lock", "bob", nil)
	require.Equal(t, http.StatusOK, code)

	code, body := call(t, app, http.MethodPut, "/flows/"+id+"/graph", "alice", onboardingGraph(false))
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "flow is locked", body["error"])

	code, _ = call(t, app, http.MethodPost, "/flows/"+id+"/lock/refresh", "alice", nil)
	assert.Equal(t, http.StatusConflict, code)
	code, _ = call(t, app, http.MethodPost, "/flows/"+id+"/lock/refresh", "bob", nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = call(t, app, http.MethodDelete, "/flows/"+id+"/lock", "bob", nil)
	require.Equal(t, http.StatusOK, code)

	code, _ = call(t, app, http.MethodPut, "/flows/"+id+"/graph", "alice", onboardingGraph(false))
	assert.Equal(t, http.StatusOK, code)
}

func TestServer_NodeEdits(t *testing.T) {
	app := newTestApp(t)
	id := createFlow(t, app)

	code, body := call(t, app, http.MethodPut, "/flows/"+id+"/graph", "alice", onboardingGraph(false))
	require.Equal(t, http.StatusOK, code)
	ids := body["id_map"].(map[string]any)
	bye := ids["bye"].(string)

	code, body = call(t, app, http.MethodPatch, "/flows/"+id+"/nodes/"+bye, "alice",
		map[string]any{"type": "text", "content": "See you", "end_conversation": true})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "See you", body["content"])

	code, body = call(t, app, http.MethodDelete, "/flows/"+id+"/nodes/"+bye, "alice", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []any{bye}, body["deleted"])

	code, _ = call(t, app, http.MethodDelete, "/flows/"+id+"/nodes/"+bye, "alice", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestServer_Conversation(t *testing.T) {
	app := newTestApp(t)
	id := createFlow(t, app)

	code, _ := call(t, app, http.MethodPost, "/flows/"+id+"/conversations", "", nil)
	assert.Equal(t, http.StatusConflict, code, "draft flows cannot be started")

	code, body := call(t, app, http.MethodPut, "/flows/"+id+"/graph", "alice", onboardingGraph(true))
	require.Equal(t, http.StatusOK, code)
	ids := body["id_map"].(map[string]any)

	code, body = call(t, app, http.MethodPost, "/flows/"+id+"/conversations", "", nil)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, ids["welcome"], body["node_id"])
	assert.Equal(t, "Hi!", body["content"])
	next := "/conversations/" + body["session_id"].(string) + "/next"

	_, body = call(t, app, http.MethodPost, next, "", nil)
	assert.Equal(t, ids["policy"], body["node_id"])
	_, body = call(t, app, http.MethodPost, next, "", map[string]any{"input": "accept"})
	assert.Equal(t, ids["email"], body["node_id"])
	assert.Equal(t, "email", body["input_type"])
	code, body = call(t, app, http.MethodPost, next, "", map[string]any{"input": "jane@example.com"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, ids["bye"], body["node_id"])
	assert.Equal(t, "Thanks", body["content"])
	assert.Equal(t, true, body["completed"])
	assert.Equal(t, map[string]any{"email": "jane@example.com"}, body["variables"])

	code, _ = call(t, app, http.MethodPost, next, "", nil)
	assert.Equal(t, http.StatusConflict, code)

	code, _ = call(t, app, http.MethodPost, "/conversations/unknown/next", "", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestServer_StaleConversationHidesDetails(t *testing.T) {
	app := newTestApp(t)
	id := createFlow(t, app)

	code, _ := call(t, app, http.MethodPut, "/flows/"+id+"/graph", "alice", onboardingGraph(true))
	require.Equal(t, http.StatusOK, code)
	_, body := call(t, app, http.MethodPost, "/flows/"+id+"/conversations", "", nil)
	next := "/conversations/" + body["session_id"].(string) + "/next"

	// Republish: every durable id changes under the running session.
	code, _ = call(t, app, http.MethodPut, "/flows/"+id+"/graph", "alice", onboardingGraph(true))
	require.Equal(t, http.StatusOK, code)

	code, body = call(t, app, http.MethodPost, next, "", nil)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, map[string]any{"error": "conversation could not continue"}, body)

	code, _ = call(t, app, http.MethodPost, next, "", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestServer_Preview(t *testing.T) {
	app := newTestApp(t)

	code, body := call(t, app, http.MethodPost, "/preview/conversations", "", map[string]any{
		"start_node_id": "q",
		"nodes": []map[string]any{
			{"id": "q", "type": "options", "variable_key": "topic", "options": []map[string]any{
				{"label": "Billing", "value": "billing", "next_node_id": "b"},
				{"label": "Other", "value": "other", "next_node_id": "o"},
			}},
			{"id": "b", "type": "text", "content": "Billing it is", "end_conversation": true},
			{"id": "o", "type": "text", "end_conversation": true},
		},
	})
	require.Equal(t, http.StatusCreated, code)
	assert.Len(t, body["options"], 2)
	next := "/preview/conversations/" + body["session_id"].(string) + "/next"

	code, body = call(t, app, http.MethodPost, next, "", map[string]any{"input": "BILLING"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "b", body["node_id"])
	assert.Equal(t, true, body["completed"])

	code, _ = call(t, app, http.MethodPost, "/conversations/"+body["session_id"].(string)+"/next", "", nil)
	assert.Equal(t, http.StatusNotFound, code, "preview sessions are not production sessions")
}
