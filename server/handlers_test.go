package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/candelahq/trellis/engine"
	"github.com/candelahq/trellis/flow"
	trellistest "github.com/candelahq/trellis/internal/testing"
	"github.com/candelahq/trellis/seed"
	"github.com/candelahq/trellis/store"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

type apiHarness struct {
	server    *Server
	store     *store.Store
	engine    *engine.Engine
	clock     *fakeClock
	projectID string
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()
	ctx := context.Background()

	db := trellistest.CreateTestDB(t)
	log := zap.NewNop().Sugar()
	s := store.New(db, log)
	require.NoError(t, seed.Apply(ctx, s, seed.Prototype()))

	project, err := s.GetProjectByName(ctx, seed.PrototypeProjectName)
	require.NoError(t, err)

	clock := &fakeClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	e := engine.New(s, clock, log)

	return &apiHarness{
		server:    New(Options{Host: "127.0.0.1", Port: 0}, db, s, e, log),
		store:     s,
		engine:    e,
		clock:     clock,
		projectID: project.ID,
	}
}

func (h *apiHarness) request(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (h *apiHarness) enroll(t *testing.T) string {
	t.Helper()
	rec := h.request(t, http.MethodPost, "/api/participants",
		enrollRequest{ProjectID: h.projectID, Language: "English"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp enrollResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.ID)
	return resp.ID
}

func TestEnrollParticipant(t *testing.T) {
	h := newAPIHarness(t)

	id := h.enroll(t)

	rec := h.request(t, http.MethodGet, "/api/participants/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var p flow.Participant
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, h.projectID, p.ProjectID)
	assert.Equal(t, flow.ParticipantStatusActive, p.Status)
}

func TestEnrollRequiresProjectID(t *testing.T) {
	h := newAPIHarness(t)

	rec := h.request(t, http.MethodPost, "/api/participants", enrollRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEnrollUnknownProjectIs404(t *testing.T) {
	h := newAPIHarness(t)

	rec := h.request(t, http.MethodPost, "/api/participants",
		enrollRequest{ProjectID: "p-ghost"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetParticipantNotFound(t *testing.T) {
	h := newAPIHarness(t)

	rec := h.request(t, http.MethodGet, "/api/participants/pt-ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInboundMessageRejectsEmptyText(t *testing.T) {
	h := newAPIHarness(t)
	id := h.enroll(t)

	rec := h.request(t, http.MethodPost, "/api/participants/"+id+"/message",
		inboundRequest{Text: "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Nothing was recorded.
	var messages []flow.ParticipantMessage
	rec = h.request(t, http.MethodGet, "/api/participants/"+id+"/messages", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &messages))
	assert.Empty(t, messages)
}

func TestInboundKeywordFlow(t *testing.T) {
	h := newAPIHarness(t)
	id := h.enroll(t)

	rec := h.request(t, http.MethodPost, "/api/participants/"+id+"/message",
		inboundRequest{Text: "iselect"})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	rec = h.request(t, http.MethodGet, "/api/participants/"+id+"/messages", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var messages []flow.ParticipantMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &messages))
	require.Len(t, messages, 1)
	assert.Equal(t, flow.DirectionInbound, messages[0].Direction)
	assert.Equal(t, "iselect", messages[0].Text)

	// The start node was scheduled, not yet fired: timeline is empty.
	rec = h.request(t, http.MethodGet, "/api/participants/"+id+"/timeline", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var timeline []store.TimelineEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &timeline))
	assert.Empty(t, timeline)

	jobs, err := h.store.ListJobsByParticipant(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, flow.JobStatusPending, jobs[0].Status)
}

func TestTimelineAfterNodeFires(t *testing.T) {
	h := newAPIHarness(t)
	id := h.enroll(t)
	ctx := context.Background()

	rec := h.request(t, http.MethodPost, "/api/participants/"+id+"/message",
		inboundRequest{Text: "iselect"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	jobs, err := h.store.ListJobsByParticipant(ctx, id)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	_, err = h.engine.ExecuteNode(ctx, id, jobs[0].NodeID)
	require.NoError(t, err)

	rec = h.request(t, http.MethodGet, "/api/participants/"+id+"/timeline", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var timeline []store.TimelineEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &timeline))
	require.Len(t, timeline, 1)
	assert.Equal(t, "Node_Start", timeline[0].NodeName)
	assert.Equal(t, "Broadcast_1", timeline[0].TemplateName)
}

func TestListProjects(t *testing.T) {
	h := newAPIHarness(t)

	rec := h.request(t, http.MethodGet, "/api/projects", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var projects []flow.Project
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &projects))
	require.Len(t, projects, 1)
	assert.Equal(t, seed.PrototypeProjectName, projects[0].Name)

	rec = h.request(t, http.MethodGet, "/api/projects/"+projects[0].ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.request(t, http.MethodGet, "/api/projects/p-ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	h := newAPIHarness(t)

	rec := h.request(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "ok", resp.Database)
	assert.NotEmpty(t, resp.Version)
}

func TestMethodNotAllowed(t *testing.T) {
	h := newAPIHarness(t)

	rec := h.request(t, http.MethodDelete, "/api/projects", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = h.request(t, http.MethodGet, "/api/participants", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
