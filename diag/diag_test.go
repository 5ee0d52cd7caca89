package diag

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/moogar0880/problems"
	"github.com/stretchr/testify/require"

	"github.com/cschleiden/go-wfnet/audit"
	"github.com/cschleiden/go-wfnet/backend/memory"
	"github.com/cschleiden/go-wfnet/core"
	"github.com/cschleiden/go-wfnet/definition"
	"github.com/cschleiden/go-wfnet/engine"
	"github.com/cschleiden/go-wfnet/registry"
)

func newServer(t *testing.T) (*httptest.Server, *engine.Engine, string) {
	t.Helper()

	r := registry.New()
	require.NoError(t, r.Register(definition.New("approval", "v1").
		Task("approve", definition.From("start"), definition.To("end")).
		MustBuild()))
	require.NoError(t, r.Register(definition.New("order", "v1").
		Task("approval", definition.Composite("approval", ""), definition.From("start"), definition.To("end")).
		MustBuild()))

	e := engine.New(memory.NewMemoryBackend(), r)

	id, err := e.InitializeWorkflow(context.Background(), "order", "v1")
	require.NoError(t, err)

	s := httptest.NewServer(NewServeMux(e, slog.Default()))
	t.Cleanup(s.Close)

	return s, e, id
}

func get(t *testing.T, url string, expectedStatus int, v any) *http.Response {
	t.Helper()

	res, err := http.Get(url)
	require.NoError(t, err)
	defer res.Body.Close()

	require.Equal(t, expectedStatus, res.StatusCode)

	if v != nil {
		require.NoError(t, json.NewDecoder(res.Body).Decode(v))
	}

	return res
}

func Test_Diag_Instance(t *testing.T) {
	s, _, id := newServer(t)

	var d engine.InstanceDetails
	get(t, s.URL+"/api/instances/"+id, http.StatusOK, &d)

	require.Equal(t, id, d.Workflow.ID)
	require.Equal(t, core.WorkflowStateStarted, d.Workflow.State)
	require.Len(t, d.Tasks, 1)
	require.Equal(t, core.TaskStateStarted, d.Tasks[0].State)
}

func Test_Diag_InstanceNotFound(t *testing.T) {
	s, _, _ := newServer(t)

	var p problems.Problem
	res := get(t, s.URL+"/api/instances/unknown", http.StatusNotFound, &p)

	require.Equal(t, problemContentType, res.Header.Get("Content-Type"))
	require.Equal(t, "not_found", p.Type)
	require.Equal(t, http.StatusNotFound, p.Status)
	require.Equal(t, http.StatusText(http.StatusNotFound), p.Title)
	require.Equal(t, "/api/instances/unknown", p.Instance)
	require.Contains(t, p.Detail, "not found")
}

func Test_Diag_Tree(t *testing.T) {
	s, e, id := newServer(t)

	children, err := e.GetChildWorkflowInstances(context.Background(), id, "approval")
	require.NoError(t, err)
	require.Len(t, children, 1)

	// Requesting the tree of the child returns the whole tree
	var tree WorkflowInstanceTree
	get(t, s.URL+"/api/instances/"+children[0].ID+"/tree", http.StatusOK, &tree)

	require.Equal(t, id, tree.Instance.ID)
	require.Len(t, tree.Children, 1)
	require.Equal(t, children[0].ID, tree.Children[0].Instance.ID)
	require.Empty(t, tree.Children[0].Children)
}

func Test_Diag_Trace(t *testing.T) {
	s, e, id := newServer(t)

	inst, err := e.GetWorkflowInstance(context.Background(), id)
	require.NoError(t, err)

	var trace audit.Trace
	get(t, s.URL+"/api/traces/"+inst.TraceID, http.StatusOK, &trace)
	require.Equal(t, id, trace.RootWorkflowInstanceID)
	require.Len(t, trace.WorkflowInstanceIDs, 2)

	var spans []*audit.Span
	get(t, s.URL+"/api/traces/"+inst.TraceID+"/spans", http.StatusOK, &spans)
	require.Len(t, spans, trace.SpanCount)

	get(t, s.URL+"/api/traces/unknown", http.StatusNotFound, nil)
}

func Test_Diag_State(t *testing.T) {
	s, e, id := newServer(t)

	inst, err := e.GetWorkflowInstance(context.Background(), id)
	require.NoError(t, err)

	var snapshot audit.Snapshot
	get(t, s.URL+"/api/traces/"+inst.TraceID+"/state?at="+time.Now().Add(time.Minute).Format(time.RFC3339Nano), http.StatusOK, &snapshot)
	require.Equal(t, "started", snapshot.LatestTask(id, "approval").State)

	var p map[string]any
	get(t, s.URL+"/api/traces/"+inst.TraceID+"/state?at=yesterday", http.StatusBadRequest, &p)
	require.Equal(t, "validation_error", p["type"])
}
