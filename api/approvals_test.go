package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/signoffhq/signoff/approval"
	"github.com/signoffhq/signoff/config"
	"github.com/signoffhq/signoff/domain"
	"github.com/signoffhq/signoff/engine"
	"github.com/signoffhq/signoff/events"
	"github.com/signoffhq/signoff/llm"
	"github.com/signoffhq/signoff/policy"
	"github.com/signoffhq/signoff/store/testutil"
	"github.com/signoffhq/signoff/tools"
)

// scriptedClient plays back one chunk sequence per completion round.
type scriptedClient struct {
	rounds [][]llm.StreamChunk
	calls  int
}

func (c *scriptedClient) Stream(ctx context.Context, req *llm.ChatCompletionRequest, fn llm.StreamCallback) error {
	round := c.rounds[c.calls]
	c.calls++
	for i := range round {
		if err := fn(&round[i]); err != nil {
			return err
		}
	}
	return nil
}

func newTestHandler(t *testing.T, rounds [][]llm.StreamChunk) *Handler {
	t.Helper()

	st := testutil.NewTestSQLiteStore(t)
	registry, err := tools.NewRegistry(tools.DemoDefinitions()...)
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	policyEngine, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	recorder := events.NewRecorder(st)
	manager := approval.NewManager(st, registry, recorder)
	orch := engine.NewOrchestrator(&scriptedClient{rounds: rounds}, registry, policyEngine, manager, "test-model", 8)
	return NewHandler(st, manager, orch, recorder, &config.Config{})
}

func createTestProposal(t *testing.T, h *Handler, conversationID, messageID string) *domain.ActionProposal {
	t.Helper()
	ctx := context.Background()
	if _, err := h.store.GetOrCreateConversation(ctx, conversationID, "user1"); err != nil {
		t.Fatalf("GetOrCreateConversation failed: %v", err)
	}
	p, err := h.manager.CreateProposal(ctx, conversationID, messageID, "demo_create_issue", json.RawMessage(`{"title":"Fix bug"}`))
	if err != nil {
		t.Fatalf("CreateProposal failed: %v", err)
	}
	return p
}

func proposalRequest(e *echo.Echo, method, path, proposalID string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("proposal_id")
	c.SetParamValues(proposalID)
	return c, rec
}

func TestApproveProposalEndpoint(t *testing.T) {
	e := echo.New()
	h := newTestHandler(t, nil)
	p := createTestProposal(t, h, "conv1", "msg1")

	c, rec := proposalRequest(e, http.MethodPost, "/v1/proposals/"+p.ProposalID+"/approve", p.ProposalID)
	if err := h.ApproveProposal(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var got domain.ActionProposal
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got.State != domain.ActionStateSucceeded {
		t.Fatalf("expected succeeded, got %s", got.State)
	}
	if got.ResultURL == "" {
		t.Fatal("expected a result URL after execution")
	}
}

func TestApproveUnknownProposal(t *testing.T) {
	e := echo.New()
	h := newTestHandler(t, nil)

	c, rec := proposalRequest(e, http.MethodPost, "/v1/proposals/prop_missing/approve", "prop_missing")
	if err := h.ApproveProposal(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestApproveDeclinedProposalConflicts(t *testing.T) {
	e := echo.New()
	h := newTestHandler(t, nil)
	p := createTestProposal(t, h, "conv1", "msg1")

	c, rec := proposalRequest(e, http.MethodPost, "/v1/proposals/"+p.ProposalID+"/decline", p.ProposalID)
	if err := h.DeclineProposal(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	c, rec = proposalRequest(e, http.MethodPost, "/v1/proposals/"+p.ProposalID+"/approve", p.ProposalID)
	if err := h.ApproveProposal(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRetryPendingProposalConflicts(t *testing.T) {
	e := echo.New()
	h := newTestHandler(t, nil)
	p := createTestProposal(t, h, "conv1", "msg1")

	c, rec := proposalRequest(e, http.MethodPost, "/v1/proposals/"+p.ProposalID+"/retry", p.ProposalID)
	if err := h.RetryProposal(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestGetProposalEndpoint(t *testing.T) {
	e := echo.New()
	h := newTestHandler(t, nil)
	p := createTestProposal(t, h, "conv1", "msg1")

	c, rec := proposalRequest(e, http.MethodGet, "/v1/proposals/"+p.ProposalID, p.ProposalID)
	if err := h.GetProposal(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var got domain.ActionProposal
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got.State != domain.ActionStateProposed {
		t.Fatalf("expected proposed, got %s", got.State)
	}
	if len(got.Preview) == 0 {
		t.Fatal("expected a preview on the pending record")
	}
}

func TestApproveBatchEndpoint(t *testing.T) {
	e := echo.New()
	h := newTestHandler(t, nil)
	a := createTestProposal(t, h, "conv1", "msg1")
	b := createTestProposal(t, h, "conv1", "msg2")

	body, _ := json.Marshal(domain.ApproveBatchRequest{ProposalIDs: []string{a.ProposalID, b.ProposalID}})
	req := httptest.NewRequest(http.MethodPost, "/v1/proposals/approve-batch", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.ApproveBatch(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp domain.ApproveBatchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Halted {
		t.Fatalf("batch should not halt: %s", resp.Error)
	}
	if len(resp.Proposals) != 2 {
		t.Fatalf("expected 2 proposals, got %d", len(resp.Proposals))
	}
	for _, p := range resp.Proposals {
		if p.State != domain.ActionStateSucceeded {
			t.Fatalf("expected succeeded, got %s", p.State)
		}
	}
}

func TestApproveBatchValidation(t *testing.T) {
	e := echo.New()
	h := newTestHandler(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/proposals/approve-batch", bytes.NewBufferString(`{"proposal_ids":[]}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.ApproveBatch(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestApproveBatchUnknownProposal(t *testing.T) {
	e := echo.New()
	h := newTestHandler(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/proposals/approve-batch", bytes.NewBufferString(`{"proposal_ids":["prop_missing"]}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.ApproveBatch(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestListProposalsEndpoint(t *testing.T) {
	e := echo.New()
	h := newTestHandler(t, nil)
	createTestProposal(t, h, "conv1", "msg1")

	req := httptest.NewRequest(http.MethodGet, "/v1/conversations/conv1/proposals", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("conversation_id")
	c.SetParamValues("conv1")

	if err := h.ListProposals(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Proposals []domain.ActionProposal `json:"proposals"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Proposals) != 1 {
		t.Fatalf("expected 1 proposal, got %d", len(resp.Proposals))
	}
}

func TestHealth(t *testing.T) {
	e := echo.New()
	h := newTestHandler(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Health(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
