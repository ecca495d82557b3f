package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/signoffhq/signoff/domain"
)

// demoTracker is an in-memory issue tracker backing the demo toolset. It
// stands in for a real Linear/GitHub integration.
type demoTracker struct {
	mu     sync.Mutex
	nextID int
	issues map[string]*demoIssue
}

type demoIssue struct {
	ID          string `json:"issue_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Priority    string `json:"priority,omitempty"`
	Comments    int    `json:"comments,omitempty"`
}

func newDemoTracker() *demoTracker {
	return &demoTracker{
		nextID: 1,
		issues: map[string]*demoIssue{
			"DEMO-1": {ID: "DEMO-1", Title: "Login page crashes on Safari", Priority: "high"},
		},
	}
}

func (t *demoTracker) url(id string) string {
	return "https://tracker.demo.example/issues/" + id
}

// DemoDefinitions returns the demo toolset: one read tool and three write
// tools over a shared in-memory tracker.
func DemoDefinitions() []Definition {
	t := newDemoTracker()

	return []Definition{
		{
			Name:        "demo_search_issues",
			Description: "Search issues in the demo tracker",
			ReadOnly:    true,
			Params: []Param{
				{Name: "query", Type: "string", Description: "Text to match against issue titles", Required: true},
				{Name: "limit", Type: "number", Description: "Maximum number of results"},
			},
			Run: func(ctx context.Context, args json.RawMessage) (json.RawMessage, string, error) {
				var in struct {
					Query string   `json:"query"`
					Limit *float64 `json:"limit"`
				}
				if err := json.Unmarshal(args, &in); err != nil {
					return nil, "", err
				}
				t.mu.Lock()
				defer t.mu.Unlock()
				var matches []*demoIssue
				for _, iss := range t.issues {
					if strings.Contains(strings.ToLower(iss.Title), strings.ToLower(in.Query)) {
						matches = append(matches, iss)
					}
				}
				sort.Slice(matches, func(i, j int) bool { return matches[i].ID < matches[j].ID })
				if in.Limit != nil && int(*in.Limit) < len(matches) {
					matches = matches[:int(*in.Limit)]
				}
				out, err := json.Marshal(map[string]any{"issues": matches})
				return out, "", err
			},
		},
		{
			Name:        "demo_create_issue",
			Description: "Create an issue in the demo tracker",
			Params: []Param{
				{Name: "title", Type: "string", Description: "Issue title", Required: true},
				{Name: "description", Type: "string", Description: "Issue body"},
				{Name: "priority", Type: "string", Description: "low, medium or high"},
			},
			Run: func(ctx context.Context, args json.RawMessage) (json.RawMessage, string, error) {
				var in struct {
					Title       string `json:"title"`
					Description string `json:"description"`
					Priority    string `json:"priority"`
				}
				if err := json.Unmarshal(args, &in); err != nil {
					return nil, "", err
				}
				t.mu.Lock()
				defer t.mu.Unlock()
				t.nextID++
				iss := &demoIssue{
					ID:          fmt.Sprintf("DEMO-%d", t.nextID),
					Title:       in.Title,
					Description: in.Description,
					Priority:    in.Priority,
				}
				t.issues[iss.ID] = iss
				out, err := json.Marshal(iss)
				return out, t.url(iss.ID), err
			},
		},
		{
			Name:        "demo_update_issue",
			Description: "Update an issue in the demo tracker",
			Params: []Param{
				{Name: "issue_id", Type: "string", Description: "Issue to update", Required: true},
				{Name: "title", Type: "string", Description: "New title"},
				{Name: "priority", Type: "string", Description: "New priority"},
			},
			Preview: func(args map[string]any) []domain.PreviewField {
				id, _ := args["issue_id"].(string)
				t.mu.Lock()
				current := t.issues[id]
				t.mu.Unlock()
				fields := []domain.PreviewField{{Field: "Issue", NewValue: id}}
				if title, ok := args["title"].(string); ok {
					f := domain.PreviewField{Field: "Title", NewValue: title}
					if current != nil {
						f.OldValue = current.Title
					}
					fields = append(fields, f)
				}
				if prio, ok := args["priority"].(string); ok {
					f := domain.PreviewField{Field: "Priority", NewValue: prio}
					if current != nil {
						f.OldValue = current.Priority
					}
					fields = append(fields, f)
				}
				return fields
			},
			Run: func(ctx context.Context, args json.RawMessage) (json.RawMessage, string, error) {
				var in struct {
					IssueID  string  `json:"issue_id"`
					Title    *string `json:"title"`
					Priority *string `json:"priority"`
				}
				if err := json.Unmarshal(args, &in); err != nil {
					return nil, "", err
				}
				t.mu.Lock()
				defer t.mu.Unlock()
				iss, ok := t.issues[in.IssueID]
				if !ok {
					return nil, "", fmt.Errorf("issue %s not found", in.IssueID)
				}
				if in.Title != nil {
					iss.Title = *in.Title
				}
				if in.Priority != nil {
					iss.Priority = *in.Priority
				}
				out, err := json.Marshal(iss)
				return out, t.url(iss.ID), err
			},
		},
		{
			Name:        "demo_add_comment",
			Description: "Add a comment to an issue in the demo tracker",
			Params: []Param{
				{Name: "issue_id", Type: "string", Description: "Issue to comment on", Required: true},
				{Name: "body", Type: "string", Description: "Comment text", Required: true},
			},
			Run: func(ctx context.Context, args json.RawMessage) (json.RawMessage, string, error) {
				var in struct {
					IssueID string `json:"issue_id"`
					Body    string `json:"body"`
				}
				if err := json.Unmarshal(args, &in); err != nil {
					return nil, "", err
				}
				t.mu.Lock()
				defer t.mu.Unlock()
				iss, ok := t.issues[in.IssueID]
				if !ok {
					return nil, "", fmt.Errorf("issue %s not found", in.IssueID)
				}
				iss.Comments++
				out, err := json.Marshal(map[string]any{"issue_id": iss.ID, "comment_count": iss.Comments})
				return out, t.url(iss.ID), err
			},
		},
	}
}
