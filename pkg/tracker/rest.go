package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/openjdk/jmerge/internal/types"
	"github.com/openjdk/jmerge/pkg/errors"
)

// RESTTracker talks to a JBS-style REST API.
type RESTTracker struct {
	baseURI string
	token   string
	client  *http.Client
}

// NewRESTTracker creates a tracker client for the given base URI.
func NewRESTTracker(baseURI, token string) *RESTTracker {
	return &RESTTracker{
		baseURI: strings.TrimRight(baseURI, "/"),
		token:   token,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// issueDocument mirrors the wire format of the tracker API.
type issueDocument struct {
	Key    string `json:"key"`
	Fields struct {
		Summary   string `json:"summary"`
		IssueType struct {
			Name string `json:"name"`
		} `json:"issuetype"`
		Status struct {
			Name string `json:"name"`
		} `json:"status"`
		Priority struct {
			Name string `json:"name"`
		} `json:"priority"`
		Resolution struct {
			Name string `json:"name"`
		} `json:"resolution"`
		FixVersions []struct {
			Name string `json:"name"`
		} `json:"fixVersions"`
		Labels []string `json:"labels"`
		Links  []struct {
			Type struct {
				Name string `json:"name"`
			} `json:"type"`
			OutwardIssue struct {
				Key string `json:"key"`
			} `json:"outwardIssue"`
		} `json:"issuelinks"`
		Properties map[string]string `json:"properties"`
	} `json:"fields"`
}

func (t *RESTTracker) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.TrackerError("encode request", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURI+path, reader)
	if err != nil {
		return errors.TrackerError("build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return errors.TrackerError(method+" "+path, err)
	}
	defer func() { _ = resp.Body.Close() }() //nolint:errcheck

	if resp.StatusCode == http.StatusNotFound {
		return &NotFoundError{Key: path}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.TrackerError(method+" "+path, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.TrackerError("decode response", err)
		}
	}
	return nil
}

// GetIssue fetches an issue by project and numeric id.
func (t *RESTTracker) GetIssue(ctx context.Context, project, id string) (*types.IssueData, error) {
	key := project + "-" + id
	var doc issueDocument
	if err := t.do(ctx, http.MethodGet, "/issue/"+url.PathEscape(key), nil, &doc); err != nil {
		if IsNotFound(err) {
			return nil, &NotFoundError{Key: key}
		}
		return nil, err
	}

	issue := &types.IssueData{
		Project:    project,
		ID:         id,
		Title:      doc.Fields.Summary,
		Type:       doc.Fields.IssueType.Name,
		Status:     doc.Fields.Status.Name,
		Priority:   doc.Fields.Priority.Name,
		Resolution: doc.Fields.Resolution.Name,
		Labels:     doc.Fields.Labels,
		Properties: doc.Fields.Properties,
	}
	switch strings.ToLower(doc.Fields.Status.Name) {
	case "closed":
		issue.State = types.IssueClosed
	case "resolved":
		issue.State = types.IssueResolved
	default:
		issue.State = types.IssueOpen
	}
	for _, fv := range doc.Fields.FixVersions {
		issue.FixVersions = append(issue.FixVersions, fv.Name)
	}
	for _, link := range doc.Fields.Links {
		linkProject, linkID, ok := strings.Cut(link.OutwardIssue.Key, "-")
		if !ok {
			continue
		}
		issue.Links = append(issue.Links, types.IssueLink{
			Relationship: link.Type.Name,
			Project:      linkProject,
			ID:           linkID,
		})
	}
	return issue, nil
}

// SetTitle replaces an issue's title.
func (t *RESTTracker) SetTitle(ctx context.Context, project, id, title string) error {
	body := map[string]interface{}{"fields": map[string]interface{}{"summary": title}}
	return t.do(ctx, http.MethodPut, "/issue/"+project+"-"+id, body, nil)
}

// SetState moves an issue to a new lifecycle state.
func (t *RESTTracker) SetState(ctx context.Context, project, id string, state types.IssueState) error {
	name := "Open"
	switch state {
	case types.IssueResolved:
		name = "Resolved"
	case types.IssueClosed:
		name = "Closed"
	}
	body := map[string]interface{}{"transition": map[string]interface{}{"name": name}}
	return t.do(ctx, http.MethodPost, "/issue/"+project+"-"+id+"/transitions", body, nil)
}

// SetProperty sets a named issue property.
func (t *RESTTracker) SetProperty(ctx context.Context, project, id, name, value string) error {
	body := map[string]interface{}{"fields": map[string]interface{}{name: value}}
	return t.do(ctx, http.MethodPut, "/issue/"+project+"-"+id, body, nil)
}

// AddLabel adds a label to an issue.
func (t *RESTTracker) AddLabel(ctx context.Context, project, id, label string) error {
	body := map[string]interface{}{"update": map[string]interface{}{
		"labels": []map[string]string{{"add": label}},
	}}
	return t.do(ctx, http.MethodPut, "/issue/"+project+"-"+id, body, nil)
}

// RemoveLabel removes a label from an issue.
func (t *RESTTracker) RemoveLabel(ctx context.Context, project, id, label string) error {
	body := map[string]interface{}{"update": map[string]interface{}{
		"labels": []map[string]string{{"remove": label}},
	}}
	return t.do(ctx, http.MethodPut, "/issue/"+project+"-"+id, body, nil)
}

// AddComment appends a comment to an issue.
func (t *RESTTracker) AddComment(ctx context.Context, project, id, body string) error {
	payload := map[string]interface{}{"body": body}
	return t.do(ctx, http.MethodPost, "/issue/"+project+"-"+id+"/comment", payload, nil)
}

// AddLink relates the issue to another issue.
func (t *RESTTracker) AddLink(ctx context.Context, project, id string, link types.IssueLink) error {
	payload := map[string]interface{}{
		"type":         map[string]string{"name": link.Relationship},
		"inwardIssue":  map[string]string{"key": project + "-" + id},
		"outwardIssue": map[string]string{"key": link.Project + "-" + link.ID},
	}
	return t.do(ctx, http.MethodPost, "/issueLink", payload, nil)
}

var _ Tracker = (*RESTTracker)(nil)
