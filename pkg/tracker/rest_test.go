package tracker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openjdk/jmerge/internal/types"
)

func trackerServer(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var requests []string
	mux := http.NewServeMux()
	mux.HandleFunc("/issue/JDK-8291234", func(w http.ResponseWriter, r *http.Request) {
		requests = append(requests, r.Method+" "+r.URL.Path)
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{ //nolint:errcheck
			"key": "JDK-8291234",
			"fields": map[string]interface{}{
				"summary":   "Fix the widget",
				"issuetype": map[string]string{"name": "Bug"},
				"status":    map[string]string{"name": "Open"},
				"priority":  map[string]string{"name": "P3"},
				"fixVersions": []map[string]string{
					{"name": "17"},
				},
				"labels": []string{"noreg-self"},
				"issuelinks": []map[string]interface{}{
					{
						"type":         map[string]string{"name": "csr for"},
						"outwardIssue": map[string]string{"key": "JDK-8291235"},
					},
				},
			},
		})
	})
	mux.HandleFunc("/issue/JDK-8291234/comment", func(w http.ResponseWriter, r *http.Request) {
		requests = append(requests, r.Method+" "+r.URL.Path)
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		requests = append(requests, r.Method+" "+r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, &requests
}

func TestGetIssue(t *testing.T) {
	server, _ := trackerServer(t)
	trk := NewRESTTracker(server.URL, "token")

	issue, err := trk.GetIssue(context.Background(), "JDK", "8291234")
	require.NoError(t, err)
	assert.Equal(t, "Fix the widget", issue.Title)
	assert.Equal(t, "Bug", issue.Type)
	assert.Equal(t, types.IssueOpen, issue.State)
	assert.Equal(t, []string{"17"}, issue.FixVersions)
	require.Len(t, issue.Links, 1)
	assert.Equal(t, "csr for", issue.Links[0].Relationship)
	assert.Equal(t, "8291235", issue.Links[0].ID)
}

func TestGetIssueNotFound(t *testing.T) {
	server, _ := trackerServer(t)
	trk := NewRESTTracker(server.URL, "")

	_, err := trk.GetIssue(context.Background(), "JDK", "999")
	assert.True(t, IsNotFound(err))
}

func TestMutators(t *testing.T) {
	server, requests := trackerServer(t)
	trk := NewRESTTracker(server.URL, "")
	ctx := context.Background()

	require.NoError(t, trk.SetTitle(ctx, "JDK", "8291234", "New title"))
	require.NoError(t, trk.AddLabel(ctx, "JDK", "8291234", "jdk17u-fix-request"))
	require.NoError(t, trk.AddComment(ctx, "JDK", "8291234", "Approval requested"))

	assert.Contains(t, *requests, "PUT /issue/JDK-8291234")
	assert.Contains(t, *requests, "POST /issue/JDK-8291234/comment")
}
