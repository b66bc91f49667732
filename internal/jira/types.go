package jira

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type searchRequest struct {
	JQL        string   `json:"jql"`
	StartAt    int      `json:"startAt"`
	MaxResults int      `json:"maxResults"`
	Fields     []string `json:"fields,omitempty"`
}

// SearchResult is one page of a JQL search.
type SearchResult struct {
	StartAt    int     `json:"startAt"`
	MaxResults int     `json:"maxResults"`
	Total      int     `json:"total"`
	Issues     []Issue `json:"issues"`
}

// Issue is the subset of a Jira issue the flow computation reads.
type Issue struct {
	ID     string      `json:"id,omitempty"`
	Key    string      `json:"key"`
	Fields IssueFields `json:"fields"`
}

// IssueFields holds the issue fields requested by SearchIssues.
type IssueFields struct {
	Status         *Status    `json:"status,omitempty"`
	IssueType      *IssueType `json:"issuetype,omitempty"`
	Created        Time       `json:"created"`
	ResolutionDate *Time      `json:"resolutiondate,omitempty"`
}

// Status is an issue status.
type Status struct {
	Name string `json:"name"`
}

// IssueType is an issue type.
type IssueType struct {
	Name string `json:"name"`
}

// Time parses Jira timestamps such as "2025-03-04T10:15:30.000+0000".
type Time struct {
	time.Time
}

var timeLayouts = []string{
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05-0700",
	time.RFC3339Nano,
}

func (t *Time) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("jira: unrecognised timestamp %q", s)
}

func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Format(timeLayouts[0]))
}
