// Package models defines the domain types shared by the dashboard packages.
package models

import (
	"sort"
	"time"
)

// Project is a tracked e-commerce site.
type Project struct {
	ID          string    `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	URL         string    `json:"url" yaml:"url"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Tags        []string  `json:"tags" yaml:"tags"`
	JiraKey     string    `json:"jiraKey,omitempty" yaml:"jiraKey,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt" yaml:"updatedAt"`
}

// ProjectPatch carries a partial project update. Nil fields are left untouched.
type ProjectPatch struct {
	Name        *string   `json:"name,omitempty"`
	URL         *string   `json:"url,omitempty"`
	Description *string   `json:"description,omitempty"`
	Tags        *[]string `json:"tags,omitempty"`
	JiraKey     *string   `json:"jiraKey,omitempty"`
}

// Apply returns a copy of p with the patch applied.
func (pp ProjectPatch) Apply(p Project) Project {
	if pp.Name != nil {
		p.Name = *pp.Name
	}
	if pp.URL != nil {
		p.URL = *pp.URL
	}
	if pp.Description != nil {
		p.Description = *pp.Description
	}
	if pp.Tags != nil {
		p.Tags = NormalizeTags(*pp.Tags)
	}
	if pp.JiraKey != nil {
		p.JiraKey = *pp.JiraKey
	}
	return p
}

// NormalizeTags turns a tag list into a sorted set without empty entries.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Clone returns a deep copy of the project.
func (p Project) Clone() Project {
	if p.Tags != nil {
		p.Tags = append([]string(nil), p.Tags...)
	}
	return p
}
