package models

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
)

const errorsKey = "errors"

// SyncResult is the aggregated outcome of one orchestrator run. It serializes flat:
// one numeric member per resource plus an "errors" array.
type SyncResult struct {
	Counts map[string]int
	Errors []string
}

func NewSyncResult() *SyncResult {
	return &SyncResult{
		Counts: make(map[string]int),
		Errors: make([]string, 0),
	}
}

// Add records the outcome of one resource task. A non-empty errMsg is appended in call order.
func (r *SyncResult) Add(resource string, count int, errMsg string) {
	r.Counts[resource] = count
	if errMsg != "" {
		r.Errors = append(r.Errors, errMsg)
	}
}

func (r *SyncResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Total is the sum of all resource counts.
func (r *SyncResult) Total() int {
	total := 0
	for _, c := range r.Counts {
		total += c
	}
	return total
}

func (r *SyncResult) Clone() *SyncResult {
	if r == nil {
		return nil
	}
	return &SyncResult{
		Counts: maps.Clone(r.Counts),
		Errors: slices.Clone(r.Errors),
	}
}

func (r SyncResult) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(r.Counts)+1)
	for name, count := range r.Counts {
		flat[name] = count
	}
	errs := r.Errors
	if errs == nil {
		errs = []string{}
	}
	flat[errorsKey] = errs
	return json.Marshal(flat)
}

func (r *SyncResult) UnmarshalJSON(data []byte) error {
	var flat map[string]json.RawMessage
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}

	r.Counts = make(map[string]int, len(flat))
	r.Errors = make([]string, 0)
	for name, raw := range flat {
		if name == errorsKey {
			if err := json.Unmarshal(raw, &r.Errors); err != nil {
				return fmt.Errorf("invalid sync result errors: %w", err)
			}
			continue
		}
		var count int
		if err := json.Unmarshal(raw, &count); err != nil {
			return fmt.Errorf("invalid sync result count for %q: %w", name, err)
		}
		r.Counts[name] = count
	}
	return nil
}
