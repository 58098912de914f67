package memory

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"sync"
)

// Confidence grades a finding's conclusion.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Status records how a sub-task ended.
type Status string

const (
	StatusOK      Status = "ok"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

// Finding is the recorded outcome of one sub-task. Findings are immutable
// once appended.
type Finding struct {
	TaskID     string     `json:"task_id"`
	Query      string     `json:"query"`
	UnitIDs    []string   `json:"unit_ids,omitempty"`
	Conclusion string     `json:"conclusion"`
	Confidence Confidence `json:"confidence"`
	Status     Status     `json:"status"`
}

// Memory is an append-only log of findings plus the set of already covered
// query fingerprints. The log guarantees an auditable analysis trail: no API
// mutates or deletes a past finding.
type Memory struct {
	mu       sync.RWMutex
	findings []Finding
	covered  map[string]struct{}
}

// New creates an empty memory for one analysis run.
func New() *Memory {
	return &Memory{covered: make(map[string]struct{})}
}

// Append records a finding. It never fails; the backing store is in-process
// and storage exhaustion is fatal to the whole run anyway.
func (m *Memory) Append(finding Finding) {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Defensive copy keeps appended findings immutable even if the caller
	// retains the slice.
	finding.UnitIDs = append([]string(nil), finding.UnitIDs...)
	m.findings = append(m.findings, finding)
}

// Query returns all findings matching the predicate, in append order. A nil
// predicate matches everything.
func (m *Memory) Query(predicate func(Finding) bool) []Finding {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Finding, 0, len(m.findings))
	for _, f := range m.findings {
		if predicate == nil || predicate(f) {
			f.UnitIDs = append([]string(nil), f.UnitIDs...)
			out = append(out, f)
		}
	}
	return out
}

// Len returns the number of recorded findings.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.findings)
}

// HasCovered reports whether a query fingerprint was already issued this run.
func (m *Memory) HasCovered(fingerprint string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.covered[fingerprint]
	return ok
}

// MarkCovered adds a fingerprint to the coverage set. The set only grows
// within a run.
func (m *Memory) MarkCovered(fingerprint string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.covered[fingerprint] = struct{}{}
}

// CoveredCount returns the coverage set size.
func (m *Memory) CoveredCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.covered)
}

// Fingerprint hashes a query intent for coverage tracking. Case and
// whitespace differences collapse to the same fingerprint.
func Fingerprint(kind, query string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	sum := sha256.Sum256([]byte(kind + "\x00" + normalized))
	return fmt.Sprintf("%x", sum)[:16]
}
