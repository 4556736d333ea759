package reconcile

import (
	"bytes"
	"encoding/json"
	"fmt"

	"ddash/internal/services"
)

// State is the lifecycle state of a run.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateCancelled State = "cancelled"
	StateFailed    State = "failed"
)

// PartResult is the outcome of one reported step.
type PartResult string

const (
	PartPass PartResult = "Pass"
	PartFail PartResult = "Fail"
)

// Part is one named step of a run.
type Part struct {
	PartName string     `json:"partName"`
	Result   PartResult `json:"result"`
}

// FileList names cruise-relative raw files.
type FileList struct {
	New     []string `json:"new"`
	Updated []string `json:"updated"`
}

// Request describes an incremental run.
type Request struct {
	CollectionSystemID string   `json:"collectionSystemId"`
	CruiseID           string   `json:"cruiseID,omitempty"`
	Files              FileList `json:"files"`
}

// RebuildOptions controls a full rebuild.
type RebuildOptions struct {
	CruiseID string `json:"cruiseID,omitempty"`
	// Prune deletes artifacts under the dashboard directory that the rebuilt
	// manifest does not reference.
	Prune bool `json:"prune,omitempty"`
}

// ResultFiles lists cruise-relative artifact paths touched by a run.
type ResultFiles struct {
	New     []string `json:"new"`
	Updated []string `json:"updated"`
	Removed []string `json:"removed"`
}

// Result is returned by every run, including failed ones.
type Result struct {
	RunID string      `json:"runId,omitempty"`
	Task  string      `json:"task,omitempty"`
	State State       `json:"state"`
	Parts []Part      `json:"parts"`
	Files ResultFiles `json:"files"`
	Error string      `json:"error,omitempty"`
}

func newResult(task, runID string) *Result {
	return &Result{
		RunID: runID,
		Task:  task,
		State: StateRunning,
		Parts: []Part{},
		Files: ResultFiles{New: []string{}, Updated: []string{}, Removed: []string{}},
	}
}

func (r *Result) pass(name string) {
	r.Parts = append(r.Parts, Part{PartName: name, Result: PartPass})
}

func (r *Result) fail(name string) {
	r.Parts = append(r.Parts, Part{PartName: name, Result: PartFail})
}

// LastFailure returns the name of the most recent failed part.
func (r *Result) LastFailure() string {
	for i := len(r.Parts) - 1; i >= 0; i-- {
		if r.Parts[i].Result == PartFail {
			return r.Parts[i].PartName
		}
	}
	return ""
}

// DecodeRequest parses an incremental request payload. Unknown fields are rejected.
func DecodeRequest(data []byte) (Request, error) {
	var req Request
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return Request{}, services.Wrap(services.ErrConfiguration, "reconcile", "decode request", "", err)
	}
	if req.CollectionSystemID == "" {
		return Request{}, services.Wrap(services.ErrConfiguration, "reconcile", "decode request",
			fmt.Sprintf("%q is required", "collectionSystemId"), nil)
	}
	return req, nil
}

// DecodeRebuildOptions parses a rebuild payload; an empty payload selects defaults.
func DecodeRebuildOptions(data []byte) (RebuildOptions, error) {
	var opts RebuildOptions
	if len(bytes.TrimSpace(data)) == 0 {
		return opts, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&opts); err != nil {
		return RebuildOptions{}, services.Wrap(services.ErrConfiguration, "reconcile", "decode rebuild options", "", err)
	}
	return opts, nil
}
