package probe

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
)

// SessionKey is the single session storage key the target application
// keeps its serialized workflow state under.
const SessionKey = "copymill.workflow"

// Workflow step names, in UI order.
const (
	StepBrief       = "brief"
	StepMotivations = "motivations"
	StepCopy        = "copy"
	StepAssets      = "assets"
	StepReview      = "review"
)

// ErrWatchClosed is returned when a state watch ends before the wanted
// step was reached.
var ErrWatchClosed = errors.New("state watch closed")

// WorkflowState mirrors the target application's serialized workflow
// progress. The probe only stages and reads it back; the shape is
// owned by the application.
type WorkflowState struct {
	ActiveStep     string          `json:"activeStep"`
	BriefData      *BriefData      `json:"briefData,omitempty"`
	Motivations    []Motivation    `json:"motivations,omitempty"`
	CopyVariations []CopyVariation `json:"copyVariations,omitempty"`
	SelectedAssets []string        `json:"selectedAssets,omitempty"`
}

// BriefData is the parsed campaign brief.
type BriefData struct {
	Title    string `json:"title"`
	Audience string `json:"audience"`
	Goal     string `json:"goal"`
	Tone     string `json:"tone,omitempty"`
	RawText  string `json:"rawText,omitempty"`
}

// Motivation is one generated purchase motivation.
type Motivation struct {
	ID        string `json:"id"`
	Headline  string `json:"headline"`
	Rationale string `json:"rationale,omitempty"`
	Selected  bool   `json:"selected"`
}

// CopyVariation is one generated copy candidate.
type CopyVariation struct {
	ID           string `json:"id"`
	MotivationID string `json:"motivationId,omitempty"`
	Headline     string `json:"headline"`
	Body         string `json:"body"`
	CTA          string `json:"cta,omitempty"`
}

// SessionStore is the slice of page behavior workflow staging needs.
// *browser.Page satisfies it.
type SessionStore interface {
	SessionStorageGet(ctx context.Context, key string) (string, error)
	SessionStorageSet(ctx context.Context, key, value string) error
}

// SeedState serializes the state into the application's session storage
// key, staging the UI at an arbitrary workflow step.
func SeedState(ctx context.Context, store SessionStore, state *WorkflowState) error {
	buf, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshaling workflow state: %w", err)
	}
	if err := store.SessionStorageSet(ctx, SessionKey, string(buf)); err != nil {
		return fmt.Errorf("seeding workflow state: %w", err)
	}
	return nil
}

// ReadState reads the staged state back. A missing key yields nil.
func ReadState(ctx context.Context, store SessionStore) (*WorkflowState, error) {
	raw, err := store.SessionStorageGet(ctx, SessionKey)
	if err != nil {
		return nil, fmt.Errorf("reading workflow state: %w", err)
	}
	if raw == "" {
		return nil, nil
	}
	var state WorkflowState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, fmt.Errorf("unmarshaling workflow state: %w", err)
	}
	return &state, nil
}

// WaitForStep consumes a state watch stream (see
// browser.Page.WatchSessionStorage) until the application transitions
// to the wanted step, and returns the state it arrived with.
func WaitForStep(ctx context.Context, updates <-chan string, step string) (*WorkflowState, error) {
	for {
		select {
		case raw, ok := <-updates:
			if !ok {
				return nil, errors.Wrapf(ErrWatchClosed, "waiting for step %q", step)
			}
			var state WorkflowState
			if err := json.Unmarshal([]byte(raw), &state); err != nil {
				// The application may write transitional garbage; keep
				// waiting for a parseable snapshot.
				continue
			}
			if state.ActiveStep == step {
				return &state, nil
			}
		case <-ctx.Done():
			return nil, errors.Wrapf(ctx.Err(), "waiting for step %q", step)
		}
	}
}
