package probe

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore fakes a page's session storage for staging tests.
type memStore struct {
	values map[string]string
}

func newMemStore() *memStore {
	return &memStore{values: make(map[string]string)}
}

func (m *memStore) SessionStorageGet(_ context.Context, key string) (string, error) {
	return m.values[key], nil
}

func (m *memStore) SessionStorageSet(_ context.Context, key, value string) error {
	m.values[key] = value
	return nil
}

func TestSeedStateRoundTrip(t *testing.T) {
	t.Parallel()

	state := &WorkflowState{
		ActiveStep: StepCopy,
		BriefData: &BriefData{
			Title:    "Spring launch",
			Audience: "existing customers",
			Goal:     "upsell",
			Tone:     "confident",
		},
		Motivations: []Motivation{
			{ID: "m1", Headline: "Save time", Selected: true},
			{ID: "m2", Headline: "Look sharp"},
		},
		CopyVariations: []CopyVariation{
			{ID: "c1", MotivationID: "m1", Headline: "Ship faster", Body: "Body copy.", CTA: "Try it"},
		},
		SelectedAssets: []string{"asset-17", "asset-23"},
	}

	store := newMemStore()
	ctx := context.Background()

	require.NoError(t, SeedState(ctx, store, state))

	got, err := ReadState(ctx, store)
	require.NoError(t, err)
	// Staging then reloading must reproduce the exact object.
	assert.Equal(t, state, got)
}

func TestReadStateAbsent(t *testing.T) {
	t.Parallel()

	got, err := ReadState(context.Background(), newMemStore())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestReadStateMalformed(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.values[SessionKey] = "{not json"

	_, err := ReadState(context.Background(), store)
	require.Error(t, err)
}

func TestWaitForStep(t *testing.T) {
	t.Parallel()

	updates := make(chan string, 4)
	updates <- `{"activeStep":"brief"}`
	updates <- `not json yet`
	updates <- `{"activeStep":"motivations","motivations":[{"id":"m1","headline":"h","selected":false}]}`

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	state, err := WaitForStep(ctx, updates, StepMotivations)
	require.NoError(t, err)
	assert.Equal(t, StepMotivations, state.ActiveStep)
	require.Len(t, state.Motivations, 1)
}

func TestWaitForStepTimeout(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := WaitForStep(ctx, make(chan string), StepReview)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWaitForStepClosedStream(t *testing.T) {
	t.Parallel()

	updates := make(chan string)
	close(updates)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := WaitForStep(ctx, updates, StepReview)
	require.ErrorIs(t, err, ErrWatchClosed)
}
