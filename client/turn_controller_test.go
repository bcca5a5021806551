package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecorder struct {
	mu         sync.Mutex
	recording  bool
	transcript string
	starts     int
	stops      int
}

func (f *fakeRecorder) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recording = true
	f.starts++
	return nil
}

func (f *fakeRecorder) Stop() (Capture, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recording = false
	f.stops++
	return Capture{Transcript: f.transcript, Audio: []byte("audio-bytes")}, nil
}

func (f *fakeRecorder) isRecording() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recording
}

type serverScript struct {
	mu            sync.Mutex
	startCalls    int
	continueCalls int
	// queued continue responses, consumed in order
	continues []map[string]interface{}
}

func (s *serverScript) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/interview/start", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.startCalls++
		s.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success":    true,
			"session_id": "session-1",
			"question":   "Tell me about yourself",
			"category":   1,
		})
	})
	mux.HandleFunc("/api/v1/interview/continue", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.continueCalls++
		var resp map[string]interface{}
		if len(s.continues) > 0 {
			resp = s.continues[0]
			s.continues = s.continues[1:]
		} else {
			resp = map[string]interface{}{"success": true, "question": "Next?", "category": 2, "score": 7}
		}
		s.mu.Unlock()
		json.NewEncoder(w).Encode(resp)
	})
	return mux
}

func (s *serverScript) continueCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.continueCalls
}

func newTestController(t *testing.T, script *serverScript, rec *fakeRecorder) *TurnController {
	t.Helper()
	srv := httptest.NewServer(script.handler())
	t.Cleanup(srv.Close)
	return NewTurnController(srv.URL, srv.Client(), rec)
}

func TestStartBeginsRecording(t *testing.T) {
	rec := &fakeRecorder{}
	ctrl := newTestController(t, &serverScript{}, rec)

	err := ctrl.Start(context.Background(), map[string]string{"jobOrMock": "mock"})
	require.NoError(t, err)

	assert.Equal(t, StateRecording, ctrl.State())
	assert.Equal(t, "session-1", ctrl.SessionID())
	assert.Equal(t, "Tell me about yourself", ctrl.CurrentQuestion().Text)
	assert.True(t, rec.isRecording())
}

func TestSubmitAdvancesToNextQuestion(t *testing.T) {
	rec := &fakeRecorder{transcript: "I am an engineer."}
	script := &serverScript{continues: []map[string]interface{}{
		{"success": true, "question": "Why this company?", "category": 7, "score": 7, "overall_score": 70},
	}}
	ctrl := newTestController(t, script, rec)

	require.NoError(t, ctrl.Start(context.Background(), nil))

	feedback, err := ctrl.Submit(context.Background(), "", "")
	require.NoError(t, err)

	assert.Equal(t, 7, feedback.Score)
	assert.False(t, feedback.Completed)
	assert.Equal(t, StateRecording, ctrl.State())
	assert.Equal(t, "Why this company?", ctrl.CurrentQuestion().Text)
	// Capture stopped for submission, restarted for the next answer.
	assert.Equal(t, 1, rec.stops)
	assert.Equal(t, 2, rec.starts)
}

func TestSubmitCompletionReleasesDevices(t *testing.T) {
	rec := &fakeRecorder{transcript: "Final answer."}
	script := &serverScript{continues: []map[string]interface{}{
		{"success": true, "completed": true, "score": 8, "overall_score": 85},
	}}
	ctrl := newTestController(t, script, rec)

	require.NoError(t, ctrl.Start(context.Background(), nil))

	feedback, err := ctrl.Submit(context.Background(), "", "")
	require.NoError(t, err)

	assert.True(t, feedback.Completed)
	assert.Equal(t, StateCompleted, ctrl.State())
	assert.False(t, rec.isRecording()) // devices released on terminal state

	// Terminal state is sticky.
	_, err = ctrl.Submit(context.Background(), "more", "")
	assert.ErrorIs(t, err, ErrSessionDone)
}

func TestSubmitEmptyAnswerStaysLocal(t *testing.T) {
	rec := &fakeRecorder{transcript: "   "}
	script := &serverScript{}
	ctrl := newTestController(t, script, rec)

	require.NoError(t, ctrl.Start(context.Background(), nil))

	_, err := ctrl.Submit(context.Background(), "", "")
	require.ErrorIs(t, err, ErrEmptyAnswer)

	assert.Equal(t, 0, script.continueCount()) // never reached the network
	assert.Equal(t, StateRecording, ctrl.State())
	assert.True(t, rec.isRecording()) // capture restarted for another try
}

func TestSubmitWrittenOnlyIsValid(t *testing.T) {
	rec := &fakeRecorder{transcript: ""}
	ctrl := newTestController(t, &serverScript{}, rec)

	require.NoError(t, ctrl.Start(context.Background(), nil))

	_, err := ctrl.Submit(context.Background(), "typed answer", "")
	require.NoError(t, err)
}

func TestNetworkFailureKeepsAnswerForRetry(t *testing.T) {
	rec := &fakeRecorder{transcript: "My answer."}
	script := &serverScript{continues: []map[string]interface{}{
		{"success": true, "question": "Next?", "category": 2, "score": 6},
	}}

	srv := httptest.NewServer(script.handler())
	t.Cleanup(srv.Close)
	ctrl := NewTurnController(srv.URL, srv.Client(), rec)
	require.NoError(t, ctrl.Start(context.Background(), nil))

	// Simulate a network outage for the submission only.
	goodURL := ctrl.baseURL
	ctrl.baseURL = "http://127.0.0.1:1"
	_, err := ctrl.Submit(context.Background(), "", "")
	require.ErrorIs(t, err, ErrSubmitFailed)
	assert.Equal(t, StateSubmitting, ctrl.State())

	// The recorded answer survived; retry succeeds once the network is back.
	ctrl.baseURL = goodURL
	feedback, err := ctrl.Retry(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, feedback.Score)
	assert.Equal(t, StateRecording, ctrl.State())
}

func TestRetryWithoutFailure(t *testing.T) {
	rec := &fakeRecorder{}
	ctrl := newTestController(t, &serverScript{}, rec)

	_, err := ctrl.Retry(context.Background())
	assert.ErrorIs(t, err, ErrNothingToRetry)
}

func TestCloseReleasesDevices(t *testing.T) {
	rec := &fakeRecorder{}
	ctrl := newTestController(t, &serverScript{}, rec)

	require.NoError(t, ctrl.Start(context.Background(), nil))
	require.True(t, rec.isRecording())

	require.NoError(t, ctrl.Close())
	assert.False(t, rec.isRecording())
	assert.Equal(t, StateClosed, ctrl.State())

	// Closing twice is harmless.
	require.NoError(t, ctrl.Close())
}
