package tts

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/ttsbot/internal/audiostore"
	"github.com/keshon/ttsbot/pkg/throttle"
)

type fakeBackend struct {
	mu    sync.Mutex
	calls []BackendRequest
	audio []byte
	err   error
}

func (f *fakeBackend) Synthesize(_ context.Context, req BackendRequest) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.audio, nil
}

func (f *fakeBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestSynth(t *testing.T, backend Backend) (*Synthesizer, *audiostore.Store) {
	t.Helper()
	store, err := audiostore.New(t.TempDir())
	require.NoError(t, err)
	s := New(backend, store, Config{
		Limits:     DefaultLimits(),
		Defaults:   Options{LanguageCode: "en-US", VoiceName: "en-US-Standard-C", Speed: 1},
		Encoding:   "LINEAR16",
		SampleRate: 48000,
	})
	return s, store
}

func TestSynthesizeStoresAudio(t *testing.T) {
	backend := &fakeBackend{audio: []byte("RIFFdata")}
	s, store := newTestSynth(t, backend)

	h, err := s.Synthesize(context.Background(), "  hello  ", Options{Speed: 1.5})
	require.NoError(t, err)
	defer h.Release()

	data, err := os.ReadFile(h.Path())
	require.NoError(t, err)
	assert.Equal(t, "RIFFdata", string(data))
	assert.Equal(t, 1, store.Live())

	require.Equal(t, 1, backend.callCount())
	got := backend.calls[0]
	assert.Equal(t, "hello", got.Text)
	assert.Equal(t, "en-US", got.LanguageCode)
	assert.Equal(t, "en-US-Standard-C", got.VoiceName)
	assert.InDelta(t, 1.5, got.Speed, 1e-9)
	assert.Equal(t, "LINEAR16", got.Encoding)
	assert.Equal(t, 48000, got.SampleRate)
}

func TestValidationRejectsWithoutCallingBackend(t *testing.T) {
	testCases := []struct {
		name  string
		text  string
		opts  Options
		field string
	}{
		{name: "empty", text: "", field: "text"},
		{name: "whitespace only", text: " \t\n ", field: "text"},
		{name: "too long", text: strings.Repeat("a", 501), field: "text"},
		{name: "speed too low", text: "hi", opts: Options{Speed: 0.1}, field: "speed"},
		{name: "speed too high", text: "hi", opts: Options{Speed: 4.5}, field: "speed"},
		{name: "negative speed", text: "hi", opts: Options{Speed: -1}, field: "speed"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			backend := &fakeBackend{audio: []byte("x")}
			s, store := newTestSynth(t, backend)

			h, err := s.Synthesize(context.Background(), tc.text, tc.opts)
			require.Error(t, err)
			assert.Nil(t, h)

			var vErr *ValidationError
			require.True(t, errors.As(err, &vErr), "want ValidationError, got %T", err)
			assert.Equal(t, tc.field, vErr.Field)
			assert.Zero(t, backend.callCount())
			assert.Zero(t, store.Live())
		})
	}
}

func TestValidationAcceptsBoundaries(t *testing.T) {
	backend := &fakeBackend{audio: []byte("x")}
	s, _ := newTestSynth(t, backend)

	for _, tc := range []struct {
		text  string
		speed float64
	}{
		{text: strings.Repeat("a", 500), speed: 1},
		{text: strings.Repeat("ж", 500), speed: 1}, // counted in characters, not bytes
		{text: "a", speed: 0.25},
		{text: "a", speed: 4.0},
	} {
		h, err := s.Synthesize(context.Background(), tc.text, Options{Speed: tc.speed})
		require.NoError(t, err)
		require.NoError(t, h.Release())
	}
	assert.Equal(t, 4, backend.callCount())
}

func TestBackendErrorsBecomeSynthesisErrors(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		kind ErrorKind
	}{
		{name: "classified", err: &SynthesisError{Kind: KindQuota, Message: "quota exceeded"}, kind: KindQuota},
		{name: "unclassified", err: errors.New("boom"), kind: KindService},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s, store := newTestSynth(t, &fakeBackend{err: tc.err})

			_, err := s.Synthesize(context.Background(), "hello", Options{})
			var sErr *SynthesisError
			require.True(t, errors.As(err, &sErr))
			assert.Equal(t, tc.kind, sErr.Kind)
			assert.Zero(t, store.Live())
		})
	}
}

func TestEmptyAudioIsMalformed(t *testing.T) {
	s, _ := newTestSynth(t, &fakeBackend{audio: nil})

	_, err := s.Synthesize(context.Background(), "hello", Options{})
	var sErr *SynthesisError
	require.True(t, errors.As(err, &sErr))
	assert.Equal(t, KindMalformed, sErr.Kind)
}

func TestHealthCheck(t *testing.T) {
	ok, _ := newTestSynth(t, &fakeBackend{audio: []byte("x")})
	assert.True(t, ok.HealthCheck(context.Background()))

	bad, _ := newTestSynth(t, &fakeBackend{err: errors.New("down")})
	assert.False(t, bad.HealthCheck(context.Background()))
}

func TestLimiterCancelledContext(t *testing.T) {
	backend := &fakeBackend{audio: []byte("x")}
	store, err := audiostore.New(t.TempDir())
	require.NoError(t, err)
	s := New(backend, store, Config{Defaults: Options{LanguageCode: "en-US"}},
		WithLimiter(throttle.NewAdaptiveLimiter(1, 1, 1, 0, 0.5)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = s.Synthesize(ctx, "hello", Options{})
	var sErr *SynthesisError
	require.True(t, errors.As(err, &sErr))
	assert.Equal(t, KindNetwork, sErr.Kind)
	assert.Zero(t, backend.callCount())
}
