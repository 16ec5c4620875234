package tts

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/ttsbot/pkg/throttle"
)

func TestGoogleClientSynthesize(t *testing.T) {
	var got googleSynthRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "secret", r.URL.Query().Get("key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		_ = json.NewEncoder(w).Encode(googleSynthResponse{
			AudioContent: base64.StdEncoding.EncodeToString([]byte("pcm-bytes")),
		})
	}))
	defer srv.Close()

	client := NewGoogleClient(srv.URL+"/v1/text:synthesize", "secret", srv.Client())
	audio, err := client.Synthesize(context.Background(), BackendRequest{
		Text:         "hello",
		LanguageCode: "en-GB",
		VoiceName:    "en-GB-Standard-A",
		Speed:        1.25,
		Encoding:     "LINEAR16",
		SampleRate:   48000,
	})
	require.NoError(t, err)
	assert.Equal(t, "pcm-bytes", string(audio))

	assert.Equal(t, "hello", got.Input.Text)
	assert.Equal(t, "en-GB", got.Voice.LanguageCode)
	assert.Equal(t, "en-GB-Standard-A", got.Voice.Name)
	assert.Equal(t, "LINEAR16", got.AudioConfig.AudioEncoding)
	assert.Equal(t, 48000, got.AudioConfig.SampleRateHertz)
	assert.InDelta(t, 1.25, got.AudioConfig.SpeakingRate, 1e-9)
}

func TestGoogleClientClassifiesFailures(t *testing.T) {
	testCases := []struct {
		name    string
		status  int
		body    string
		kind    ErrorKind
		message string
	}{
		{name: "unauthorized", status: 401, body: `{"error":{"code":401,"message":"API key not valid"}}`, kind: KindAuth, message: "API key not valid"},
		{name: "forbidden", status: 403, body: `{"error":{"code":403,"message":"denied"}}`, kind: KindAuth, message: "denied"},
		{name: "quota", status: 429, body: `{"error":{"code":429,"message":"Quota exceeded"}}`, kind: KindQuota, message: "Quota exceeded"},
		{name: "server", status: 503, body: `unavailable`, kind: KindService, message: "unavailable"},
		{name: "bad json", status: 200, body: `not json`, kind: KindMalformed},
		{name: "no audio", status: 200, body: `{}`, kind: KindMalformed},
		{name: "bad base64", status: 200, body: `{"audioContent":"!!!"}`, kind: KindMalformed},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			client := NewGoogleClient(srv.URL, "", srv.Client())
			_, err := client.Synthesize(context.Background(), BackendRequest{Text: "x", LanguageCode: "en-US"})

			var sErr *SynthesisError
			require.True(t, errors.As(err, &sErr))
			assert.Equal(t, tc.kind, sErr.Kind)
			if tc.message != "" {
				assert.Equal(t, tc.message, sErr.Message)
				assert.Equal(t, tc.status, throttle.StatusOf(err))
			}
		})
	}
}

func TestGoogleClientNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	client := NewGoogleClient(url, "", nil)
	_, err := client.Synthesize(context.Background(), BackendRequest{Text: "x"})

	var sErr *SynthesisError
	require.True(t, errors.As(err, &sErr))
	assert.Equal(t, KindNetwork, sErr.Kind)
}
