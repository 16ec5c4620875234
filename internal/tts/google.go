package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2/google"
)

const (
	DefaultGoogleEndpoint = "https://texttospeech.googleapis.com/v1/text:synthesize"
	googleScope           = "https://www.googleapis.com/auth/cloud-platform"
)

type googleSynthRequest struct {
	Input       googleSynthInput       `json:"input"`
	Voice       googleSynthVoice       `json:"voice"`
	AudioConfig googleSynthAudioConfig `json:"audioConfig"`
}

type googleSynthInput struct {
	Text string `json:"text"`
}

type googleSynthVoice struct {
	LanguageCode string `json:"languageCode"`
	Name         string `json:"name,omitempty"`
}

type googleSynthAudioConfig struct {
	AudioEncoding   string  `json:"audioEncoding"`
	SampleRateHertz int     `json:"sampleRateHertz,omitempty"`
	SpeakingRate    float64 `json:"speakingRate,omitempty"`
}

type googleSynthResponse struct {
	AudioContent string `json:"audioContent"` // base64
}

type googleErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// httpError carries the backend's HTTP status so the throttle can react to it.
type httpError struct {
	code    int
	message string
}

func (e *httpError) Error() string   { return fmt.Sprintf("HTTP %d: %s", e.code, e.message) }
func (e *httpError) StatusCode() int { return e.code }

// GoogleClient talks to the Google Cloud Text-to-Speech REST API.
type GoogleClient struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

// NewGoogleClient builds a client. With an API key the key is sent as a
// query parameter; otherwise httpClient must already carry credentials.
func NewGoogleClient(endpoint, apiKey string, httpClient *http.Client) *GoogleClient {
	if endpoint == "" {
		endpoint = DefaultGoogleEndpoint
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &GoogleClient{endpoint: endpoint, apiKey: apiKey, http: httpClient}
}

// NewGoogleClientFromEnvironment uses apiKey when set, and Application
// Default Credentials otherwise.
func NewGoogleClientFromEnvironment(ctx context.Context, endpoint, apiKey string) (*GoogleClient, error) {
	if apiKey != "" {
		return NewGoogleClient(endpoint, apiKey, nil), nil
	}
	hc, err := google.DefaultClient(ctx, googleScope)
	if err != nil {
		return nil, fmt.Errorf("no GOOGLE_TTS_API_KEY and no default credentials: %w", err)
	}
	hc.Timeout = 30 * time.Second
	return NewGoogleClient(endpoint, "", hc), nil
}

// Synthesize implements Backend.
func (g *GoogleClient) Synthesize(ctx context.Context, req BackendRequest) ([]byte, error) {
	body, err := json.Marshal(googleSynthRequest{
		Input: googleSynthInput{Text: req.Text},
		Voice: googleSynthVoice{
			LanguageCode: req.LanguageCode,
			Name:         req.VoiceName,
		},
		AudioConfig: googleSynthAudioConfig{
			AudioEncoding:   req.Encoding,
			SampleRateHertz: req.SampleRate,
			SpeakingRate:    req.Speed,
		},
	})
	if err != nil {
		return nil, &SynthesisError{Kind: KindMalformed, Message: "could not encode request", Err: err}
	}

	target := g.endpoint
	if g.apiKey != "" {
		u, err := url.Parse(g.endpoint)
		if err != nil {
			return nil, &SynthesisError{Kind: KindNetwork, Message: "bad endpoint", Err: err}
		}
		q := u.Query()
		q.Set("key", g.apiKey)
		u.RawQuery = q.Encode()
		target = u.String()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, &SynthesisError{Kind: KindNetwork, Message: "could not build request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.http.Do(httpReq)
	if err != nil {
		return nil, &SynthesisError{Kind: KindNetwork, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, &SynthesisError{Kind: KindNetwork, Message: "could not read response", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		herr := &httpError{code: resp.StatusCode, message: googleErrorMessage(raw)}
		return nil, &SynthesisError{Kind: kindForStatus(resp.StatusCode), Message: herr.message, Err: herr}
	}

	var out googleSynthResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &SynthesisError{Kind: KindMalformed, Message: "response is not JSON", Err: err}
	}
	if out.AudioContent == "" {
		return nil, &SynthesisError{Kind: KindMalformed, Message: "response has no audioContent"}
	}
	audio, err := base64.StdEncoding.DecodeString(out.AudioContent)
	if err != nil {
		return nil, &SynthesisError{Kind: KindMalformed, Message: "audioContent is not base64", Err: err}
	}
	return audio, nil
}

func kindForStatus(code int) ErrorKind {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return KindAuth
	case code == http.StatusTooManyRequests:
		return KindQuota
	default:
		return KindService
	}
}

func googleErrorMessage(raw []byte) string {
	var e googleErrorResponse
	if err := json.Unmarshal(raw, &e); err == nil && e.Error.Message != "" {
		return e.Error.Message
	}
	if len(raw) > 200 {
		raw = raw[:200]
	}
	if len(raw) == 0 {
		return "empty response"
	}
	return string(raw)
}

var _ Backend = (*GoogleClient)(nil)
