package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func newTestClient(rt http.RoundTripper, opts ...Option) *Client {
	return NewClient(&http.Client{Transport: rt}, "test-key", opts...)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
		Header:     make(http.Header),
	}
}

func TestGenerateTextSendsPromptAndJoinsParts(t *testing.T) {
	var (
		seenPath   string
		seenKey    string
		seenMethod string
		seenBody   generateRequest
	)

	client := newTestClient(roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		seenPath = r.URL.Path
		seenKey = r.Header.Get("x-goog-api-key")
		seenMethod = r.Method
		if err := json.NewDecoder(r.Body).Decode(&seenBody); err != nil {
			return nil, err
		}
		return jsonResponse(http.StatusOK, `{"candidates":[{"content":{"parts":[{"text":"[{\"id\":"},{"text":"1}]"}]},"finishReason":"STOP"}]}`), nil
	}), WithModel("gemini-test"), WithBaseURL("http://gemini.local/"))

	text, err := client.GenerateText(context.Background(), "make a quiz")
	require.NoError(t, err)
	assert.Equal(t, `[{"id":1}]`, text)

	assert.Equal(t, http.MethodPost, seenMethod)
	assert.Equal(t, "/v1beta/models/gemini-test:generateContent", seenPath)
	assert.Equal(t, "test-key", seenKey)
	require.Len(t, seenBody.Contents, 1)
	require.Len(t, seenBody.Contents[0].Parts, 1)
	assert.Equal(t, "make a quiz", seenBody.Contents[0].Parts[0].Text)
	assert.Equal(t, "application/json", seenBody.GenerationConfig.ResponseMimeType)
}

func TestGenerateTextPropagatesNonOKStatus(t *testing.T) {
	client := newTestClient(roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusTooManyRequests, `{"error":{"code":429,"message":"quota exhausted","status":"RESOURCE_EXHAUSTED"}}`), nil
	}))

	_, err := client.GenerateText(context.Background(), "prompt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.Contains(t, err.Error(), "quota exhausted")
}

func TestGenerateTextNonJSONErrorBody(t *testing.T) {
	client := newTestClient(roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusBadGateway, "upstream down"), nil
	}))

	_, err := client.GenerateText(context.Background(), "prompt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestGenerateTextJSONDecodeError(t *testing.T) {
	client := newTestClient(roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, "not-json"), nil
	}))

	_, err := client.GenerateText(context.Background(), "prompt")
	assert.Error(t, err)
}

func TestGenerateTextEmptyCandidates(t *testing.T) {
	for name, body := range map[string]string{
		"no candidates": `{"candidates":[]}`,
		"blank text":    `{"candidates":[{"content":{"parts":[{"text":"  "}]}}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			client := newTestClient(roundTripperFunc(func(r *http.Request) (*http.Response, error) {
				return jsonResponse(http.StatusOK, body), nil
			}))

			_, err := client.GenerateText(context.Background(), "prompt")
			assert.ErrorIs(t, err, ErrEmptyResponse)
		})
	}
}

func TestGenerateTextBlockedPrompt(t *testing.T) {
	client := newTestClient(roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"promptFeedback":{"blockReason":"SAFETY"}}`), nil
	}))

	_, err := client.GenerateText(context.Background(), "prompt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SAFETY")
}

func TestGenerateTextTransportError(t *testing.T) {
	boom := errors.New("dial tcp: connection refused")
	client := newTestClient(roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		return nil, boom
	}))

	_, err := client.GenerateText(context.Background(), "prompt")
	assert.ErrorIs(t, err, boom)
}

func TestGenerateTextRequiresAPIKey(t *testing.T) {
	called := false
	client := NewClient(&http.Client{Transport: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		called = true
		return jsonResponse(http.StatusOK, `{}`), nil
	})}, "")

	_, err := client.GenerateText(context.Background(), "prompt")
	assert.Error(t, err)
	assert.False(t, called)
}
