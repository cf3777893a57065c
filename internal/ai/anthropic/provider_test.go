package anthropic

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ferrostad/snaplist/internal/ai"
)

func textResponse(text string) *apiResponse {
	resp := &apiResponse{}
	resp.Content = []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}{
		{Type: "text", Text: text},
	}
	return resp
}

func TestParseDraft(t *testing.T) {
	t.Run("plain json", func(t *testing.T) {
		draft, err := parseDraft(textResponse(`{"title":"Vintage Lamp","description":"Brass desk lamp from the 60s.","condition":"good","price_cents":4500}`))
		require.NoError(t, err)
		assert.Equal(t, "Vintage Lamp", draft.Title)
		assert.Equal(t, "good", draft.Condition)
		require.NotNil(t, draft.PriceCents)
		assert.Equal(t, 4500, *draft.PriceCents)
	})

	t.Run("json wrapped in markdown fences", func(t *testing.T) {
		text := "```json\n{\"title\":\"Bike\",\"description\":\"Commuter bike.\",\"condition\":\"fair\"}\n```"
		draft, err := parseDraft(textResponse(text))
		require.NoError(t, err)
		assert.Equal(t, "Bike", draft.Title)
	})

	t.Run("fences without language tag", func(t *testing.T) {
		text := "```\n{\"title\":\"Bike\",\"description\":\"Commuter bike.\",\"condition\":\"fair\"}\n```"
		draft, err := parseDraft(textResponse(text))
		require.NoError(t, err)
		assert.Equal(t, "Bike", draft.Title)
	})

	t.Run("missing required field is a bad response", func(t *testing.T) {
		_, err := parseDraft(textResponse(`{"title":"Bike","condition":"fair"}`))
		assert.ErrorIs(t, err, ai.ErrBadResponse)
	})

	t.Run("non-json text is a bad response", func(t *testing.T) {
		_, err := parseDraft(textResponse("I can see a bicycle in this photo."))
		assert.ErrorIs(t, err, ai.ErrBadResponse)
	})

	t.Run("empty content is a bad response", func(t *testing.T) {
		_, err := parseDraft(&apiResponse{})
		assert.ErrorIs(t, err, ai.ErrBadResponse)
	})
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no fences passes through", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"surrounding whitespace", "  \n```json\n{\"a\":1}\n```\n  ", `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripFences(tt.in))
		})
	}
}

func TestCalculateCost(t *testing.T) {
	// 1M input tokens at 300 cents, 1M output at 1500.
	assert.Equal(t, 300, calculateCost(1_000_000, 0))
	assert.Equal(t, 1500, calculateCost(0, 1_000_000))
	// A typical single analysis rounds down to zero cents.
	assert.Equal(t, 0, calculateCost(1500, 400))
	assert.Equal(t, 1, calculateCost(2000, 1000))
}

func TestMapHTTPError(t *testing.T) {
	assert.ErrorIs(t, mapHTTPError(http.StatusUnauthorized, nil), ai.ErrUnauthorized)
	assert.ErrorIs(t, mapHTTPError(http.StatusTooManyRequests, nil), ai.ErrRateLimited)
	assert.ErrorIs(t, mapHTTPError(http.StatusServiceUnavailable, nil), ai.ErrUnavailable)
	assert.ErrorIs(t, mapHTTPError(http.StatusBadGateway, nil), ai.ErrUnavailable)

	body := []byte(`{"error":{"type":"invalid_request_error","message":"image too large"}}`)
	assert.ErrorIs(t, mapHTTPError(http.StatusBadRequest, body), ai.ErrInvalidImage)

	err := mapHTTPError(http.StatusBadRequest, []byte(`{"error":{"type":"other","message":"nope"}}`))
	assert.False(t, errors.Is(err, ai.ErrInvalidImage))
}

func TestNew(t *testing.T) {
	t.Run("requires an api key", func(t *testing.T) {
		_, err := New(Config{}, nil)
		assert.Error(t, err)
	})

	t.Run("fills defaults", func(t *testing.T) {
		p, err := New(Config{APIKey: "sk-test"}, nil)
		require.NoError(t, err)
		assert.Equal(t, DefaultModel, p.config.Model)
		assert.Equal(t, 3, p.config.ProviderConfig.MaxRetries)
	})
}
