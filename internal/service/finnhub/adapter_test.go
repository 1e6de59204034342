package finnhub

import (
	"errors"
	"testing"
	"time"

	"SignalDNA/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeStreamFrame(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    int
		wantErr error
	}{
		{"news frame", `{"type":"news","data":[{"headline":"a"},{"headline":"b"}]}`, 2, nil},
		{"ping frame", `{"type":"ping"}`, 0, nil},
		{"trade frame", `{"type":"trade","data":[{"headline":"x"}]}`, 0, nil},
		{"empty news", `{"type":"news","data":[]}`, 0, nil},
		{"not json", `hello`, 0, ErrMalformedPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			arts, err := DecodeStreamFrame([]byte(tt.raw))
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr))
				return
			}
			require.NoError(t, err)
			assert.Len(t, arts, tt.want)
		})
	}
}

func TestDecodeWebhookBody(t *testing.T) {
	arts, err := DecodeWebhookBody([]byte(`{"type":"whatever","data":[{"headline":"Fed holds"}]}`))
	require.NoError(t, err)
	require.Len(t, arts, 1)
	assert.Equal(t, "Fed holds", arts[0].Headline)

	_, err = DecodeWebhookBody([]byte(`{"type":"news","data":[]}`))
	assert.ErrorIs(t, err, ErrEmptyBatch)

	_, err = DecodeWebhookBody([]byte(`{"type":"news"}`))
	assert.ErrorIs(t, err, ErrEmptyBatch)

	_, err = DecodeWebhookBody([]byte(`{`))
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestDecodeKafkaRecord(t *testing.T) {
	arts, err := DecodeKafkaRecord([]byte(`{"headline":"CPI jumps","id":7}`))
	require.NoError(t, err)
	require.Len(t, arts, 1)
	assert.Equal(t, int64(7), arts[0].ID)

	arts, err = DecodeKafkaRecord([]byte(`{"type":"news","data":[{"headline":"a"},{"headline":"b"}]}`))
	require.NoError(t, err)
	assert.Len(t, arts, 2)

	_, err = DecodeKafkaRecord([]byte(`{"data":[]}`))
	assert.ErrorIs(t, err, ErrEmptyBatch)

	_, err = DecodeKafkaRecord([]byte(`[1,2]`))
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestDecodeUnknownOrigin(t *testing.T) {
	_, err := Decode("carrier-pigeon", []byte(`{}`))
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestNormalizeUsesFirstArticle(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ev, err := Normalize([]models.NewsArticle{
		{ID: 42, Headline: "Conflict escalates", Summary: "details", Datetime: 1714564800},
		{ID: 43, Headline: "Fed cuts"},
	}, models.OriginWebhook, at)

	require.NoError(t, err)
	assert.Equal(t, "42", ev.ID)
	assert.Equal(t, "Conflict escalates", ev.Headline)
	assert.Equal(t, "details", ev.Body)
	assert.Equal(t, models.OriginWebhook, ev.Source)
	assert.Equal(t, at, ev.ReceivedAt)
	assert.Equal(t, time.Unix(1714564800, 0).UTC(), ev.PublishedAt)
}

func TestNormalizeDefaultsSource(t *testing.T) {
	ev, err := Normalize([]models.NewsArticle{{Headline: "x"}}, "", time.Now())
	require.NoError(t, err)
	assert.Equal(t, "finnhub", ev.Source)
	assert.Empty(t, ev.ID)
}

func TestNormalizeRejects(t *testing.T) {
	_, err := Normalize(nil, models.OriginStream, time.Now())
	assert.ErrorIs(t, err, ErrEmptyBatch)

	_, err = Normalize([]models.NewsArticle{{Headline: "   "}}, models.OriginStream, time.Now())
	assert.ErrorIs(t, err, ErrMissingHeadline)
}

func TestNormalizeIgnoresMalformedURL(t *testing.T) {
	arts, err := Decode(models.OriginWebhook, []byte(`{"type":"news","data":[{"headline":"Geopolitical tensions rise","url":"/relative/path"}]}`))
	require.NoError(t, err)

	ev, err := Normalize(arts, models.OriginWebhook, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "Geopolitical tensions rise", ev.Headline)
	assert.Equal(t, models.OriginWebhook, ev.Source)
}
