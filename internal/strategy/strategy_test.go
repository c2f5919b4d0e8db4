package strategy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anivertis/market-pipeline/internal/model"
)

func testFactory() *Factory {
	return NewFactory(FactoryConfig{})
}

func TestSelectPrecedence(t *testing.T) {
	f := testFactory()

	cases := []struct {
		name string
		src  model.Source
		want string
	}{
		{
			name: "manual short-circuits everything",
			src:  model.Source{ExtractionMode: model.ModeManual, IsFeed: true, RequiresBrowser: true},
			want: "manual",
		},
		{
			name: "hostile host forces browser over feed flag",
			src:  model.Source{URL: "https://www.reuters.com/markets/commodities/", IsFeed: true},
			want: "browser",
		},
		{
			name: "feed beats browser flag",
			src:  model.Source{URL: "https://example.com/rss", IsFeed: true, RequiresBrowser: true},
			want: "feed",
		},
		{
			name: "browser flag beats document flag",
			src:  model.Source{URL: "https://example.com", RequiresBrowser: true, IsDocument: true},
			want: "browser",
		},
		{
			name: "document before static",
			src:  model.Source{URL: "https://example.com/boletim.pdf", IsDocument: true},
			want: "document",
		},
		{
			name: "static is the default",
			src:  model.Source{URL: "https://example.com"},
			want: "static",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, f.Select(tc.src).Name())
		})
	}
}

func TestHostileHostMatching(t *testing.T) {
	assert.True(t, isHostileHost("https://www.reuters.com/article/x"))
	assert.True(t, isHostileHost("https://noticiasagricolas.com.br/noticias"))
	assert.False(t, isHostileHost("https://reuters.com.evil.example/phish"))
	assert.False(t, isHostileHost("https://cepea.esalq.usp.br/br/indicador/boi-gordo.aspx"))
}

func TestManualStrategy(t *testing.T) {
	m := &Manual{}

	payload, err := m.Execute(context.Background(), model.Source{
		ID:          "manual-diesel",
		AssetID:     "DIESEL",
		SourceUnit:  "BRL/L",
		ManualValue: "5,90",
	})
	require.NoError(t, err)
	require.NotNil(t, payload.Measurement)
	assert.Equal(t, "5,90", payload.Measurement.RawValue)
	assert.True(t, payload.Measurement.Success)

	_, err = m.Execute(context.Background(), model.Source{ID: "broken"})
	require.Error(t, err)
}

func TestBlacklist(t *testing.T) {
	assert.True(t, isBlacklisted("https://portal.example/entretenimento/novela-final"))
	assert.True(t, isBlacklisted("https://portal.example/ESPORTE/time-vence"))
	assert.False(t, isBlacklisted("https://portal.example/economia/boi-gordo-recorde"))
}
