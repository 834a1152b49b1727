package defillama

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"coinlake/pkg/provider"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(WithBaseURL(server.URL))
}

func TestProtocolTVL(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/protocol/lido", r.URL.Path)
		w.Write([]byte(`{"tvl": [
			{"date": 1748736000, "totalLiquidityUSD": 32500000000},
			{"date": 1748822400, "totalLiquidityUSD": 32750000000}
		]}`))
	})

	points, err := client.ProtocolTVL(context.Background(), "lido")
	require.NoError(t, err)
	require.Len(t, points, 2)
	require.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), points[0].Timestamp)
	require.Equal(t, 3.25e10, points[0].Metrics["protocol_tvl"])
}

func TestDexVolume(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/summary/dexs/uniswap", r.URL.Path)
		w.Write([]byte(`{"totalDataChart": [[1748736000, 1500000000]]}`))
	})

	points, err := client.DexVolume(context.Background(), "uniswap")
	require.NoError(t, err)
	require.Len(t, points, 1)
	require.Equal(t, 1.5e9, points[0].Metrics["dex_volume"])
}

func TestStatusClassification(t *testing.T) {
	transient := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	_, err := transient.ProtocolTVL(context.Background(), "lido")
	require.True(t, provider.IsTransient(err))

	permanent := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	_, err = permanent.ProtocolTVL(context.Background(), "nope")
	require.True(t, provider.IsPermanent(err))
}

func TestProviderRejectsUnknownKind(t *testing.T) {
	p := &seriesProvider{client: NewClient()}
	_, err := p.FetchSeries(context.Background(), provider.Request{VariantID: "lido", Kind: "market_chart"})
	require.True(t, provider.IsPermanent(err))
}
