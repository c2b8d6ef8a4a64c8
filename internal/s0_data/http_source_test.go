package s0_data

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/stockbt/internal/contracts"
	"github.com/wonny/stockbt/pkg/config"
	"github.com/wonny/stockbt/pkg/httputil"
)

func serveFiles(t *testing.T, files map[string]string, status map[string]int) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		name := r.URL.Path[len("/daily/"):]
		if code, ok := status[name]; ok {
			w.WriteHeader(code)
			return
		}
		body, ok := files[name]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestHTTPSource_Load(t *testing.T) {
	srv, hits := serveFiles(t, map[string]string{
		BarsFile: "date,instrument_id,open,high,low,close,volume\n" +
			"2024-01-02,600000.SH,10,10.2,9.9,10.1,5000\n" +
			"2024-01-03,600000.SH,10.1,10.3,10,10.2,4000\n",
		StatusFile: "date,instrument_id,status\n2024-01-03,600000.SH,suspended\n",
	}, nil)
	client := httputil.New(config.DataConfig{}, nil).DisableRetry()
	src := NewHTTPSource(srv.URL+"/daily/", client)
	ctx := context.Background()

	bars, err := src.Bars(ctx, day(1), day(31))
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, 10.2, bars[1].Close)

	status, err := src.TradeStatus(ctx, day(1), day(31))
	require.NoError(t, err)
	require.Len(t, status, 1)
	assert.Equal(t, contracts.FlagSuspended, status[0].Flags)

	// 선택 파일은 404 로 건너뜀, 두 번째 조회는 캐시 사용
	first := atomic.LoadInt32(hits)
	_, err = src.Instruments(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, atomic.LoadInt32(hits))
}

func TestHTTPSource_Errors(t *testing.T) {
	client := httputil.New(config.DataConfig{}, nil).DisableRetry()
	ctx := context.Background()

	t.Run("missing bars", func(t *testing.T) {
		srv, _ := serveFiles(t, map[string]string{}, nil)
		_, err := NewHTTPSource(srv.URL+"/daily", client).Bars(ctx, day(1), day(31))
		require.Error(t, err)
		assert.Contains(t, err.Error(), BarsFile)
	})

	t.Run("server error", func(t *testing.T) {
		srv, _ := serveFiles(t, map[string]string{
			BarsFile: "date,instrument_id,open,high,low,close,volume\n",
		}, map[string]int{CalendarFile: http.StatusBadGateway})
		_, err := NewHTTPSource(srv.URL+"/daily", client).Bars(ctx, day(1), day(31))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "502")
	})
}
