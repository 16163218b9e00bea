package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"thai-lotto-bot/internal/config"
	"thai-lotto-bot/internal/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const feedBody = `{"status":"success","message":"ok","data":[
	{"date":"2024-02-16","first_prize":"123456","three_front":"012","three_back":"789","last2":"05"},
	{"date":"2024-02-01","first_prize":"654321","three_front":"345","three_back":"678","last2":"9"},
	{"date":"not-a-date","first_prize":"000000","three_front":"","three_back":"","last2":"00"}
]}`

func newTestClient(url string, retries int) *Client {
	return NewClient(&config.API{
		URL:        url,
		Timeout:    time.Second,
		RetryCount: retries,
		RetryDelay: time.Millisecond,
	})
}

func TestGetHistoricalData(t *testing.T) {
	var gotLimit string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLimit = r.URL.Query().Get("limit")
		w.Write([]byte(feedBody))
	}))
	defer srv.Close()

	records, err := newTestClient(srv.URL, 0).GetHistoricalData(context.Background(), 50)
	require.NoError(t, err)

	assert.Equal(t, "50", gotLimit)
	require.Len(t, records, 2)
	assert.Equal(t, "2024-02-16", database.FormatDate(records[0].DrawDate))
	assert.Equal(t, "456", records[0].FirstPrizeLast3)
	assert.Equal(t, "friday", records[0].DayOfWeek)
	assert.Equal(t, "09", records[1].Last2)
}

func TestFetchDrawsRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(feedBody))
	}))
	defer srv.Close()

	record, err := newTestClient(srv.URL, 3).FetchLatestDraw(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "05", record.Last2)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchDrawsDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, 3).FetchDraws(context.Background(), 1)
	require.Error(t, err)

	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchDrawsRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"error","message":"maintenance","data":[]}`))
	}))
	defer srv.Close()

	err := newTestClient(srv.URL, 2).HealthCheck(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maintenance")
}

func TestConvertAPIData(t *testing.T) {
	_, err := ConvertAPIData(database.APIDrawData{Date: "2024-02-16", FirstPrize: "12x456"})
	assert.Error(t, err)

	r, err := ConvertAPIData(database.APIDrawData{Date: "2024-03-01", Last2: "7"})
	require.NoError(t, err)
	assert.Equal(t, "07", r.Last2)
	assert.Empty(t, r.FirstPrizeLast3)
}
