package upstream

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runger/edjournal/internal/logging"
)

const testBaseURL = "https://edsm.test"

const systemJSON = `{"name":"Sol","id":27,"id64":10477373803,"coords":{"x":0,"y":0,"z":0},"primaryStar":{"type":"G (White-Yellow) Star","name":"Sol","isScoopable":true}}`

const bodiesJSON = `{"id":27,"id64":10477373803,"name":"Sol","bodyCount":2,"bodies":[{"id":1,"bodyId":0,"name":"Sol","type":"Star","subType":"G (White-Yellow) Star"},{"id":2,"bodyId":3,"name":"Earth","type":"Planet","subType":"Earth-like world","distanceToArrival":499,"isLandable":false,"earthMasses":1}]}`

// newMockClient returns a client that talks to its own mock transport, so
// tests can run in parallel without touching http.DefaultTransport.
func newMockClient(t *testing.T, maxRetries int) (*Client, *httpmock.MockTransport) {
	t.Helper()

	mock := httpmock.NewMockTransport()
	c, err := NewClient(ClientOptions{
		BaseURL:     testBaseURL,
		HTTPClient:  &http.Client{Transport: mock},
		MinInterval: -1,
		MaxRetries:  maxRetries,
		Backoff:     time.Millisecond,
		Logger:      logging.Discard(),
	})
	require.NoError(t, err)
	return c, mock
}

// sequence answers with statuses in order, repeating the last one.
func sequence(calls *atomic.Int32, statuses []int, body string) httpmock.Responder {
	return func(req *http.Request) (*http.Response, error) {
		n := int(calls.Add(1)) - 1
		status := statuses[min(n, len(statuses)-1)]
		if status == 0 {
			return nil, errors.New("connection reset by peer")
		}
		return httpmock.NewStringResponse(status, body), nil
	}
}

func TestFetch_System(t *testing.T) {
	t.Parallel()

	c, mock := newMockClient(t, 3)
	var query string
	mock.RegisterResponder(http.MethodGet, testBaseURL+"/api-v1/system",
		func(req *http.Request) (*http.Response, error) {
			query = req.URL.RawQuery
			return httpmock.NewStringResponse(http.StatusOK, systemJSON), nil
		})

	payload, err := c.Fetch(context.Background(), KindSystem, " Sol ")
	require.NoError(t, err)
	assert.Contains(t, query, "systemName=Sol")
	assert.Contains(t, query, "showCoordinates=1")

	info, err := DecodeSystem(payload)
	require.NoError(t, err)
	assert.Equal(t, "Sol", info.Name)
	assert.Equal(t, int64(10477373803), info.ID64)
	require.NotNil(t, info.PrimaryStar)
	assert.True(t, info.PrimaryStar.IsScoopable)
}

func TestFetch_Bodies(t *testing.T) {
	t.Parallel()

	c, mock := newMockClient(t, 0)
	mock.RegisterResponder(http.MethodGet, testBaseURL+"/api-system-v1/bodies",
		httpmock.NewStringResponder(http.StatusOK, bodiesJSON))

	payload, err := c.Fetch(context.Background(), KindBodies, "Sol")
	require.NoError(t, err)
	info, err := DecodeBodies(payload)
	require.NoError(t, err)
	assert.Equal(t, 2, info.BodyCount)
	require.Len(t, info.Bodies, 2)
	assert.Equal(t, "Earth-like world", info.Bodies[1].SubType)
}

func TestFetch_EmptyResponseIsNotFound(t *testing.T) {
	t.Parallel()

	for _, body := range []string{`{}`, `[]`, ` [ ] `} {
		c, mock := newMockClient(t, 3)
		mock.RegisterResponder(http.MethodGet, testBaseURL+"/api-v1/system",
			httpmock.NewStringResponder(http.StatusOK, body))

		_, err := c.Fetch(context.Background(), KindSystem, "Nowhere")
		assert.ErrorIs(t, err, ErrNotFound, "body %q", body)
		assert.Equal(t, 1, mock.GetTotalCallCount(), "not found must not be retried")
	}
}

func TestFetch_RetriesTransientFailures(t *testing.T) {
	t.Parallel()

	c, mock := newMockClient(t, 3)
	var calls atomic.Int32
	mock.RegisterResponder(http.MethodGet, testBaseURL+"/api-v1/system",
		sequence(&calls, []int{http.StatusTooManyRequests, 0, http.StatusBadGateway, http.StatusOK}, systemJSON))

	payload, err := c.Fetch(context.Background(), KindSystem, "Sol")
	require.NoError(t, err)
	assert.NotEmpty(t, payload)
	assert.Equal(t, int32(4), calls.Load())
}

func TestFetch_GivesUpAfterMaxRetries(t *testing.T) {
	t.Parallel()

	c, mock := newMockClient(t, 2)
	var calls atomic.Int32
	mock.RegisterResponder(http.MethodGet, testBaseURL+"/api-v1/system",
		sequence(&calls, []int{http.StatusServiceUnavailable}, "busy"))

	_, err := c.Fetch(context.Background(), KindSystem, "Sol")
	require.Error(t, err)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusServiceUnavailable, se.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetch_ClientErrorsAreNotRetried(t *testing.T) {
	t.Parallel()

	c, mock := newMockClient(t, 3)
	var calls atomic.Int32
	mock.RegisterResponder(http.MethodGet, testBaseURL+"/api-v1/system",
		sequence(&calls, []int{http.StatusBadRequest}, "bad"))

	_, err := c.Fetch(context.Background(), KindSystem, "Sol")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.False(t, se.Retryable())
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetch_ErrorBodyCutOnRuneBoundary(t *testing.T) {
	t.Parallel()

	c, mock := newMockClient(t, 0)
	// 199 ASCII bytes, then a three-byte rune straddling the limit.
	body := strings.Repeat("a", 199) + "€ and more"
	mock.RegisterResponder(http.MethodGet, testBaseURL+"/api-v1/system",
		httpmock.NewStringResponder(http.StatusBadRequest, body))

	_, err := c.Fetch(context.Background(), KindSystem, "Sol")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.True(t, utf8.ValidString(se.Body))
	assert.Equal(t, strings.Repeat("a", 199), se.Body)
	assert.True(t, utf8.ValidString(err.Error()))
}

func TestSnippet(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "short", snippet([]byte("  short \n"), 200))
	assert.Equal(t, "ab", snippet([]byte("ab€"), 4))
	assert.Equal(t, "ab€", snippet([]byte("ab€"), 5))
	assert.Equal(t, "\uFFFDx", snippet([]byte{0xff, 'x'}, 200))
	assert.Equal(t, "", snippet([]byte("€"), 2))
}

func TestFetch_NotFoundStatus(t *testing.T) {
	t.Parallel()

	c, mock := newMockClient(t, 3)
	mock.RegisterResponder(http.MethodGet, testBaseURL+"/api-v1/system",
		httpmock.NewStringResponder(http.StatusNotFound, ""))

	_, err := c.Fetch(context.Background(), KindSystem, "Sol")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFetch_CancelledDuringBackoff(t *testing.T) {
	t.Parallel()

	mock := httpmock.NewMockTransport()
	c, err := NewClient(ClientOptions{
		BaseURL:     testBaseURL,
		HTTPClient:  &http.Client{Transport: mock},
		MinInterval: -1,
		MaxRetries:  3,
		Backoff:     time.Hour,
		Logger:      logging.Discard(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	mock.RegisterResponder(http.MethodGet, testBaseURL+"/api-v1/system",
		func(req *http.Request) (*http.Response, error) {
			cancel()
			return httpmock.NewStringResponse(http.StatusServiceUnavailable, ""), nil
		})

	_, err = c.Fetch(ctx, KindSystem, "Sol")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFetch_RejectsBadInput(t *testing.T) {
	t.Parallel()

	c, _ := newMockClient(t, 0)
	_, err := c.Fetch(context.Background(), KindSystem, "  ")
	assert.Error(t, err)
	_, err = c.Fetch(context.Background(), "stations", "Sol")
	assert.Error(t, err)

	_, err = NewClient(ClientOptions{})
	assert.Error(t, err)
}

func TestClient_RequestsAreSpaced(t *testing.T) {
	t.Parallel()

	mock := httpmock.NewMockTransport()
	mock.RegisterResponder(http.MethodGet, testBaseURL+"/api-v1/system",
		httpmock.NewStringResponder(http.StatusOK, systemJSON))
	c, err := NewClient(ClientOptions{
		BaseURL:     testBaseURL,
		HTTPClient:  &http.Client{Transport: mock},
		MinInterval: 50 * time.Millisecond,
		Logger:      logging.Discard(),
	})
	require.NoError(t, err)

	start := time.Now()
	for range 3 {
		_, err := c.Fetch(context.Background(), KindSystem, "Sol")
		require.NoError(t, err)
	}
	// The first request passes at once; the next two wait one interval each.
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}
