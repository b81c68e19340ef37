package petsgo

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func newTestClient(t *testing.T, server *httptest.Server, opts *ClientOptions) *Client {
	t.Helper()
	if opts == nil {
		opts = &ClientOptions{}
	}
	opts.BaseURL = server.URL + "/facial/"
	client, err := NewClient(opts)
	require.NoError(t, err)
	return client
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func TestRequest_UnwrapsEnvelope(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/facial/app/pets", r.URL.Path)
		writeJSON(w, http.StatusOK, `{"code":0,"data":{"foo":1},"message":"ok"}`)
	})
	client := newTestClient(t, server, nil)

	var result map[string]int
	err := client.Get(context.Background(), "/app/pets", nil, &result)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"foo": 1}, result)
}

func TestRequest_BodyWithoutDataIsVerbatim(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"list":[1,2],"total":2}`)
	})
	client := newTestClient(t, server, nil)

	var result interface{}
	err := client.Get(context.Background(), "app/pets", nil, &result)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"list": []interface{}{float64(1), float64(2)}, "total": float64(2)}, result)
}

func TestRequest_TextBody(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("pong"))
	})
	client := newTestClient(t, server, nil)

	var result string
	require.NoError(t, client.Get(context.Background(), "ping", nil, &result))
	assert.Equal(t, "pong", result)

	var value interface{}
	require.NoError(t, client.Get(context.Background(), "ping", nil, &value))
	assert.Equal(t, "pong", value)
}

func TestRequest_QueryParams(t *testing.T) {
	var rawQuery string
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		rawQuery = r.URL.RawQuery
		writeJSON(w, http.StatusOK, `{"data":[]}`)
	})
	client := newTestClient(t, server, nil)

	params := Params{}.
		Add("pageNum", 1).
		Add("keyword", "").
		Add("status", nil).
		Add("sort", "createTime desc")
	err := client.Get(context.Background(), "app/videos", &RequestConfig{Params: params}, nil)
	require.NoError(t, err)
	assert.Equal(t, "pageNum=1&sort=createTime+desc", rawQuery)
}

func TestRequest_Headers(t *testing.T) {
	var got http.Header
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		writeJSON(w, http.StatusOK, `{"data":null}`)
	})
	client := newTestClient(t, server, &ClientOptions{
		Token:   "tok",
		Headers: map[string]string{"X-App-Version": "2.1.0", "X-Platform": "ios"},
	})

	err := client.Get(context.Background(), "app/pets", &RequestConfig{
		Headers: map[string]string{
			"x-platform":    "cli",
			"authorization": "Basic nope",
		},
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.Equal(t, "2.1.0", got.Get("X-App-Version"))
	assert.Equal(t, "cli", got.Get("X-Platform"))
	assert.Equal(t, []string{"Bearer tok"}, got.Values("Authorization"))
	assert.NotEmpty(t, got.Get("X-Request-ID"))
	assert.Equal(t, UserAgent, got.Get("User-Agent"))
}

func TestRequest_CallerOverridesContentType(t *testing.T) {
	var contentType, body string
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		writeJSON(w, http.StatusOK, `{}`)
	})
	client := newTestClient(t, server, nil)

	err := client.Post(context.Background(), "app/feedback", "plain words", &RequestConfig{
		Headers: map[string]string{"content-type": "text/plain"},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "text/plain", contentType)
	assert.Equal(t, "plain words", body)
}

func TestRequest_NoAuthorizationWhenLoggedOut(t *testing.T) {
	var headers []http.Header
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		headers = append(headers, r.Header.Clone())
		writeJSON(w, http.StatusOK, `{}`)
	})
	client := newTestClient(t, server, &ClientOptions{Token: "tok"})

	require.NoError(t, client.Get(context.Background(), "a", nil, nil))
	client.SetAuthToken("")
	require.NoError(t, client.Get(context.Background(), "a", nil, nil))

	require.Len(t, headers, 2)
	assert.Equal(t, "Bearer tok", headers[0].Get("Authorization"))
	_, present := headers[1]["Authorization"]
	assert.False(t, present)
}

func TestRequest_GetNeverSendsBody(t *testing.T) {
	var body []byte
	var contentLength int64
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		contentLength = r.ContentLength
		writeJSON(w, http.StatusOK, `{}`)
	})
	client := newTestClient(t, server, nil)

	err := client.Request(context.Background(), "app/pets", &RequestConfig{
		Method: "get",
		Data:   map[string]string{"ignored": "yes"},
	}, nil)
	require.NoError(t, err)
	assert.Empty(t, body)
	assert.Equal(t, int64(0), contentLength)
}

func TestRequest_PostEncodesJSON(t *testing.T) {
	var method, body string
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		writeJSON(w, http.StatusOK, `{"code":0,"data":{"id":7}}`)
	})
	client := newTestClient(t, server, nil)

	var created struct {
		ID int `json:"id"`
	}
	err := client.Patch(context.Background(), "app/pets/7", map[string]interface{}{"name": "Rex", "age": 3}, nil, &created)
	require.NoError(t, err)
	assert.Equal(t, http.MethodPatch, method)
	assert.JSONEq(t, `{"name":"Rex","age":3}`, body)
	assert.Equal(t, 7, created.ID)
}

func TestRequest_AbsoluteURL(t *testing.T) {
	var path string
	other := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		writeJSON(w, http.StatusOK, `{}`)
	})
	base := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("base server should not be called")
	})
	client := newTestClient(t, base, nil)

	require.NoError(t, client.Get(context.Background(), other.URL+"/upload/sign", nil, nil))
	assert.Equal(t, "/upload/sign", path)
}

func TestRequest_FailureClassification(t *testing.T) {
	tests := []struct {
		name        string
		handler     http.HandlerFunc
		wantStatus  int
		wantCode    int
		wantMessage string
		wantErr     error
	}{
		{
			name: "json message",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusBadRequest, `{"code":1003,"message":"pet name taken"}`)
			},
			wantStatus:  400,
			wantCode:    1003,
			wantMessage: "pet name taken",
			wantErr:     ErrRequestFailed,
		},
		{
			name: "text body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/html")
				w.WriteHeader(http.StatusBadGateway)
				_, _ = w.Write([]byte("Bad Gateway"))
			},
			wantStatus:  502,
			wantCode:    NoCode,
			wantMessage: "Bad Gateway",
			wantErr:     ErrServerError,
		},
		{
			name: "empty body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			},
			wantStatus:  404,
			wantCode:    NoCode,
			wantMessage: "request failed 404",
			wantErr:     ErrRequestFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, newTestServer(t, tt.handler), nil)

			err := client.Get(context.Background(), "x", nil, nil)
			require.Error(t, err)

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.wantStatus, apiErr.StatusCode)
			assert.Equal(t, tt.wantCode, apiErr.Code)
			assert.Equal(t, tt.wantMessage, apiErr.Message)
			assert.NotEmpty(t, apiErr.RequestID)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRequest_MalformedJSON(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"data": {`)
	})

	strict := newTestClient(t, server, nil)
	var result interface{}
	err := strict.Get(context.Background(), "x", nil, &result)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedBody)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, NoCode, apiErr.Code)
	assert.Equal(t, http.StatusOK, apiErr.StatusCode)
	assert.Equal(t, `{"data": {`, apiErr.Body)

	lenient := newTestClient(t, server, &ClientOptions{LenientJSON: true})
	require.NoError(t, lenient.Get(context.Background(), "x", nil, &result))
	assert.Equal(t, map[string]interface{}{}, result)
}

func TestRequest_EnvelopeOverride(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"code":0,"data":{"a":1}}`)
	})
	client := newTestClient(t, server, &ClientOptions{Envelope: EnvelopeNone})

	var raw json.RawMessage
	require.NoError(t, client.Get(context.Background(), "x", nil, &raw))
	assert.JSONEq(t, `{"code":0,"data":{"a":1}}`, string(raw))

	require.NoError(t, client.Get(context.Background(), "x", &RequestConfig{Envelope: Envelope(EnvelopeAuto)}, &raw))
	assert.JSONEq(t, `{"a":1}`, string(raw))
}

func TestRequest_Timeout(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	client := newTestClient(t, server, nil)

	start := time.Now()
	err := client.Get(context.Background(), "slow", &RequestConfig{Timeout: Timeout(50 * time.Millisecond)}, nil)
	elapsed := time.Since(start)

	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, NoCode, apiErr.Code)
	assert.Equal(t, 0, apiErr.StatusCode)
	assert.Equal(t, "request timed out", apiErr.Message)
	assert.True(t, IsTimeout(err))
	assert.True(t, IsRetryable(err))
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.Less(t, elapsed, time.Second)
}

func TestRequest_InvalidInput(t *testing.T) {
	client, err := NewClient(&ClientOptions{BaseURL: "http://127.0.0.1:1"})
	require.NoError(t, err)

	err = client.Request(context.Background(), "x", &RequestConfig{Method: "TRACE"}, nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, NoCode, apiErr.Code)

	err = client.Get(context.Background(), "", nil, nil)
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "path is required", apiErr.Message)
}

func TestRequest_RefreshAndRetry(t *testing.T) {
	var calls int32
	var requestIDs []string
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		requestIDs = append(requestIDs, r.Header.Get("X-Request-ID"))
		if r.Header.Get("Authorization") != "Bearer fresh" {
			writeJSON(w, http.StatusUnauthorized, `{"code":401,"message":"token expired"}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"code":0,"data":{"foo":1}}`)
	})

	var refreshed []bool
	client := newTestClient(t, server, &ClientOptions{
		Token: "stale",
		Hooks: &Hooks{
			OnRefresh: func(ctx context.Context, ok bool, err error) { refreshed = append(refreshed, ok) },
		},
	})
	client.SetOn401(func(ctx context.Context) (bool, error) {
		client.SetAuthToken("fresh")
		return true, nil
	})

	var result map[string]int
	err := client.Get(context.Background(), "app/pets", nil, &result)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"foo": 1}, result)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	require.Len(t, requestIDs, 2)
	assert.Equal(t, requestIDs[0], requestIDs[1])
	assert.Equal(t, []bool{true}, refreshed)
}

func TestRequest_RefreshDeclined(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		callback RefreshFunc
		wantCode int
	}{
		{
			name:     "callback returns false",
			body:     `{"code":40101,"message":"expired"}`,
			callback: func(ctx context.Context) (bool, error) { return false, nil },
			wantCode: 40101,
		},
		{
			name:     "callback fails",
			body:     `{"message":"expired"}`,
			callback: func(ctx context.Context) (bool, error) { return false, errors.New("boom") },
			wantCode: NoCode,
		},
		{
			name:     "callback panics",
			body:     `{"code":40101,"message":"expired"}`,
			callback: func(ctx context.Context) (bool, error) { panic("boom") },
			wantCode: 40101,
		},
		{
			name:     "no callback",
			body:     `{"code":40101}`,
			wantCode: 40101,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				writeJSON(w, http.StatusUnauthorized, tt.body)
			})
			client := newTestClient(t, server, &ClientOptions{Token: "stale"})
			client.SetOn401(tt.callback)

			err := client.Get(context.Background(), "x", nil, nil)
			require.Error(t, err)

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
			assert.Equal(t, tt.wantCode, apiErr.Code)
			assert.True(t, IsUnauthorized(err))
			assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
		})
	}
}

func TestRequest_RetryOutcomeIsFinal(t *testing.T) {
	var calls, refreshes int32
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeJSON(w, http.StatusUnauthorized, `{"code":401}`)
	})
	client := newTestClient(t, server, &ClientOptions{Token: "stale"})
	client.SetOn401(func(ctx context.Context) (bool, error) {
		atomic.AddInt32(&refreshes, 1)
		return true, nil
	})

	err := client.Get(context.Background(), "x", nil, nil)
	assert.True(t, IsUnauthorized(err))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, int32(1), atomic.LoadInt32(&refreshes))
}

func TestRequest_RetryFailureIsReturned(t *testing.T) {
	tests := []struct {
		name    string
		retry   http.HandlerFunc
		timeout time.Duration
		check   func(t *testing.T, err error)
	}{
		{
			name: "server error",
			retry: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusInternalServerError, `{"message":"db down"}`)
			},
			check: func(t *testing.T, err error) {
				var apiErr *APIError
				require.ErrorAs(t, err, &apiErr)
				assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
				assert.Equal(t, "db down", apiErr.Message)
				assert.False(t, IsUnauthorized(err))
			},
		},
		{
			name: "timeout",
			retry: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(time.Second):
				}
			},
			timeout: 50 * time.Millisecond,
			check: func(t *testing.T, err error) {
				assert.True(t, IsTimeout(err))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				if atomic.AddInt32(&calls, 1) == 1 {
					writeJSON(w, http.StatusUnauthorized, `{"code":401}`)
					return
				}
				tt.retry(w, r)
			})
			opts := &ClientOptions{Token: "stale"}
			if tt.timeout > 0 {
				opts.Timeout = tt.timeout
			}
			client := newTestClient(t, server, opts)
			client.SetOn401(func(ctx context.Context) (bool, error) {
				client.SetAuthToken("fresh")
				return true, nil
			})

			err := client.Get(context.Background(), "x", nil, nil)
			require.Error(t, err)
			tt.check(t, err)
			assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
		})
	}
}

func TestRequest_DeadlineDuringRefresh(t *testing.T) {
	var calls int32
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeJSON(w, http.StatusUnauthorized, `{"code":401,"message":"expired"}`)
	})

	var hookErrs []error
	client := newTestClient(t, server, &ClientOptions{
		Token: "stale",
		Hooks: &Hooks{OnError: func(ctx context.Context, err error) { hookErrs = append(hookErrs, err) }},
	})
	client.SetOn401(func(ctx context.Context) (bool, error) {
		time.Sleep(300 * time.Millisecond)
		return true, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := client.Get(ctx, "x", nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, IsUnauthorized(err))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.False(t, apiErr.HasStatus())
	assert.NotEmpty(t, apiErr.RequestID)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	require.Len(t, hookErrs, 1)
	assert.Equal(t, err, hookErrs[0])
}

func TestRequest_SkipAuthRefresh(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, `{}`)
	})
	client := newTestClient(t, server, nil)
	client.SetOn401(func(ctx context.Context) (bool, error) {
		t.Error("refresh should not run")
		return false, nil
	})

	err := client.Get(context.Background(), "x", &RequestConfig{SkipAuthRefresh: true}, nil)
	assert.True(t, IsUnauthorized(err))
}

func TestRequest_ConcurrentUnauthorizedRefreshOnce(t *testing.T) {
	const callers = 5

	var mu sync.Mutex
	arrived := 0
	allArrived := make(chan struct{})
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer fresh" {
			writeJSON(w, http.StatusOK, `{"data":"ok"}`)
			return
		}
		mu.Lock()
		arrived++
		if arrived == callers {
			close(allArrived)
		}
		mu.Unlock()
		<-allArrived
		writeJSON(w, http.StatusUnauthorized, `{}`)
	})

	var refreshes int32
	client := newTestClient(t, server, &ClientOptions{Token: "stale"})
	client.SetOn401(func(ctx context.Context) (bool, error) {
		atomic.AddInt32(&refreshes, 1)
		time.Sleep(100 * time.Millisecond)
		client.SetAuthToken("fresh")
		return true, nil
	})

	var wg sync.WaitGroup
	results := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = client.Get(context.Background(), "x", nil, &results[i])
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&refreshes))
	for i := 0; i < callers; i++ {
		assert.NoError(t, errs[i])
		assert.Equal(t, "ok", results[i])
	}
}

func TestRequest_RefreshInsideRefreshDoesNotDeadlock(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, `{"message":"nope"}`)
	})
	client := newTestClient(t, server, &ClientOptions{Token: "stale"})

	var inner error
	client.SetOn401(func(ctx context.Context) (bool, error) {
		// A request from the callback that itself gets a 401
		inner = client.Get(ctx, "app/user/refreshToken", nil, nil)
		return false, inner
	})

	done := make(chan error, 1)
	go func() {
		done <- client.Get(context.Background(), "x", nil, nil)
	}()

	select {
	case err := <-done:
		assert.True(t, IsUnauthorized(err))
		assert.True(t, IsUnauthorized(inner))
	case <-time.After(3 * time.Second):
		t.Fatal("request deadlocked in nested refresh")
	}
}

func TestRequest_ErrorHook(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, `{"message":"db down"}`)
	})

	var hookErrs []error
	client := newTestClient(t, server, &ClientOptions{
		Hooks: &Hooks{OnError: func(ctx context.Context, err error) { hookErrs = append(hookErrs, err) }},
	})

	err := client.Get(context.Background(), "x", nil, nil)
	require.Error(t, err)
	require.Len(t, hookErrs, 1)
	assert.Equal(t, err, hookErrs[0])
	assert.True(t, IsRetryable(err))
}
