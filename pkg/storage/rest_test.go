package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/HatiCode/linecast/pkg/occupancy"
)

// fakeRTDB is a minimal Realtime Database double: one status node and an
// ordered history node.
type fakeRTDB struct {
	mu      sync.Mutex
	status  json.RawMessage
	keys    []string
	history map[string]json.RawMessage
	auth    []string
}

func newFakeRTDB() *fakeRTDB {
	return &fakeRTDB{history: make(map[string]json.RawMessage)}
}

func (f *fakeRTDB) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.auth = append(f.auth, r.URL.Query().Get("auth"))
	body, _ := io.ReadAll(r.Body)

	switch {
	case r.URL.Path == "/line_status.json" && r.Method == http.MethodPut:
		f.status = body
		w.Write(body)
	case r.URL.Path == "/line_status.json" && r.Method == http.MethodGet:
		if f.status == nil {
			fmt.Fprint(w, "null")
			return
		}
		w.Write(f.status)
	case r.URL.Path == "/line_history.json" && r.Method == http.MethodPost:
		key := fmt.Sprintf("-N%05d", len(f.keys))
		f.keys = append(f.keys, key)
		f.history[key] = body
		fmt.Fprintf(w, `{"name":%q}`, key)
	case r.URL.Path == "/line_history.json" && r.Method == http.MethodGet:
		if len(f.keys) == 0 {
			fmt.Fprint(w, "null")
			return
		}
		parts := make([]string, 0, len(f.keys))
		for _, k := range f.keys {
			parts = append(parts, fmt.Sprintf("%q:%s", k, f.history[k]))
		}
		fmt.Fprintf(w, "{%s}", strings.Join(parts, ","))
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

func TestRESTStore_Contract(t *testing.T) {
	server := httptest.NewServer(newFakeRTDB())
	defer server.Close()

	store, err := NewRESTStore(server.URL, "", server.Client())
	require.NoError(t, err)
	testStoreContract(t, store)
}

func TestRESTStore_SendsAuthToken(t *testing.T) {
	fake := newFakeRTDB()
	server := httptest.NewServer(fake)
	defer server.Close()

	store, err := NewRESTStore(server.URL+"/", "secret", nil)
	require.NoError(t, err)
	require.NoError(t, store.SetLatest(context.Background(), occupancy.NewSample(1, time.Unix(1791977400, 0))))

	require.Equal(t, []string{"secret"}, fake.auth)
}

func TestRESTStore_WireFormat(t *testing.T) {
	var got map[string]any
	var contentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Write([]byte(`{"name":"-Nabc"}`))
	}))
	defer server.Close()

	store, err := NewRESTStore(server.URL, "", nil)
	require.NoError(t, err)

	key, err := store.AppendHistory(context.Background(), occupancy.NewSample(12, time.Unix(1791977400, 0)))
	require.NoError(t, err)
	require.Equal(t, "-Nabc", key)
	require.Equal(t, "application/json", contentType)
	require.Equal(t, map[string]any{"people": float64(12), "timestamp": float64(1791977400)}, got)
}

func TestRESTStore_HistoryMarksMalformedRecords(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"-N1": {"people": 3, "timestamp": 1791977400},
			"-N2": {"people": 5},
			"-N3": {"timestamp": 1791977460},
			"-N4": "garbage",
			"-N5": {"people": 7, "timestamp": 1791977520.6}
		}`)
	}))
	defer server.Close()

	store, err := NewRESTStore(server.URL, "", nil)
	require.NoError(t, err)

	recs, err := store.History(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 5)

	var complete []string
	for _, r := range recs {
		if r.Complete {
			complete = append(complete, r.Key)
		}
	}
	require.Equal(t, []string{"-N1", "-N5"}, complete)
	require.Equal(t, int64(1791977520), recs[4].Sample.Timestamp.Unix())
}

func TestRESTStore_NonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "denied", http.StatusUnauthorized)
	}))
	defer server.Close()

	store, err := NewRESTStore(server.URL, "", nil)
	require.NoError(t, err)

	err = store.SetLatest(context.Background(), occupancy.NewSample(1, time.Now()))
	var se *StatusError
	require.True(t, errors.As(err, &se), "error %v is not a StatusError", err)
	require.Equal(t, http.StatusUnauthorized, se.Code)
	require.Equal(t, "set latest", se.Op)

	_, err = store.AppendHistory(context.Background(), occupancy.NewSample(1, time.Now()))
	require.True(t, errors.As(err, &se))
	require.Equal(t, "append history", se.Op)
}

func TestRESTStore_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	store, err := NewRESTStore(server.URL, "", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = store.SetLatest(ctx, occupancy.NewSample(1, time.Now()))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewRESTStore_Validation(t *testing.T) {
	for _, u := range []string{"", "ftp://host", "::not a url"} {
		_, err := NewRESTStore(u, "", nil)
		require.Error(t, err, "url %q", u)
	}
}
