package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/HatiCode/linecast/pkg/occupancy"
)

// REST resource names under the database root.
const (
	StatusResource  = "line_status"
	HistoryResource = "line_history"
)

// RESTStore implements Store against a Firebase Realtime Database style
// JSON tree:
//
//	PUT  {base}/line_status.json   overwrite the latest snapshot
//	POST {base}/line_history.json  push a child, answers {"name": "<key>"}
//	GET  {base}/line_history.json  object of key -> record, or null
//
// An optional auth token is sent as the "auth" query parameter.
type RESTStore struct {
	base   *url.URL
	auth   string
	client *http.Client
}

// NewRESTStore validates baseURL and builds the store. A nil client gets a
// plain client with a 10s timeout; callers normally bound each call with a
// context deadline instead.
func NewRESTStore(baseURL, authToken string, client *http.Client) (*RESTStore, error) {
	if baseURL == "" {
		return nil, errors.New("store URL cannot be empty")
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse store URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("store URL must be http or https, got %q", baseURL)
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &RESTStore{base: u, auth: authToken, client: client}, nil
}

func (r *RESTStore) resourceURL(name string) string {
	u := *r.base
	u.Path = u.Path + "/" + name + ".json"
	if r.auth != "" {
		q := u.Query()
		q.Set("auth", r.auth)
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func (r *RESTStore) do(ctx context.Context, op, method, name string, body []byte) ([]byte, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.resourceURL(name), rd)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Op: op, Code: resp.StatusCode}
	}
	return data, nil
}

// SetLatest overwrites the status resource.
func (r *RESTStore) SetLatest(ctx context.Context, s occupancy.Sample) error {
	body, err := encodeSample(s)
	if err != nil {
		return err
	}
	_, err = r.do(ctx, "set latest", http.MethodPut, StatusResource, body)
	return err
}

// AppendHistory pushes a new child under the history resource.
func (r *RESTStore) AppendHistory(ctx context.Context, s occupancy.Sample) (string, error) {
	body, err := encodeSample(s)
	if err != nil {
		return "", err
	}
	data, err := r.do(ctx, "append history", http.MethodPost, HistoryResource, body)
	if err != nil {
		return "", err
	}
	name := gjson.GetBytes(data, "name")
	if !name.Exists() || name.String() == "" {
		return "", fmt.Errorf("append history: response has no key: %s", bytes.TrimSpace(data))
	}
	return name.String(), nil
}

// GetLatest reads the status resource. A JSON null means unset.
func (r *RESTStore) GetLatest(ctx context.Context) (occupancy.Sample, bool, error) {
	data, err := r.do(ctx, "get latest", http.MethodGet, StatusResource, nil)
	if err != nil {
		return occupancy.Sample{}, false, err
	}
	res := gjson.ParseBytes(data)
	if res.Type == gjson.Null {
		return occupancy.Sample{}, false, nil
	}
	rec := jsonRecord("", res)
	if !rec.Complete {
		return occupancy.Sample{}, false, fmt.Errorf("get latest: malformed snapshot: %s", bytes.TrimSpace(data))
	}
	return rec.Sample, true, nil
}

// History downloads the whole history tree. Push keys sort chronologically,
// and gjson preserves document order.
func (r *RESTStore) History(ctx context.Context) ([]HistoryRecord, error) {
	data, err := r.do(ctx, "get history", http.MethodGet, HistoryResource, nil)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(data) {
		return nil, errors.New("get history: response is not valid JSON")
	}

	root := gjson.ParseBytes(data)
	if root.Type == gjson.Null {
		return nil, nil
	}
	if !root.IsObject() {
		return nil, fmt.Errorf("get history: expected object, got %s", root.Type)
	}

	var out []HistoryRecord
	root.ForEach(func(key, value gjson.Result) bool {
		out = append(out, jsonRecord(key.String(), value))
		return true
	})
	return out, nil
}

// jsonRecord decodes one history child. Anything that is not an object with
// numeric people and timestamp fields is returned incomplete.
func jsonRecord(key string, v gjson.Result) HistoryRecord {
	rec := HistoryRecord{Key: key}
	if !v.IsObject() {
		return rec
	}
	people := v.Get("people")
	ts := v.Get("timestamp")
	if people.Type != gjson.Number || ts.Type != gjson.Number {
		return rec
	}
	rec.Sample = occupancy.Sample{Count: int(people.Int()), Timestamp: time.Unix(ts.Int(), 0)}
	rec.Complete = true
	return rec
}
