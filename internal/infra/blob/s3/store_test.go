package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mdtcore/internal/blob/core"
)

// fakeS3 serves the handful of path-style S3 calls the store makes.
type fakeS3 struct {
	mu       sync.Mutex
	objects  map[string]fakeObject
	pageSize int
	requests []string
}

type fakeObject struct {
	body        []byte
	contentType string
	metadata    map[string]string
}

func newFake() *fakeS3 { return &fakeS3{objects: map[string]fakeObject{}, pageSize: 1000} }

func respond(status int, body string, header http.Header) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(body)), Header: header, ContentLength: int64(len(body))}
}

func (f *fakeS3) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req.Method+" "+req.URL.Path)

	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}
	q := req.URL.Query()
	if req.Method == http.MethodGet && q.Get("list-type") == "2" {
		return f.list(q.Get("prefix"), q.Get("continuation-token")), nil
	}
	switch req.Method {
	case http.MethodHead, http.MethodGet:
		obj, ok := f.objects[key]
		if !ok {
			return respond(http.StatusNotFound, "", nil), nil
		}
		h := http.Header{
			"Content-Length": {fmt.Sprint(len(obj.body))},
			"Content-Type":   {obj.contentType},
			"Etag":           {`"etag-` + key + `"`},
			"Last-Modified":  {time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Format(http.TimeFormat)},
		}
		for k, v := range obj.metadata {
			h.Set("X-Amz-Meta-"+k, v)
		}
		if req.Method == http.MethodHead {
			resp := respond(http.StatusOK, "", h)
			resp.ContentLength = int64(len(obj.body))
			return resp, nil
		}
		return respond(http.StatusOK, string(obj.body), h), nil
	case http.MethodPut:
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		md := map[string]string{}
		for name, v := range req.Header {
			if lower := strings.ToLower(name); strings.HasPrefix(lower, "x-amz-meta-") {
				md[strings.TrimPrefix(lower, "x-amz-meta-")] = v[0]
			}
		}
		f.objects[key] = fakeObject{body: body, contentType: req.Header.Get("Content-Type"), metadata: md}
		return respond(http.StatusOK, "", http.Header{"Etag": {`"etag"`}}), nil
	case http.MethodDelete:
		delete(f.objects, key)
		return respond(http.StatusNoContent, "", nil), nil
	}
	return respond(http.StatusNotImplemented, "", nil), nil
}

func (f *fakeS3) list(prefix, token string) *http.Response {
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	start := 0
	if token != "" {
		fmt.Sscanf(token, "page-%d", &start)
	}
	end := min(start+f.pageSize, len(keys))
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><ListBucketResult>`)
	if end < len(keys) {
		fmt.Fprintf(&b, "<IsTruncated>true</IsTruncated><NextContinuationToken>page-%d</NextContinuationToken>", end)
	} else {
		b.WriteString("<IsTruncated>false</IsTruncated>")
	}
	for _, k := range keys[start:end] {
		fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>%d</Size><ETag>&quot;e&quot;</ETag><LastModified>2024-01-01T00:00:00Z</LastModified></Contents>",
			k, len(f.objects[k].body))
	}
	b.WriteString("</ListBucketResult>")
	return respond(http.StatusOK, b.String(), http.Header{"Content-Type": {"application/xml"}})
}

func newFakeStore(t *testing.T, fake *fakeS3, prefix string) *Store {
	t.Helper()
	store, err := New(context.Background(), Config{
		Bucket:          "profiles",
		Endpoint:        "https://s3.test.local",
		AccessKeyID:     "AKIA",
		SecretAccessKey: "SECRET",
		PathStyle:       true,
		Prefix:          prefix,
		HTTPClient:      &http.Client{Transport: fake},
	})
	require.NoError(t, err)
	return store
}

func TestStoreRoundTrip(t *testing.T) {
	fake := newFake()
	store := newFakeStore(t, fake, "")
	ctx := context.Background()

	info, err := store.Put(ctx, "wind/ridge.json", bytes.NewBufferString(`{"data":[1,2]}`),
		core.PutOptions{ContentType: "application/json", Metadata: map[string]string{"tier": "critical"}})
	require.NoError(t, err)
	require.Equal(t, "wind/ridge.json", info.Key)
	require.Equal(t, int64(14), info.Size)
	require.Equal(t, "application/json", info.ContentType)
	require.Equal(t, "etag-wind/ridge.json", info.ETag)
	require.Equal(t, "critical", info.Metadata["tier"])

	_, err = store.Put(ctx, "wind/ridge.json", bytes.NewBufferString("{}"), core.PutOptions{})
	require.ErrorIs(t, err, core.ErrExists)
	_, err = store.Put(ctx, "wind/ridge.json", bytes.NewBufferString("{}"), core.PutOptions{Overwrite: true})
	require.NoError(t, err)

	_, rc, err := store.Get(ctx, "wind/ridge.json")
	require.NoError(t, err)
	body, _ := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.Equal(t, "{}", string(body))

	existed, err := store.Delete(ctx, "wind/ridge.json")
	require.NoError(t, err)
	require.True(t, existed)
	existed, err = store.Delete(ctx, "wind/ridge.json")
	require.NoError(t, err)
	require.False(t, existed)
}

func TestStoreNotFoundMapsToSentinel(t *testing.T) {
	store := newFakeStore(t, newFake(), "")
	ctx := context.Background()
	_, err := store.Head(ctx, "missing.json")
	require.True(t, errors.Is(err, core.ErrNotFound), "head: %v", err)
	_, _, err = store.Get(ctx, "missing.json")
	require.True(t, errors.Is(err, core.ErrNotFound), "get: %v", err)
	_, err = store.Put(ctx, "../x", bytes.NewBufferString(""), core.PutOptions{})
	require.ErrorIs(t, err, core.ErrInvalidKey)
}

func TestStoreListPaginatesAndStripsPrefix(t *testing.T) {
	fake := newFake()
	fake.pageSize = 2
	store := newFakeStore(t, fake, "/tenant-a/")
	ctx := context.Background()
	for _, k := range []string{"solar/c.json", "solar/a.json", "solar/b.json", "wind/z.json"} {
		_, err := store.Put(ctx, k, bytes.NewBufferString("[]"), core.PutOptions{})
		require.NoError(t, err)
	}
	fake.mu.Lock()
	_, stored := fake.objects["tenant-a/solar/a.json"]
	fake.mu.Unlock()
	require.True(t, stored, "keys must carry the configured prefix")

	infos, err := store.List(ctx, "solar/")
	require.NoError(t, err)
	keys := make([]string, 0, len(infos))
	for _, in := range infos {
		keys = append(keys, in.Key)
	}
	require.Equal(t, []string{"solar/a.json", "solar/b.json", "solar/c.json"}, keys)

	empty, err := store.List(ctx, "hydro/")
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(context.Background(), Config{})
	require.Error(t, err)
	s, err := New(context.Background(), Config{Bucket: "b", AccessKeyID: "A", SecretAccessKey: "S"})
	require.NoError(t, err)
	require.Equal(t, core.DriverS3, s.Driver())
}
