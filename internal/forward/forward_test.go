package forward

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	dErrors "ingressgw/pkg/domain-errors"
	"ingressgw/pkg/requestcontext"
)

// upstream records what the forwarder sent and replies with a canned response.
type upstream struct {
	mu      sync.Mutex
	method  string
	url     string
	host    string
	headers http.Header
	body    string

	status      int
	contentType string
	reply       string
	delay       time.Duration
}

func (u *upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	u.mu.Lock()
	u.method = r.Method
	u.url = r.URL.String()
	u.host = r.Host
	u.headers = r.Header.Clone()
	u.body = string(body)
	u.mu.Unlock()

	if u.delay > 0 {
		select {
		case <-time.After(u.delay):
		case <-r.Context().Done():
			return
		}
	}
	if u.contentType != "" {
		w.Header().Set("Content-Type", u.contentType)
	}
	w.WriteHeader(u.status)
	_, _ = io.WriteString(w, u.reply)
}

// =============================================================================
// Forwarder Test Suite
// =============================================================================
// The forwarder resolves the target from the caller's Host header, so every test
// routes that virtual host to an httptest server through a custom dialer.

type ForwarderSuite struct {
	suite.Suite
	upstream *upstream
	server   *httptest.Server
	fwd      *Forwarder
}

func TestForwarderSuite(t *testing.T) {
	suite.Run(t, new(ForwarderSuite))
}

func (s *ForwarderSuite) SetupTest() {
	s.upstream = &upstream{status: http.StatusOK, contentType: "application/json", reply: `{"ok": true}`}
	s.server = httptest.NewServer(s.upstream)
	s.fwd = s.newForwarder(time.Second)
}

func (s *ForwarderSuite) TearDownTest() {
	s.server.Close()
}

func (s *ForwarderSuite) newForwarder(timeout time.Duration) *Forwarder {
	addr := s.server.Listener.Addr().String()
	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, _ string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(ctx, network, addr)
		},
	}
	return New(
		WithClient(&http.Client{Transport: transport}),
		WithTimeout(timeout),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
}

func inbound(method, target, body string) *http.Request {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	return r
}

func (s *ForwarderSuite) TestTargetFromHostPathAndQuery() {
	r := inbound(http.MethodGet, "http://svc.example/foo?x=1", "")

	target, err := s.fwd.Target(r)
	s.Require().NoError(err)
	s.Equal("http://svc.example/foo?x=1", target.String())

	resp, err := s.fwd.Forward(context.Background(), r)
	s.Require().NoError(err)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.JSONEq(`{"ok":true}`, string(resp.Body))

	s.Equal(http.MethodGet, s.upstream.method)
	s.Equal("svc.example", s.upstream.host)
	s.Equal("/foo?x=1", s.upstream.url)
}

func (s *ForwarderSuite) TestHTTPSSchemeTarget() {
	fwd := New(WithScheme("https"))
	target, err := fwd.Target(inbound(http.MethodGet, "http://svc.example:8443/a/b?q=%20x", ""))
	s.Require().NoError(err)
	s.Equal("https://svc.example:8443/a/b?q=%20x", target.String())
}

func (s *ForwarderSuite) TestPostBodyAndRestrictedHeaders() {
	r := inbound(http.MethodPost, "http://people.example/people/v2", `{"name":"Ada"}`)
	r.Header.Set("Accept", "application/json")
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set(requestcontext.RolesHeader, "admin,writer")
	r.Header.Set("Authorization", "Bearer secret")
	r.Header.Set("Cookie", "session=1")
	r.Header.Set("X-Custom", "nope")

	_, err := s.fwd.Forward(context.Background(), r)
	s.Require().NoError(err)

	s.Equal(http.MethodPost, s.upstream.method)
	s.Equal(`{"name":"Ada"}`, s.upstream.body)
	s.Equal("application/json", s.upstream.headers.Get("Accept"))
	s.Equal("application/json", s.upstream.headers.Get("Content-Type"))
	s.Equal("admin,writer", s.upstream.headers.Get(requestcontext.RolesHeader))
	s.Empty(s.upstream.headers.Get("Authorization"))
	s.Empty(s.upstream.headers.Get("Cookie"))
	s.Empty(s.upstream.headers.Get("X-Custom"))
}

func (s *ForwarderSuite) TestEmptyBodyIsNull() {
	s.upstream.reply = ""
	s.upstream.status = http.StatusNoContent

	resp, err := s.fwd.Forward(context.Background(), inbound(http.MethodGet, "http://svc.example/", ""))
	s.Require().NoError(err)
	s.Equal(http.StatusNoContent, resp.StatusCode)
	s.Equal("null", string(resp.Body))
}

func (s *ForwarderSuite) TestNonJSONIsUpstreamError() {
	s.upstream.reply = "<html>hi</html>"

	_, err := s.fwd.Forward(context.Background(), inbound(http.MethodGet, "http://svc.example/", ""))
	s.True(dErrors.HasCode(err, dErrors.CodeUpstream))
}

func (s *ForwarderSuite) TestNon2xxIsUpstreamError() {
	for _, status := range []int{http.StatusNotFound, http.StatusInternalServerError} {
		s.upstream.status = status
		_, err := s.fwd.Forward(context.Background(), inbound(http.MethodGet, "http://svc.example/", ""))
		s.True(dErrors.HasCode(err, dErrors.CodeUpstream), "status %d", status)
	}
}

func (s *ForwarderSuite) TestTimeout() {
	s.upstream.delay = time.Second
	fwd := s.newForwarder(50 * time.Millisecond)

	start := time.Now()
	_, err := fwd.Forward(context.Background(), inbound(http.MethodGet, "http://svc.example/slow", ""))
	s.True(dErrors.HasCode(err, dErrors.CodeUpstream))
	s.Less(time.Since(start), 900*time.Millisecond)
}

func (s *ForwarderSuite) TestCallerCancellation() {
	s.upstream.delay = time.Second
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)

	_, err := s.fwd.Forward(ctx, inbound(http.MethodGet, "http://svc.example/slow", ""))
	s.True(dErrors.HasCode(err, dErrors.CodeUpstream))
}

func (s *ForwarderSuite) TestUnreachable() {
	s.server.Close()
	_, err := s.fwd.Forward(context.Background(), inbound(http.MethodGet, "http://svc.example/", ""))
	s.True(dErrors.HasCode(err, dErrors.CodeUpstream))
}

func TestTargetRejectsBadHost(t *testing.T) {
	fwd := New()
	r := httptest.NewRequest(http.MethodGet, "/foo", nil)

	r.Host = ""
	_, err := fwd.Target(r)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))

	r.Host = "evil.example/path"
	_, err = fwd.Target(r)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))

	r.Host = "user@evil.example"
	_, err = fwd.Target(r)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "", want: "null"},
		{in: "  \n", want: "null"},
		{in: `{"a": 1}`, want: `{"a":1}`},
		{in: `[1, 2]`, want: `[1,2]`},
		{in: `"str"`, want: `"str"`},
		{in: `12345678901234567890`, want: `12345678901234567890`},
		{in: `{"a":1} trailing`, wantErr: true},
		{in: `{"a":`, wantErr: true},
		{in: `plain text`, wantErr: true},
	}
	for _, tt := range tests {
		got, err := decodeJSON([]byte(tt.in))
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, string(got))
		assert.True(t, json.Valid(got))
	}
}

type statusCounter struct{ statuses []int }

func (c *statusCounter) ObserveForward(status int) { c.statuses = append(c.statuses, status) }

func TestForwardRecordsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	counter := &statusCounter{}
	fwd := New(WithMetrics(counter), WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))))
	r := httptest.NewRequest(http.MethodPost, "/things", strings.NewReader(`{}`))
	r.Host = u.Host

	resp, err := fwd.Forward(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, []int{http.StatusCreated}, counter.statuses)
}
