package apitest

import "net/http/httptest"

// Cleaner is the part of *testing.T that Start needs.
type Cleaner interface {
	Helper()
	Cleanup(func())
}

// Start runs a fresh fake API on a local port until t's cleanup runs.
func Start(t Cleaner) (*Server, *httptest.Server) {
	t.Helper()
	s := New()
	ts := httptest.NewServer(s)
	t.Cleanup(ts.Close)
	return s, ts
}
