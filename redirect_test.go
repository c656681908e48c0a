package httpflow

import (
	"net/url"
	"testing"
)

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("url.Parse(%q): %v", raw, err)
	}
	return u
}

func TestRedirectAuthNeverAlwaysStrips(t *testing.T) {
	a := mustParseURL(t, "https://a.test/x")
	b := mustParseURL(t, "https://a.test/y")
	if RedirectAuthNever.KeepAuthorization(a, b) {
		t.Fatal("Never policy must never keep Authorization")
	}
}

func TestRedirectAuthSameHostKeepsOnSameScheme(t *testing.T) {
	a := mustParseURL(t, "https://a.test/x")
	b := mustParseURL(t, "https://a.test/y")
	if !RedirectAuthSameHost.KeepAuthorization(a, b) {
		t.Fatal("expected Authorization kept for same host and scheme")
	}
}

func TestRedirectAuthSameHostKeepsOnHTTPSUpgrade(t *testing.T) {
	a := mustParseURL(t, "http://a.test/x")
	b := mustParseURL(t, "https://a.test/y")
	if !RedirectAuthSameHost.KeepAuthorization(a, b) {
		t.Fatal("expected Authorization kept across http->https upgrade")
	}
}

func TestRedirectAuthSameHostStripsOnDowngrade(t *testing.T) {
	a := mustParseURL(t, "https://a.test/x")
	b := mustParseURL(t, "http://a.test/y")
	if RedirectAuthSameHost.KeepAuthorization(a, b) {
		t.Fatal("expected Authorization stripped on https->http downgrade")
	}
}

func TestRedirectAuthSameHostStripsOnHostChange(t *testing.T) {
	a := mustParseURL(t, "https://a.test/x")
	b := mustParseURL(t, "https://b.test/y")
	if RedirectAuthSameHost.KeepAuthorization(a, b) {
		t.Fatal("expected Authorization stripped across hosts")
	}
}

func TestRedirectMethodForStatus(t *testing.T) {
	cases := []struct {
		status int
		method string
		want   string
	}{
		{301, POST, GET},
		{302, POST, GET},
		{303, GET, GET},
		{307, POST, POST},
		{308, DELETE, DELETE},
		{302, HEAD, HEAD},
	}
	for _, c := range cases {
		got := redirectMethodForStatus(c.status, c.method)
		if got != c.want {
			t.Errorf("redirectMethodForStatus(%d, %s) = %s, want %s", c.status, c.method, got, c.want)
		}
	}
}
