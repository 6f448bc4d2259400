package cdp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestListTargets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/json/list" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`[
			{"id":"T1","type":"page","title":"A","url":"https://a.com"},
			{"id":"W1","type":"service_worker","url":"https://a.com/sw.js"}
		]`))
	}))
	defer srv.Close()

	infos, err := ListTargets(context.Background(), srv.URL+"/")
	if err != nil {
		t.Fatalf("ListTargets() error = %v", err)
	}
	if len(infos) != 2 || infos[0].TargetID != "T1" || infos[0].Type != "page" || infos[0].URL != "https://a.com" {
		t.Fatalf("ListTargets() = %+v; want T1 page first", infos)
	}
}

func TestListTargetsHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	if _, err := ListTargets(context.Background(), srv.URL); err == nil {
		t.Fatalf("ListTargets() error = nil; want HTTP error")
	}
}

func TestIsTargetGone(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("rawcdp: Target.closeTarget: No target with given id found"), true},
		{errors.New("target closed"), true},
		{errors.New("connection refused"), false},
	}
	for _, tc := range cases {
		if got := IsTargetGone(tc.err); got != tc.want {
			t.Fatalf("IsTargetGone(%v) = %v; want %v", tc.err, got, tc.want)
		}
	}
}
