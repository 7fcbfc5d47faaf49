package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCollyFetcher_Fetch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Referer"); got != "https://www.croma.com/" {
			t.Errorf("expected referer header, got %q", got)
		}
		if got := r.Header.Get("Accept-Language"); got == "" {
			t.Error("expected Accept-Language header")
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintln(w, "<html><body><h1>ok</h1></body></html>")
	}))
	defer ts.Close()

	f := NewCollyFetcher("", 2*time.Second)
	resp, err := f.Fetch(context.Background(), ts.URL+"/search", Hints{Referer: "https://www.croma.com/"})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if resp.Status != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.Status)
	}
	if len(resp.Body) == 0 {
		t.Error("expected body")
	}
}

func TestCollyFetcher_NonSuccessStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "blocked", http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	f := NewCollyFetcher("", 2*time.Second)
	_, err := f.Fetch(context.Background(), ts.URL, Hints{})
	if err == nil {
		t.Fatal("expected error")
	}

	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("expected *NetworkError, got %T", err)
	}
	if netErr.Status != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", netErr.Status)
	}
}

func TestCollyFetcher_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewCollyFetcher("", time.Second).Fetch(ctx, "http://127.0.0.1:1/", Hints{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRequestTimeout(t *testing.T) {
	got, err := requestTimeout(context.Background(), 6*time.Second)
	if err != nil || got != 6*time.Second {
		t.Errorf("no deadline: got %v %v, want 6s", got, err)
	}

	short, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err = requestTimeout(short, 6*time.Second)
	if err != nil || got <= 0 || got > time.Second {
		t.Errorf("short deadline: got %v %v, want (0, 1s]", got, err)
	}

	// A deadline that lapses after the ctx.Err check in Fetch.
	spent, cancelSpent := context.WithDeadline(context.Background(), time.Now().Add(-time.Millisecond))
	defer cancelSpent()
	got, err = requestTimeout(spent, 6*time.Second)
	if !errors.Is(err, context.DeadlineExceeded) || got != 0 {
		t.Errorf("spent deadline: got %v %v, want DeadlineExceeded", got, err)
	}
}
