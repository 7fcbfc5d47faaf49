package render

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"strings"
	"testing"
	"time"
)

func TestDisabled(t *testing.T) {
	html, err := Disabled{}.Render(context.Background(), "https://www.croma.com", time.Second)
	if !errors.Is(err, ErrDisabled) || html != "" {
		t.Errorf("expected ErrDisabled and no markup, got %q %v", html, err)
	}
}

func TestChrome_RendersScriptedMarkup(t *testing.T) {
	found := false
	for _, bin := range []string{"google-chrome", "chromium", "chromium-browser", "headless-shell"} {
		if _, err := exec.LookPath(bin); err == nil {
			found = true
			break
		}
	}
	if !found || testing.Short() {
		t.Skip("no Chrome binary available")
	}

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><div id="root"></div>
<script>document.getElementById("root").innerHTML = '<h1 class="pdp-title">' + navigator.userAgent + '</h1>';</script>
</body></html>`)
	}))
	defer ts.Close()

	html, err := NewChrome("pricepilot-test").Render(context.Background(), ts.URL, 10*time.Second)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if !strings.Contains(html, `<h1 class="pdp-title">pricepilot-test</h1>`) {
		t.Errorf("expected script output with the fixed user agent, got %s", html)
	}
}
