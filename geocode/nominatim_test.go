package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"margarita-listings/config"
	"margarita-listings/utils"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Nominatim, *utils.UsageCounter) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	usage := utils.NewUsageCounter()
	n := NewNominatim(&config.Config{
		GeocoderURL:       srv.URL + "/",
		GeocoderUserAgent: "margarita-test",
		MaxRetries:        3,
	}, utils.NewDiscardLogger(), usage)
	n.retry.BaseDelay = time.Millisecond
	return n, usage
}

func TestGeocodeFound(t *testing.T) {
	n, usage := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			t.Errorf("path: got %q", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("q") != "Av. Jóvito Villalba, Pampatar" || q.Get("bounded") != "1" || q.Get("format") != "json" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		if q.Get("viewbox") != "-64.4200,11.2000,-63.7500,10.8500" {
			t.Errorf("viewbox: got %q", q.Get("viewbox"))
		}
		if ua := r.Header.Get("User-Agent"); ua != "margarita-test" {
			t.Errorf("User-Agent: got %q", ua)
		}
		w.Write([]byte(`[{"lat":"10.9971","lon":"-63.7970","display_name":"Pampatar, Nueva Esparta"}]`))
	})

	p, err := n.Geocode(context.Background(), "Av. Jóvito Villalba, Pampatar")
	if err != nil {
		t.Fatal(err)
	}
	if p == nil || p.Lat != 10.9971 || p.Lng != -63.7970 {
		t.Errorf("got %+v", p)
	}
	if usage.Get(UsageRequests) != 1 {
		t.Errorf("requests: got %d, want 1", usage.Get(UsageRequests))
	}
}

func TestGeocodeEmptyResult(t *testing.T) {
	n, usage := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})

	p, err := n.Geocode(context.Background(), "nowhere")
	if p != nil || err != nil {
		t.Errorf("expected (nil, nil), got %v, %v", p, err)
	}
	if usage.Get(UsageRequests) != 1 || usage.Get(UsageEmpty) != 1 {
		t.Errorf("an empty answer must not be retried: %d requests", usage.Get(UsageRequests))
	}
}

func TestGeocodeRetriesServerErrors(t *testing.T) {
	var calls int32
	n, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`[{"lat":"11.0","lon":"-63.9"}]`))
	})

	p, err := n.Geocode(context.Background(), "Porlamar")
	if err != nil {
		t.Fatal(err)
	}
	if p == nil || calls != 3 {
		t.Errorf("got %v after %d calls; want a point after 3", p, calls)
	}
}

func TestGeocodeClientErrorIsPermanent(t *testing.T) {
	var calls int32
	n, usage := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
	})

	if _, err := n.Geocode(context.Background(), "Porlamar"); err == nil {
		t.Fatal("expected an error")
	}
	if calls != 1 {
		t.Errorf("4xx must not be retried, got %d calls", calls)
	}
	if usage.Get(UsageFailures) != 1 {
		t.Errorf("failures: got %d, want 1", usage.Get(UsageFailures))
	}
}

func TestGeocodeBadPayload(t *testing.T) {
	n, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"lat":"north","lon":"-63.9"}]`))
	})
	if _, err := n.Geocode(context.Background(), "x"); err == nil {
		t.Error("expected an error for unparsable coordinates")
	}
}
