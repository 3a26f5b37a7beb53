package cvision

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/labkha-cpu/ai-Apply/internal/models"
	"github.com/labkha-cpu/ai-Apply/internal/utils"
)

func TestFetchProfile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/candidates/c-1/profile" || r.URL.Query().Get("include") != "all" {
			t.Errorf("unexpected request %s", r.URL.String())
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidate_id":"c-1","step2_status":"PROCESSING","meta":{"step2_status":"queued"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", time.Second, nil)
	raw, err := c.FetchProfile(context.Background(), "c-1", models.IncludeAll)
	if err != nil {
		t.Fatalf("FetchProfile: %v", err)
	}
	if raw.Step2Status != "PROCESSING" || raw.Meta == nil || raw.Meta.Step2Status != "queued" {
		t.Errorf("raw = %+v", raw)
	}
}

func TestFetchProfileErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		code   utils.Code
	}{
		{"not found", http.StatusNotFound, `{"error":"no such candidate"}`, utils.CodeNotFound},
		{"server error", http.StatusBadGateway, `upstream down`, utils.CodeUnavailable},
		{"bad request", http.StatusBadRequest, `{"message":"bad include"}`, utils.CodeInvalidArgument},
		{"broken json", http.StatusOK, `{"candidate_id":`, utils.CodeInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, time.Second, nil).FetchProfile(context.Background(), "c-1", models.IncludePreview)
			if !utils.IsCode(err, tc.code) {
				t.Fatalf("err = %v, want code %s", err, tc.code)
			}
			if tc.code == utils.CodeNotFound && !utils.IsNotFound(err) {
				t.Errorf("IsNotFound(%v) = false", err)
			}
		})
	}
}

func TestFetchProfileToleratesMistypedField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"meta":"not-an-object","step2_status":"DONE"}`))
	}))
	defer srv.Close()

	raw, err := NewClient(srv.URL, time.Second, nil).FetchProfile(context.Background(), "c-1", models.IncludeAll)
	if err != nil {
		t.Fatalf("FetchProfile: %v", err)
	}
	if raw.Step2Status != "DONE" || raw.CandidateID != "c-1" {
		t.Errorf("raw = %+v", raw)
	}
}

func TestFetchProfileSharesConcurrentCalls(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		<-release
		_, _ = w.Write([]byte(`{"candidate_id":"c-1"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second, nil)
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.FetchProfile(context.Background(), "c-1", models.IncludeAll); err != nil {
				t.Errorf("FetchProfile: %v", err)
			}
		}()
	}
	// let the callers pile up on the in-flight request
	deadline := time.Now().Add(2 * time.Second)
	for hits.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := hits.Load(); n < 1 || n > 5 {
		t.Errorf("server hits = %d", n)
	}
}

func TestArtifactURL(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	cases := []struct {
		name    string
		body    string
		url     string
		expires time.Time
	}{
		{"object", `{"url":"https://signed.example.com/a","expires_in_seconds":900}`, "https://signed.example.com/a", now.Add(15 * time.Minute)},
		{"bare string", `"https://signed.example.com/b"`, "https://signed.example.com/b", time.Time{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/candidates/c-1/artifacts/cv_master" {
					t.Errorf("path = %s", r.URL.Path)
				}
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			c := NewClient(srv.URL, time.Second, nil)
			c.now = func() time.Time { return now }
			link, err := c.ArtifactURL(context.Background(), "c-1", "cv_master")
			if err != nil {
				t.Fatalf("ArtifactURL: %v", err)
			}
			if link.URL != tc.url || !link.ExpiresAt.Equal(tc.expires) || link.Type != "cv_master" {
				t.Errorf("link = %+v", link)
			}
		})
	}
}
