package beacon_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rotisserie/eris"

	"github.com/wajahatashraf/beacon-scraper/internal/adapters/beacon"
	"github.com/wajahatashraf/beacon-scraper/internal/core/domain"
	"github.com/wajahatashraf/beacon-scraper/internal/pkg/config"
)

func portalConfig(url string) config.PortalConfig {
	return config.PortalConfig{APIURL: url + "/api/GetVectorLayer", TokenParam: "QPS", UserAgent: "test-agent"}
}

func TestFetchTile_PostsRequestWithToken(t *testing.T) {
	var gotToken, gotMethod, gotType string
	var gotBody domain.TileRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.URL.Query().Get("QPS")
		gotMethod = r.Method
		gotType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &gotBody)
		_, _ = w.Write([]byte(`{"d":[]}`))
	}))
	defer srv.Close()

	c := beacon.NewClient(portalConfig(srv.URL), 5*time.Second)
	tile := domain.TileBounds{MinX: 1, MinY: 2, MaxX: 3, MaxY: 4}
	body, err := c.FetchTile(context.Background(), "tok", domain.NewTileRequest(7, 1500, tile))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(body) != `{"d":[]}` {
		t.Errorf("body = %s", body)
	}
	if gotToken != "tok" {
		t.Errorf("QPS = %q, want tok", gotToken)
	}
	if gotMethod != http.MethodPost {
		t.Errorf("method = %s, want POST", gotMethod)
	}
	if gotType != "application/json" {
		t.Errorf("content type = %q", gotType)
	}
	if gotBody.LayerID != 7 || gotBody.FeatureLimit != 1500 || gotBody.Ext != tile || gotBody.SpatialRelation != 1 {
		t.Errorf("request body = %+v", gotBody)
	}
}

func TestFetchTile_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "expired", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := beacon.NewClient(portalConfig(srv.URL), 5*time.Second)
	_, err := c.FetchTile(context.Background(), "stale", domain.NewTileRequest(1, 10, domain.TileBounds{}))
	if !eris.Is(err, domain.ErrTileFetch) {
		t.Fatalf("expected ErrTileFetch, got %v", err)
	}
}

func TestFetchTile_CancelledContext(t *testing.T) {
	c := beacon.NewClient(portalConfig("http://127.0.0.1:1"), time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.FetchTile(ctx, "tok", domain.NewTileRequest(1, 10, domain.TileBounds{}))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
