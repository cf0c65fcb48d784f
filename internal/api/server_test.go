package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/seechain/seechain/internal/api"
	"github.com/seechain/seechain/internal/authz"
	"github.com/seechain/seechain/internal/engine"
	"github.com/seechain/seechain/internal/node"
	"github.com/seechain/seechain/internal/registry"
	"go.uber.org/zap"
)

var ctx = context.Background()

func newAPI(t *testing.T, defaultActor string) (*node.Chain, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	chain := node.NewChain(node.ChainConfig{AutoMine: true}, zap.NewNop())
	gw := node.NewEmbeddedGateway(chain)
	eng := engine.New(gw, authz.New(gw, zap.NewNop()), registry.New(),
		engine.Config{ConfirmTimeout: time.Second}, zap.NewNop())

	srv := httptest.NewServer(api.NewServer(eng, api.Config{DefaultActor: defaultActor}, zap.NewNop()).Router())
	t.Cleanup(srv.Close)
	return chain, srv
}

func post(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decodeShipment(t *testing.T, resp *http.Response) *registry.Shipment {
	t.Helper()
	defer resp.Body.Close()
	var s registry.Shipment
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		t.Fatal(err)
	}
	return &s
}

func TestAPI_createThenGet(t *testing.T) {
	_, srv := newAPI(t, "0xa11ce")

	resp := post(t, srv.URL+"/api/v1/shipments", map[string]string{
		"human_key":   "SHP001",
		"origin":      "Shanghai",
		"destination": "Los Angeles",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: got %d, want 201", resp.StatusCode)
	}
	created := decodeShipment(t, resp)
	if created.CurrentStatus != "Created" || len(created.Log) != 1 {
		t.Errorf("created shipment: %+v", created)
	}

	// Lookup by human key works like the dashboard's shipment links.
	getResp, err := http.Get(srv.URL + "/api/v1/shipments/SHP001")
	if err != nil {
		t.Fatal(err)
	}
	got := decodeShipment(t, getResp)
	if got.ID != created.ID || got.HumanKey != "SHP001" {
		t.Errorf("get by key: %+v", got)
	}

	// And by hex id.
	getResp, err = http.Get(srv.URL + "/api/v1/shipments/" + created.ID.String())
	if err != nil {
		t.Fatal(err)
	}
	got = decodeShipment(t, getResp)
	if got.ID != created.ID {
		t.Errorf("get by id: %+v", got)
	}
}

func TestAPI_appendStatusAuthorization(t *testing.T) {
	chain, srv := newAPI(t, "0xa11ce")

	resp := post(t, srv.URL+"/api/v1/shipments", map[string]string{
		"human_key":   "SHP001",
		"origin":      "Shanghai",
		"destination": "Los Angeles",
	})
	resp.Body.Close()

	// Default actor lacks the customs role.
	resp = post(t, srv.URL+"/api/v1/shipments/SHP001/status", map[string]string{
		"status": "Delivered",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("non-customs append: got %d, want 403", resp.StatusCode)
	}

	if err := chain.SetCustomsWorker(ctx, "0xcafe", true); err != nil {
		t.Fatal(err)
	}
	resp = post(t, srv.URL+"/api/v1/shipments/SHP001/status", map[string]string{
		"status": "Delivered",
		"actor":  "0xcafe",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("customs append: got %d, want 200", resp.StatusCode)
	}
	s := decodeShipment(t, resp)
	if s.CurrentStatus != "Delivered" || len(s.Log) != 2 {
		t.Errorf("after append: %+v", s)
	}
}

func TestAPI_listShipments(t *testing.T) {
	_, srv := newAPI(t, "0xa11ce")

	for _, key := range []string{"SHP001", "SHP002", "SHP003"} {
		resp := post(t, srv.URL+"/api/v1/shipments", map[string]string{
			"human_key":   key,
			"origin":      "Singapore",
			"destination": "Hamburg",
		})
		resp.Body.Close()
	}

	resp, err := http.Get(srv.URL + "/api/v1/shipments")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var list struct {
		Shipments []registry.Shipment `json:"shipments"`
		Count     int                 `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	if list.Count != 3 {
		t.Errorf("count: got %d, want 3", list.Count)
	}
}

func TestAPI_errorMapping(t *testing.T) {
	_, srv := newAPI(t, "0xa11ce")

	// Unknown shipment.
	resp, err := http.Get(srv.URL + "/api/v1/shipments/SHP404")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("not found: got %d, want 404", resp.StatusCode)
	}

	// Missing fields.
	resp = post(t, srv.URL+"/api/v1/shipments", map[string]string{"human_key": "SHP001"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad request: got %d, want 400", resp.StatusCode)
	}

	// Duplicate create surfaces the ledger rejection.
	for i := 0; i < 2; i++ {
		resp = post(t, srv.URL+"/api/v1/shipments", map[string]string{
			"human_key":   "SHP001",
			"origin":      "Shanghai",
			"destination": "Los Angeles",
		})
		resp.Body.Close()
	}
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate create: got %d, want 409", resp.StatusCode)
	}
}
