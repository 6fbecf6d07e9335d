package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stalvia/pricewatch/internal/ingest"
	"github.com/stalvia/pricewatch/internal/mapping"
	"github.com/stalvia/pricewatch/internal/normalize"
	"github.com/stalvia/pricewatch/internal/testutil"
)

// testEnv sets up a temp store, taxonomy, and router for testing.
// authToken="" means disabled auth mode.
func testEnv(t *testing.T, authToken string) (*mapping.Mapper, http.Handler) {
	t.Helper()

	db := testutil.TestStore(t, 0)
	tax := testutil.TestTaxonomy(t)
	mapper := mapping.New(db, tax)
	engine := ingest.New(db)
	norm := normalize.New(mapper, map[string]string{"dia": "https://www.dia.es"})

	h := NewHandler(mapper, engine, norm, tax, db, nil)
	router := NewRouter(h, authToken != "", authToken, nil)
	return mapper, router
}

func doJSON(t *testing.T, router http.Handler, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		b, _ := json.Marshal(payload)
		body = bytes.NewReader(b)
	} else {
		body = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, body)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestIngestEndpoint(t *testing.T) {
	_, router := testEnv(t, "")

	w := doJSON(t, router, http.MethodPost, "/ingest", IngestRequest{
		Products: []ProductPayload{
			{ID: "dia_112", Source: "dia", DisplayName: "Aceite de oliva 1L", Price: "3,50 €"},
			{ID: "dia_113", Source: "dia", DisplayName: "Agua mineral"},
		},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("ingest status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp IngestResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if !resp.OK || resp.New != 2 || resp.Count != 2 {
		t.Errorf("response = %+v", resp)
	}

	// Same batch again: everything unchanged.
	w = doJSON(t, router, http.MethodPost, "/ingest", IngestRequest{
		Products: []ProductPayload{
			{ID: "dia_112", Source: "dia", DisplayName: "Aceite de oliva 1L", Price: 3.5},
			{ID: "dia_113", Source: "dia", DisplayName: "Agua mineral"},
		},
	})
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Unchanged != 2 {
		t.Errorf("re-ingest response = %+v, want all unchanged", resp)
	}
}

func TestIngestEndpoint_BadRequests(t *testing.T) {
	_, router := testEnv(t, "")

	req := httptest.NewRequest(http.MethodPost, "/ingest", bytes.NewReader([]byte("{not json")))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("malformed JSON = %d, want 400", w.Code)
	}

	w = doJSON(t, router, http.MethodPost, "/ingest", IngestRequest{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty batch = %d, want 400", w.Code)
	}
}

func TestIngestRawEndpoint(t *testing.T) {
	mapper, router := testEnv(t, "")

	w := doJSON(t, router, http.MethodPost, "/ingest/raw", IngestRawRequest{
		Source: "dia",
		Items: []RawItem{
			{
				Product:  normalize.RawProduct{ID: "112", Name: "Aceite de oliva", Price: "3,50"},
				Category: normalize.RawCategory{ID: "33", Name: "Aceites"},
			},
			{
				Product: normalize.RawProduct{Name: "Sin identificador"},
			},
		},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("raw ingest status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp IngestRawResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.New != 1 {
		t.Errorf("response = %+v, want 1 new", resp)
	}
	if resp.Skipped[normalize.ReasonMissingID] != 1 {
		t.Errorf("skipped = %+v", resp.Skipped)
	}

	// Normalizing registered the category as pending.
	if _, err := mapper.Get("dia", "33"); err != nil {
		t.Errorf("category not registered: %v", err)
	}
}

func TestMappingReviewFlow(t *testing.T) {
	mapper, router := testEnv(t, "")
	if _, err := mapper.Resolve("dia", "33", "Aceites", ""); err != nil {
		t.Fatal(err)
	}

	// Pending queue.
	w := doJSON(t, router, http.MethodGet, "/mappings?source=dia", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	var list struct {
		Mappings []mapping.Mapping `json:"mappings"`
		Total    int               `json:"total"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if list.Total != 1 || list.Mappings[0].ExternalID != "33" {
		t.Errorf("list = %+v", list)
	}

	// Confirm.
	w = doJSON(t, router, http.MethodPost, "/mappings/confirm", ReviewRequest{
		Source: "dia", ExternalID: "33", TaxonomyNodeID: "aceites",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("confirm status = %d, body = %s", w.Code, w.Body.String())
	}

	// Automatic match after review conflicts.
	w = doJSON(t, router, http.MethodPost, "/mappings/automatch", ReviewRequest{
		Source: "dia", ExternalID: "33", TaxonomyNodeID: "conservas", Confidence: 90,
	})
	if w.Code != http.StatusConflict {
		t.Errorf("automatch after confirm = %d, want 409", w.Code)
	}

	// Stats reflect the confirmed row.
	w = doJSON(t, router, http.MethodGet, "/mappings/stats?source=dia", nil)
	var stats map[string]int
	_ = json.Unmarshal(w.Body.Bytes(), &stats)
	if stats["confirmed"] != 1 || stats["pending"] != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestMappingReview_Errors(t *testing.T) {
	mapper, router := testEnv(t, "")
	if _, err := mapper.Resolve("dia", "33", "Aceites", ""); err != nil {
		t.Fatal(err)
	}

	w := doJSON(t, router, http.MethodPost, "/mappings/confirm", ReviewRequest{
		Source: "dia", ExternalID: "nope", TaxonomyNodeID: "aceites",
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("missing mapping = %d, want 404", w.Code)
	}

	w = doJSON(t, router, http.MethodPost, "/mappings/confirm", ReviewRequest{
		Source: "dia", ExternalID: "33", TaxonomyNodeID: "no-such-node",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown node = %d, want 400", w.Code)
	}

	w = doJSON(t, router, http.MethodPost, "/mappings/confirm", ReviewRequest{Source: "dia"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing external_id = %d, want 400", w.Code)
	}
}

func TestListMappings_RequiresSource(t *testing.T) {
	_, router := testEnv(t, "")
	w := doJSON(t, router, http.MethodGet, "/mappings", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestTaxonomyEndpoints(t *testing.T) {
	_, router := testEnv(t, "")

	w := doJSON(t, router, http.MethodGet, "/taxonomy", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("roots status = %d", w.Code)
	}

	w = doJSON(t, router, http.MethodGet, "/taxonomy/aceites", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("node status = %d", w.Code)
	}
	var node struct {
		Path     string `json:"path"`
		Children []struct {
			ID string `json:"id"`
		} `json:"children"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &node)
	if node.Path != "Alimentación > Aceites" {
		t.Errorf("path = %q", node.Path)
	}
	if len(node.Children) != 1 || node.Children[0].ID != "aceites-oliva" {
		t.Errorf("children = %+v", node.Children)
	}

	w = doJSON(t, router, http.MethodGet, "/taxonomy/ghost", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown node = %d, want 404", w.Code)
	}

	w = doJSON(t, router, http.MethodGet, "/taxonomy/search?q=agua", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("search status = %d", w.Code)
	}
	w = doJSON(t, router, http.MethodGet, "/taxonomy/search", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("search without q = %d, want 400", w.Code)
	}
}

func TestProductEndpoints(t *testing.T) {
	_, router := testEnv(t, "")

	w := doJSON(t, router, http.MethodPost, "/ingest", IngestRequest{
		Products: []ProductPayload{
			{ID: "dia_112", Source: "dia", DisplayName: "Aceite de oliva 1L", Price: "3.50"},
		},
	})
	if w.Code != http.StatusOK {
		t.Fatal(w.Body.String())
	}
	// Change the price so history exists.
	w = doJSON(t, router, http.MethodPost, "/ingest", IngestRequest{
		Products: []ProductPayload{
			{ID: "dia_112", Source: "dia", DisplayName: "Aceite de oliva 1L", Price: "3.75"},
		},
	})
	if w.Code != http.StatusOK {
		t.Fatal(w.Body.String())
	}

	w = doJSON(t, router, http.MethodGet, "/products/dia_112", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get product = %d", w.Code)
	}

	w = doJSON(t, router, http.MethodGet, "/products/dia_112/history", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("history = %d", w.Code)
	}
	var hist struct {
		History []struct {
			Price string `json:"price"`
		} `json:"history"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &hist)
	if len(hist.History) != 1 || hist.History[0].Price != "3.5" {
		t.Errorf("history = %+v", hist)
	}

	w = doJSON(t, router, http.MethodGet, "/products/ghost", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing product = %d, want 404", w.Code)
	}
	w = doJSON(t, router, http.MethodGet, "/products/ghost/history", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing product history = %d, want 404", w.Code)
	}

	w = doJSON(t, router, http.MethodGet, "/products/search?q=aceite", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("search = %d", w.Code)
	}
	var results struct {
		Results []struct {
			Key string `json:"key"`
		} `json:"results"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &results)
	if len(results.Results) != 1 || results.Results[0].Key != "dia_112" {
		t.Errorf("search results = %+v", results)
	}
}

func TestAuth(t *testing.T) {
	_, router := testEnv(t, "secret")

	req := httptest.NewRequest(http.MethodGet, "/taxonomy", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token = %d, want 401", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/taxonomy", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/taxonomy", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("valid token = %d, want 200", w.Code)
	}
}
