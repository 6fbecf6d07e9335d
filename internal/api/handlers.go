package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/stalvia/pricewatch/internal/apperr"
	"github.com/stalvia/pricewatch/internal/ingest"
	"github.com/stalvia/pricewatch/internal/mapping"
	"github.com/stalvia/pricewatch/internal/models"
	"github.com/stalvia/pricewatch/internal/normalize"
	"github.com/stalvia/pricewatch/internal/parser"
	"github.com/stalvia/pricewatch/internal/sse"
	"github.com/stalvia/pricewatch/internal/store"
	"github.com/stalvia/pricewatch/internal/taxonomy"
)

const maxBodyBytes = 32 << 20

// Handler holds API route handlers.
type Handler struct {
	mapper *mapping.Mapper
	engine *ingest.Engine
	norm   *normalize.Normalizer
	tax    *taxonomy.Store
	db     *store.DB
	broker *sse.Broker
}

// NewHandler creates a new Handler. broker may be nil when event streaming
// is not wired.
func NewHandler(m *mapping.Mapper, e *ingest.Engine, n *normalize.Normalizer, tax *taxonomy.Store, db *store.DB, broker *sse.Broker) *Handler {
	return &Handler{mapper: m, engine: e, norm: n, tax: tax, db: db, broker: broker}
}

func (h *Handler) publishMapping(m mapping.Mapping) {
	if h.broker != nil {
		h.broker.PublishMappingEvent(m.Source, m.ExternalID, string(m.Status))
	}
}

// Ingest handles POST /api/ingest.
//
//	@Summary		Ingest a batch of canonical product records
//	@Tags			ingest
//	@Accept			json
//	@Produce		json
//	@Param			body	body		IngestRequest	true	"Products to ingest"
//	@Success		200		{object}	IngestResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/ingest [post]
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if len(req.Products) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("products must be a non-empty list"))
		return
	}

	batch := make([]models.CanonicalProduct, len(req.Products))
	source := ""
	for i, p := range req.Products {
		batch[i] = canonicalFromPayload(p)
		if i == 0 {
			source = p.Source
		} else if p.Source != source {
			source = "multi"
		}
	}

	res, err := h.engine.Ingest(r.Context(), batch)
	if err != nil {
		slog.Error("ingest failed",
			slog.Int("processed", res.Processed),
			slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":     "storage commit failed",
			"detail":    err.Error(),
			"processed": res.Processed,
		})
		return
	}
	if h.broker != nil {
		h.broker.PublishIngestResult(source, ingestResponse(res))
	}
	writeJSON(w, http.StatusOK, ingestResponse(res))
}

// IngestRaw handles POST /api/ingest/raw: raw scrape results are normalized
// in-process (resolving categories, registering unseen ones as pending) and
// then ingested.
//
//	@Summary		Normalize and ingest raw scrape results for one source
//	@Tags			ingest
//	@Accept			json
//	@Produce		json
//	@Param			body	body		IngestRawRequest	true	"Raw items"
//	@Success		200		{object}	IngestRawResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/ingest/raw [post]
func (h *Handler) IngestRaw(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req IngestRawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Source == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("source is required"))
		return
	}
	if len(req.Items) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("items must be a non-empty list"))
		return
	}

	var stats normalize.RunStats
	batch := make([]models.CanonicalProduct, 0, len(req.Items))
	for _, item := range req.Items {
		p, err := h.norm.Normalize(req.Source, item.Product, item.Category, &stats)
		if err != nil {
			var discard *normalize.DiscardError
			if errors.As(err, &discard) {
				continue
			}
			slog.Error("normalize failed", slog.String("source", req.Source), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
			return
		}
		batch = append(batch, *p)
	}

	res, err := h.engine.Ingest(r.Context(), batch)
	if err != nil {
		slog.Error("raw ingest failed",
			slog.String("source", req.Source),
			slog.Int("processed", res.Processed),
			slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":     "storage commit failed",
			"detail":    err.Error(),
			"processed": res.Processed,
		})
		return
	}
	if h.broker != nil {
		h.broker.PublishIngestResult(req.Source, ingestResponse(res))
	}
	writeJSON(w, http.StatusOK, IngestRawResponse{
		IngestResponse: ingestResponse(res),
		Skipped:        stats.Discarded,
		BadPrice:       stats.BadPrice,
	})
}

// ListMappings handles GET /api/mappings?source=&status=.
//
//	@Summary		List category mappings of a source by status
//	@Tags			mappings
//	@Produce		json
//	@Param			source	query		string	true	"Source name"
//	@Param			status	query		string	false	"Lifecycle status"	Enums(pending, automatic, confirmed, rejected)
//	@Success		200		{object}	map[string]any
//	@Security		BearerAuth
//	@Router			/mappings [get]
func (h *Handler) ListMappings(w http.ResponseWriter, r *http.Request) {
	source := r.URL.Query().Get("source")
	if source == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("source is required"))
		return
	}
	status := store.MappingStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = store.StatusPending
	}
	items, err := h.mapper.ListByStatus(source, status)
	if err != nil {
		if !status.Valid() {
			writeJSON(w, http.StatusBadRequest, errorBody("unknown status"))
			return
		}
		slog.Error("list mappings failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if items == nil {
		items = []mapping.Mapping{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"mappings": items,
		"total":    len(items),
	})
}

// MappingStats handles GET /api/mappings/stats?source=.
func (h *Handler) MappingStats(w http.ResponseWriter, r *http.Request) {
	source := r.URL.Query().Get("source")
	if source == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("source is required"))
		return
	}
	stats, err := h.mapper.Stats(source)
	if err != nil {
		slog.Error("mapping stats failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func decodeReview(w http.ResponseWriter, r *http.Request) (ReviewRequest, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req ReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return req, false
	}
	if req.Source == "" || req.ExternalID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("source and external_id are required"))
		return req, false
	}
	return req, true
}

func (h *Handler) writeMappingErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("mapping not found"))
	case errors.Is(err, apperr.ErrInvalidTaxonomyRef):
		writeJSON(w, http.StatusBadRequest, errorBody("taxonomy node does not exist"))
	case errors.Is(err, apperr.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody("mapping already reviewed"))
	default:
		slog.Error("mapping mutation failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

// ConfirmMapping handles POST /api/mappings/confirm (manual review).
//
//	@Summary		Manually confirm a category mapping
//	@Tags			mappings
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ReviewRequest	true	"Mapping key + taxonomy node"
//	@Success		200		{object}	mapping.Mapping
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/mappings/confirm [post]
func (h *Handler) ConfirmMapping(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeReview(w, r)
	if !ok {
		return
	}
	m, err := h.mapper.Confirm(req.Source, req.ExternalID, req.TaxonomyNodeID, req.Notes)
	if err != nil {
		h.writeMappingErr(w, err)
		return
	}
	h.publishMapping(m)
	writeJSON(w, http.StatusOK, m)
}

// RejectMapping handles POST /api/mappings/reject (manual review).
func (h *Handler) RejectMapping(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeReview(w, r)
	if !ok {
		return
	}
	m, err := h.mapper.Reject(req.Source, req.ExternalID, req.Notes)
	if err != nil {
		h.writeMappingErr(w, err)
		return
	}
	h.publishMapping(m)
	writeJSON(w, http.StatusOK, m)
}

// AutomaticMatch handles POST /api/mappings/automatch, the endpoint an
// external matcher uses to record its suggestion. A mapping that has left
// the pending state reports a conflict instead of being overwritten.
func (h *Handler) AutomaticMatch(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeReview(w, r)
	if !ok {
		return
	}
	m, err := h.mapper.ApplyAutomaticMatch(req.Source, req.ExternalID, req.TaxonomyNodeID, req.Confidence)
	if err != nil {
		h.writeMappingErr(w, err)
		return
	}
	h.publishMapping(m)
	writeJSON(w, http.StatusOK, m)
}

// TaxonomyRoots handles GET /api/taxonomy.
func (h *Handler) TaxonomyRoots(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("all") == "true" {
		writeJSON(w, http.StatusOK, map[string]any{"nodes": h.tax.All(), "total": h.tax.Len()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"nodes": h.tax.Roots(), "total": h.tax.Len()})
}

// TaxonomyNode handles GET /api/taxonomy/{id}.
func (h *Handler) TaxonomyNode(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	node, err := h.tax.Lookup(id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"node":     node,
		"path":     h.tax.Path(id),
		"children": h.tax.Children(id),
	})
}

// TaxonomySearch handles GET /api/taxonomy/search?q=.
func (h *Handler) TaxonomySearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("q is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	writeJSON(w, http.StatusOK, map[string]any{"results": h.tax.Search(q, limit)})
}

// SearchProducts handles GET /api/products/search?q=.
func (h *Handler) SearchProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("q is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items, err := h.db.SearchProducts(r.Context(), q, limit)
	if err != nil {
		slog.Error("product search failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if items == nil {
		items = []models.StoredProduct{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": items})
}

// GetProduct handles GET /api/products/{key}.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	p, err := h.db.GetProduct(r.Context(), key)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
			return
		}
		slog.Error("get product failed", slog.String("key", key), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ProductHistory handles GET /api/products/{key}/history.
func (h *Handler) ProductHistory(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if _, err := h.db.GetProduct(r.Context(), key); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
			return
		}
		slog.Error("get product failed", slog.String("key", key), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	entries, err := h.db.History(r.Context(), key)
	if err != nil {
		slog.Error("history failed", slog.String("key", key), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if entries == nil {
		entries = []models.PriceHistoryEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"key": key, "history": entries})
}

func canonicalFromPayload(p ProductPayload) models.CanonicalProduct {
	return models.CanonicalProduct{
		ID:             p.ID,
		Source:         p.Source,
		DisplayName:    p.DisplayName,
		Brand:          p.Brand,
		CategoryPath:   p.CategoryPath,
		TaxonomyNodeID: p.TaxonomyNodeID,
		Price:          parser.Price(p.Price),
		PricePerUnit:   parser.Price(p.PricePerUnit),
		Unit:           p.Unit,
		URL:            p.URL,
		ImageURL:       p.ImageURL,
	}
}
