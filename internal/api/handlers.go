package api

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/vaultlens/internal/vaultservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc *vaultservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *vaultservice.Service) *Handler {
	return &Handler{svc: svc}
}

// vaultID parses the {id} URL parameter.
func vaultID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

// notePath extracts the note path after /notes/. Encoded slashes
// (e.g. topics%2Fnote.md) are accepted.
func notePath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

func badID(w http.ResponseWriter) {
	writeJSON(w, http.StatusBadRequest, errorBody("invalid vault id"))
}

// ListVaults handles GET /api/vaults.
//
//	@Summary		List registered vaults
//	@Tags			vaults
//	@Produce		json
//	@Success		200	{object}	VaultListResponse
//	@Security		BearerAuth
//	@Router			/vaults [get]
func (h *Handler) ListVaults(w http.ResponseWriter, r *http.Request) {
	vaults, err := h.svc.ListVaults(r.Context())
	if err != nil {
		writeError(w, "list vaults", err)
		return
	}
	writeJSON(w, http.StatusOK, VaultListResponse{Vaults: vaults})
}

// GetVault handles GET /api/vaults/{id}.
//
//	@Summary		Get a vault
//	@Tags			vaults
//	@Produce		json
//	@Param			id	path		int	true	"Vault id"
//	@Success		200	{object}	models.Vault
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/vaults/{id} [get]
func (h *Handler) GetVault(w http.ResponseWriter, r *http.Request) {
	id, ok := vaultID(r)
	if !ok {
		badID(w)
		return
	}
	v, err := h.svc.GetVault(r.Context(), id)
	if err != nil {
		writeError(w, "get vault", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// Report handles GET /api/vaults/{id}/report.
//
//	@Summary		Full vault report
//	@Tags			vaults
//	@Produce		json
//	@Param			id	path		int	true	"Vault id"
//	@Success		200	{object}	vaultservice.Report
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/vaults/{id}/report [get]
func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	id, ok := vaultID(r)
	if !ok {
		badID(w)
		return
	}
	rep, err := h.svc.Report(r.Context(), id)
	if err != nil {
		writeError(w, "report", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// Metrics handles GET /api/vaults/{id}/metrics.
//
//	@Summary		Per-note metrics snapshot
//	@Tags			analysis
//	@Produce		json
//	@Param			id	path		int	true	"Vault id"
//	@Success		200	{object}	MetricsResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/vaults/{id}/metrics [get]
func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request) {
	id, ok := vaultID(r)
	if !ok {
		badID(w)
		return
	}
	m, err := h.svc.Metrics(r.Context(), id)
	if err != nil {
		writeError(w, "metrics", err)
		return
	}
	writeJSON(w, http.StatusOK, MetricsResponse{Metrics: m})
}

// Hubs handles GET /api/vaults/{id}/hubs.
//
//	@Summary		Highly connected notes
//	@Tags			analysis
//	@Produce		json
//	@Param			id		path		int	true	"Vault id"
//	@Param			limit	query		int	false	"Max results"
//	@Success		200		{object}	RankedNoteListResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/vaults/{id}/hubs [get]
func (h *Handler) Hubs(w http.ResponseWriter, r *http.Request) {
	id, ok := vaultID(r)
	if !ok {
		badID(w)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	hubs, err := h.svc.Hubs(r.Context(), id, limit)
	if err != nil {
		writeError(w, "hubs", err)
		return
	}
	writeJSON(w, http.StatusOK, RankedNoteListResponse{Notes: hubs, Total: len(hubs)})
}

// Orphans handles GET /api/vaults/{id}/orphans.
//
//	@Summary		Notes without resolved links
//	@Tags			analysis
//	@Produce		json
//	@Param			id	path		int	true	"Vault id"
//	@Success		200	{object}	RankedNoteListResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/vaults/{id}/orphans [get]
func (h *Handler) Orphans(w http.ResponseWriter, r *http.Request) {
	id, ok := vaultID(r)
	if !ok {
		badID(w)
		return
	}
	orphans, err := h.svc.Orphans(r.Context(), id)
	if err != nil {
		writeError(w, "orphans", err)
		return
	}
	writeJSON(w, http.StatusOK, RankedNoteListResponse{Notes: orphans, Total: len(orphans)})
}

// BrokenLinks handles GET /api/vaults/{id}/broken-links.
//
//	@Summary		Unresolved references
//	@Tags			analysis
//	@Produce		json
//	@Param			id	path		int	true	"Vault id"
//	@Success		200	{object}	BrokenLinksResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/vaults/{id}/broken-links [get]
func (h *Handler) BrokenLinks(w http.ResponseWriter, r *http.Request) {
	id, ok := vaultID(r)
	if !ok {
		badID(w)
		return
	}
	links, err := h.svc.BrokenLinks(r.Context(), id)
	if err != nil {
		writeError(w, "broken links", err)
		return
	}
	writeJSON(w, http.StatusOK, BrokenLinksResponse{BrokenLinks: links})
}

// Clusters handles GET /api/vaults/{id}/clusters.
//
//	@Summary		Topical communities
//	@Tags			analysis
//	@Produce		json
//	@Param			id	path		int	true	"Vault id"
//	@Success		200	{object}	ClustersResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/vaults/{id}/clusters [get]
func (h *Handler) Clusters(w http.ResponseWriter, r *http.Request) {
	id, ok := vaultID(r)
	if !ok {
		badID(w)
		return
	}
	clusters, err := h.svc.Clusters(r.Context(), id)
	if err != nil {
		writeError(w, "clusters", err)
		return
	}
	writeJSON(w, http.StatusOK, ClustersResponse{Clusters: clusters})
}

// NoteMetrics handles GET /api/vaults/{id}/notes/*.
//
//	@Summary		Metrics of one note
//	@Tags			analysis
//	@Produce		json
//	@Param			id		path		int		true	"Vault id"
//	@Param			path	path		string	true	"Note path"
//	@Success		200		{object}	NoteMetricsResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/vaults/{id}/notes/{path} [get]
func (h *Handler) NoteMetrics(w http.ResponseWriter, r *http.Request) {
	id, ok := vaultID(r)
	if !ok {
		badID(w)
		return
	}
	path := notePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	nm, err := h.svc.NoteMetrics(r.Context(), id, path)
	if err != nil {
		writeError(w, "note metrics", err)
		return
	}
	writeJSON(w, http.StatusOK, nm)
}

// LatestScan handles GET /api/vaults/{id}/scans/latest.
//
//	@Summary		Most recent scan result
//	@Tags			scans
//	@Produce		json
//	@Param			id	path		int	true	"Vault id"
//	@Success		200	{object}	ScanResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/vaults/{id}/scans/latest [get]
func (h *Handler) LatestScan(w http.ResponseWriter, r *http.Request) {
	id, ok := vaultID(r)
	if !ok {
		badID(w)
		return
	}
	res, err := h.svc.LatestScan(r.Context(), id)
	if err != nil {
		writeError(w, "latest scan", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Scan handles POST /api/vaults/{id}/scan.
//
//	@Summary		Rescan a vault
//	@Tags			scans
//	@Produce		json
//	@Param			id		path		int		true	"Vault id"
//	@Param			force	query		bool	false	"Reparse unchanged files"
//	@Success		200		{object}	ScanResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/vaults/{id}/scan [post]
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	id, ok := vaultID(r)
	if !ok {
		badID(w)
		return
	}
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	res, err := h.svc.Scan(r.Context(), id, force)
	if err != nil {
		writeError(w, "scan", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Analyze handles POST /api/vaults/{id}/analyze.
//
//	@Summary		Run graph analysis
//	@Tags			analysis
//	@Produce		json
//	@Param			id	path		int	true	"Vault id"
//	@Success		200	{object}	AnalyzeResponse
//	@Failure		404	{object}	errResponse
//	@Failure		500	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/vaults/{id}/analyze [post]
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	id, ok := vaultID(r)
	if !ok {
		badID(w)
		return
	}
	res, err := h.svc.Analyze(r.Context(), id)
	if err != nil {
		writeError(w, "analyze", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
