// Package v1 provides the v1 API routes.
package v1

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/helixml/vectorizer"
	"github.com/helixml/vectorizer/infrastructure/api/jsonapi"
	"github.com/helixml/vectorizer/infrastructure/api/middleware"
	"github.com/helixml/vectorizer/infrastructure/api/v1/dto"
)

// VectorizersRouter handles vectorizer API endpoints.
type VectorizersRouter struct {
	client *vectorizer.Client
	logger *slog.Logger
}

// NewVectorizersRouter creates a new VectorizersRouter.
func NewVectorizersRouter(client *vectorizer.Client) *VectorizersRouter {
	return &VectorizersRouter{
		client: client,
		logger: client.Logger(),
	}
}

// Routes returns the chi router for vectorizer endpoints.
func (r *VectorizersRouter) Routes() chi.Router {
	router := chi.NewRouter()

	router.Get("/", r.List)
	router.Post("/", r.Create)
	router.Get("/{id}", r.Get)
	router.Delete("/{id}", r.Drop)
	router.Post("/{id}/schedule/enable", r.EnableSchedule)
	router.Post("/{id}/schedule/disable", r.DisableSchedule)
	router.Get("/{id}/pending", r.Pending)
	router.Post("/{id}/execute", r.Execute)
	router.Post("/{id}/run", r.Run)

	return router
}

// List handles GET /api/v1/vectorizers.
//
//	@Summary		List vectorizers
//	@Description	Get every vectorizer with its bounded queue backlog
//	@Tags			vectorizers
//	@Produce		json
//	@Success		200	{object}	jsonapi.Document
//	@Failure		500	{object}	jsonapi.Document
//	@Router			/vectorizers [get]
func (r *VectorizersRouter) List(w http.ResponseWriter, req *http.Request) {
	rows, err := r.client.Status.List(req.Context())
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, jsonapi.NewStatusListResponse(rows))
}

// Create handles POST /api/v1/vectorizers.
//
//	@Summary		Create vectorizer
//	@Description	Provision the target table, view, queue and trigger for a source table
//	@Tags			vectorizers
//	@Accept			json
//	@Produce		json
//	@Param			body	body		dto.CreateVectorizerRequest	true	"Vectorizer definition"
//	@Success		201		{object}	jsonapi.Document
//	@Failure		400		{object}	jsonapi.Document
//	@Failure		409		{object}	jsonapi.Document
//	@Security		APIKeyAuth
//	@Router			/vectorizers [post]
func (r *VectorizersRouter) Create(w http.ResponseWriter, req *http.Request) {
	var body dto.CreateVectorizerRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		middleware.WriteError(w, req, middleware.NewAPIError(http.StatusBadRequest, "invalid request body", err), r.logger)
		return
	}
	if err := body.Validate(); err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	v, err := r.client.Vectorizers.Create(req.Context(), body.ToService())
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("%s/%d", req.URL.Path, v.ID()))
	middleware.WriteJSON(w, http.StatusCreated, jsonapi.NewSingleResponse(jsonapi.NewVectorizerResource(v)))
}

// Get handles GET /api/v1/vectorizers/{id}.
//
//	@Summary		Get vectorizer
//	@Tags			vectorizers
//	@Produce		json
//	@Param			id	path		int	true	"Vectorizer ID"
//	@Success		200	{object}	jsonapi.Document
//	@Failure		404	{object}	jsonapi.Document
//	@Router			/vectorizers/{id} [get]
func (r *VectorizersRouter) Get(w http.ResponseWriter, req *http.Request) {
	id, ok := r.vectorizerID(w, req)
	if !ok {
		return
	}

	v, err := r.client.Vectorizers.Get(req.Context(), id)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, jsonapi.NewSingleResponse(jsonapi.NewVectorizerResource(v)))
}

// Drop handles DELETE /api/v1/vectorizers/{id}.
//
//	@Summary		Drop vectorizer
//	@Description	Remove the trigger, queue and job. With drop_all the target table and view go too.
//	@Tags			vectorizers
//	@Param			id			path	int		true	"Vectorizer ID"
//	@Param			drop_all	query	bool	false	"Also drop the target table and view"
//	@Success		204
//	@Failure		404	{object}	jsonapi.Document
//	@Security		APIKeyAuth
//	@Router			/vectorizers/{id} [delete]
func (r *VectorizersRouter) Drop(w http.ResponseWriter, req *http.Request) {
	id, ok := r.vectorizerID(w, req)
	if !ok {
		return
	}
	dropAll, ok := r.boolQuery(w, req, "drop_all")
	if !ok {
		return
	}

	if err := r.client.Vectorizers.Drop(req.Context(), id, dropAll); err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// EnableSchedule handles POST /api/v1/vectorizers/{id}/schedule/enable.
//
//	@Summary		Enable schedule
//	@Tags			vectorizers
//	@Param			id	path	int	true	"Vectorizer ID"
//	@Success		204
//	@Failure		409	{object}	jsonapi.Document
//	@Security		APIKeyAuth
//	@Router			/vectorizers/{id}/schedule/enable [post]
func (r *VectorizersRouter) EnableSchedule(w http.ResponseWriter, req *http.Request) {
	id, ok := r.vectorizerID(w, req)
	if !ok {
		return
	}
	if err := r.client.Vectorizers.EnableSchedule(req.Context(), id); err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DisableSchedule handles POST /api/v1/vectorizers/{id}/schedule/disable.
//
//	@Summary		Disable schedule
//	@Tags			vectorizers
//	@Param			id	path	int	true	"Vectorizer ID"
//	@Success		204
//	@Failure		409	{object}	jsonapi.Document
//	@Security		APIKeyAuth
//	@Router			/vectorizers/{id}/schedule/disable [post]
func (r *VectorizersRouter) DisableSchedule(w http.ResponseWriter, req *http.Request) {
	id, ok := r.vectorizerID(w, req)
	if !ok {
		return
	}
	if err := r.client.Vectorizers.DisableSchedule(req.Context(), id); err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Pending handles GET /api/v1/vectorizers/{id}/pending.
//
//	@Summary		Queue backlog
//	@Description	Bounded by default; pass exact=true to count every queued row
//	@Tags			vectorizers
//	@Produce		json
//	@Param			id		path		int		true	"Vectorizer ID"
//	@Param			exact	query		bool	false	"Count every row"
//	@Success		200		{object}	jsonapi.Document
//	@Failure		404		{object}	jsonapi.Document
//	@Router			/vectorizers/{id}/pending [get]
func (r *VectorizersRouter) Pending(w http.ResponseWriter, req *http.Request) {
	id, ok := r.vectorizerID(w, req)
	if !ok {
		return
	}
	exact, ok := r.boolQuery(w, req, "exact")
	if !ok {
		return
	}

	n, err := r.client.Status.Pending(req.Context(), id, exact)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, jsonapi.NewSingleResponse(jsonapi.NewPendingResource(id, n, exact)))
}

// Execute handles POST /api/v1/vectorizers/{id}/execute.
//
//	@Summary		Process one batch
//	@Tags			vectorizers
//	@Produce		json
//	@Param			id	path		int	true	"Vectorizer ID"
//	@Success		200	{object}	jsonapi.Document
//	@Failure		404	{object}	jsonapi.Document
//	@Failure		501	{object}	jsonapi.Document
//	@Security		APIKeyAuth
//	@Router			/vectorizers/{id}/execute [post]
func (r *VectorizersRouter) Execute(w http.ResponseWriter, req *http.Request) {
	id, ok := r.vectorizerID(w, req)
	if !ok {
		return
	}

	res, err := r.client.Vectorizers.Execute(req.Context(), id)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, jsonapi.NewSingleResponse(jsonapi.NewExecutionResource(id, res)))
}

// Run handles POST /api/v1/vectorizers/{id}/run.
//
//	@Summary		Run the job now
//	@Description	Fan out executor calls over the current backlog, then consider the vector index
//	@Tags			vectorizers
//	@Produce		json
//	@Param			id	path		int	true	"Vectorizer ID"
//	@Success		200	{object}	jsonapi.Document
//	@Failure		404	{object}	jsonapi.Document
//	@Security		APIKeyAuth
//	@Router			/vectorizers/{id}/run [post]
func (r *VectorizersRouter) Run(w http.ResponseWriter, req *http.Request) {
	id, ok := r.vectorizerID(w, req)
	if !ok {
		return
	}

	res, err := r.client.Vectorizers.Run(req.Context(), id)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, jsonapi.NewSingleResponse(jsonapi.NewRunResource(res)))
}

func (r *VectorizersRouter) vectorizerID(w http.ResponseWriter, req *http.Request) (int64, bool) {
	idStr := chi.URLParam(req, "id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		middleware.WriteError(w, req, middleware.NewAPIError(http.StatusBadRequest, "invalid vectorizer id: "+idStr, err), r.logger)
		return 0, false
	}
	return id, true
}

func (r *VectorizersRouter) boolQuery(w http.ResponseWriter, req *http.Request, name string) (bool, bool) {
	raw := req.URL.Query().Get(name)
	if raw == "" {
		return false, true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		middleware.WriteError(w, req, middleware.NewAPIError(http.StatusBadRequest, "invalid "+name+": "+raw, err), r.logger)
		return false, false
	}
	return v, true
}
