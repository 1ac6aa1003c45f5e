package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/meur/compendium/internal/jobs"
)

const allEntities = "all"

type indexStatus struct {
	Entity     string `json:"entity"`
	Index      string `json:"index"`
	Configured bool   `json:"configured"`
	Documents  uint64 `json:"documents"`
}

// handleIndexStatus reports every index and its document count
func (s *Server) handleIndexStatus(w http.ResponseWriter, r *http.Request) {
	var data []indexStatus
	for _, entity := range s.engine.Entities() {
		st := indexStatus{Entity: entity, Index: s.engine.IndexName(entity)}
		if s.engine.Configured(entity) {
			n, err := s.engine.Count(entity)
			if err != nil {
				respondErr(w, r, err)
				return
			}
			st.Configured = true
			st.Documents = n
		}
		data = append(data, st)
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"data": data})
}

// handleConfigureIndexes queues configure-indexes
func (s *Server) handleConfigureIndexes(w http.ResponseWriter, r *http.Request) {
	s.submit(w, r, "configure", "", func(ctx context.Context) (interface{}, error) {
		return s.engine.Configure(ctx)
	})
}

// handleImportIndex queues an import of one entity type, or of all of them
func (s *Server) handleImportIndex(w http.ResponseWriter, r *http.Request) {
	entity := chi.URLParam(r, "type")
	if entity == allEntities {
		s.submit(w, r, "import", entity, func(ctx context.Context) (interface{}, error) {
			return s.importer.ImportAll(ctx)
		})
		return
	}
	if _, err := s.engine.Definition(entity); err != nil {
		respondErr(w, r, err)
		return
	}
	s.submit(w, r, "import", entity, func(ctx context.Context) (interface{}, error) {
		return s.importer.Import(ctx, entity)
	})
}

// handleFlushIndex queues the removal of every document of one entity type
func (s *Server) handleFlushIndex(w http.ResponseWriter, r *http.Request) {
	entity := chi.URLParam(r, "type")
	if _, err := s.engine.Definition(entity); err != nil {
		respondErr(w, r, err)
		return
	}
	s.submit(w, r, "flush", entity, func(ctx context.Context) (interface{}, error) {
		return nil, s.engine.Flush(ctx, entity)
	})
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request, kind, entity string, fn jobs.Func) {
	job, err := s.jobs.Submit(kind, entity, fn)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/admin/jobs/"+job.ID)
	respondJSON(w, http.StatusAccepted, map[string]interface{}{"data": job})
}

// handleListJobs returns the recent admin jobs, newest first
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{"data": s.jobs.List()})
}

// handleGetJob returns one admin job
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"data": job})
}
