package api

import (
	"net/http"

	"github.com/getmockd/apilab/internal/id"
	"github.com/getmockd/apilab/pkg/apitest"
	"github.com/getmockd/apilab/pkg/httputil"
	"github.com/getmockd/apilab/pkg/store"
)

func (s *Server) handleListEnvironments(w http.ResponseWriter, r *http.Request) {
	envs, err := s.store.Environments().List(r.Context())
	if err != nil {
		writeError(w, s.log, err, "list environments")
		return
	}
	httputil.WriteOK(w, envs)
}

func (s *Server) handleCreateEnvironment(w http.ResponseWriter, r *http.Request) {
	var env apitest.Environment
	if !s.decode(w, r, &env) {
		return
	}
	if err := env.Validate(); err != nil {
		writeError(w, s.log, err, "create environment")
		return
	}
	env.ID = id.UUID()
	if env.Variables == nil {
		env.Variables = map[string]string{}
	}
	if err := s.store.Environments().Create(r.Context(), &env); err != nil {
		writeError(w, s.log, err, "create environment")
		return
	}
	s.publish(store.CollectionEnvironments, store.OpCreate, env.ID)
	httputil.WriteCreated(w, &env)
}

func (s *Server) handleGetEnvironment(w http.ResponseWriter, r *http.Request) {
	envID := r.PathValue("id")
	env, err := s.store.Environments().Get(r.Context(), envID)
	if err != nil {
		writeError(w, s.log, err, "get environment", "id", envID)
		return
	}
	httputil.WriteOK(w, env)
}

func (s *Server) handleUpdateEnvironment(w http.ResponseWriter, r *http.Request) {
	envID := r.PathValue("id")
	var env apitest.Environment
	if !s.decode(w, r, &env) {
		return
	}
	if err := env.Validate(); err != nil {
		writeError(w, s.log, err, "update environment")
		return
	}
	env.ID = envID
	if env.Variables == nil {
		env.Variables = map[string]string{}
	}
	if err := s.store.Environments().Update(r.Context(), &env); err != nil {
		writeError(w, s.log, err, "update environment", "id", envID)
		return
	}
	updated, err := s.store.Environments().Get(r.Context(), envID)
	if err != nil {
		writeError(w, s.log, err, "get environment", "id", envID)
		return
	}
	s.publish(store.CollectionEnvironments, store.OpUpdate, envID)
	httputil.WriteOK(w, updated)
}

func (s *Server) handleDeleteEnvironment(w http.ResponseWriter, r *http.Request) {
	envID := r.PathValue("id")
	if err := s.store.Environments().Delete(r.Context(), envID); err != nil {
		writeError(w, s.log, err, "delete environment", "id", envID)
		return
	}
	s.publish(store.CollectionEnvironments, store.OpDelete, envID)
	httputil.WriteNoContent(w)
}
