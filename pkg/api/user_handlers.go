package api

import (
	"net/http"

	"github.com/getmockd/apilab/pkg/auth"
	"github.com/getmockd/apilab/pkg/httputil"
	"github.com/getmockd/apilab/pkg/store"
)

type createUserRequest struct {
	Email    string    `json:"email"`
	Name     string    `json:"name"`
	Password string    `json:"password"`
	Role     auth.Role `json:"role"`
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.Users().List(r.Context())
	if err != nil {
		writeError(w, s.log, err, "list users")
		return
	}
	out := make([]*auth.User, 0, len(users))
	for _, u := range users {
		out = append(out, u.Public())
	}
	httputil.WriteOK(w, out)
}

// handleCreateUser creates an account. The role defaults to viewer.
func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Role == "" {
		req.Role = auth.RoleViewer
	}
	u, err := s.auth.CreateUser(r.Context(), req.Email, req.Name, req.Password, req.Role)
	if err != nil {
		writeError(w, s.log, err, "create user")
		return
	}
	s.log.Info("user created", "id", u.ID, "email", u.Email, "role", u.Role)
	s.publish(store.CollectionUsers, store.OpCreate, u.ID)
	httputil.WriteCreated(w, u.Public())
}

// handleDeleteUser removes an account. Admins cannot delete themselves.
func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	if claims, ok := auth.ClaimsFrom(r.Context()); ok && claims.UserID() == userID {
		httputil.WriteBadRequest(w, "cannot_delete_self", "you cannot delete your own account")
		return
	}
	if err := s.store.Users().Delete(r.Context(), userID); err != nil {
		writeError(w, s.log, err, "delete user", "id", userID)
		return
	}
	s.publish(store.CollectionUsers, store.OpDelete, userID)
	httputil.WriteNoContent(w)
}
