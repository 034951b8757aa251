package app

import (
	"net/http"
	"strings"

	"teamdesk/api/internal/authpw"
	"teamdesk/api/internal/store"
)

type signInBody struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type addMemberBody struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"max=120"`
	Position string `json:"position" validate:"max=120"`
}

type profileBody struct {
	Name         *string `json:"name" validate:"omitempty,max=120"`
	DOB          *string `json:"dob"`
	Phone        *string `json:"phone" validate:"omitempty,max=40"`
	Address      *string `json:"address"`
	Position     *string `json:"position" validate:"omitempty,max=120"`
	ProfileImage *string `json:"profileImage"`
	Password     *string `json:"password" validate:"omitempty,min=5"`
}

type passwordBody struct {
	Current string `json:"current_password" validate:"required"`
	New     string `json:"new_password" validate:"required,min=5"`
}

func (s *HTTPServer) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var body signInBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if !s.check(w, &body) {
		return
	}
	user, err := s.service.SignIn(r.Context(), authpw.SignInRequest{Email: body.Email, Password: body.Password})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

func (s *HTTPServer) handleAddMember(w http.ResponseWriter, r *http.Request) {
	var body addMemberBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if !s.check(w, &body) {
		return
	}
	user, err := s.service.AddMember(r.Context(), authpw.AddMemberRequest{
		Email:    body.Email,
		Name:     body.Name,
		Position: body.Position,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user": user})
}

func (s *HTTPServer) handleListMembers(w http.ResponseWriter, r *http.Request) {
	users, err := s.service.ListMembers(r.Context(), r.URL.Query().Get("q"), queryRef(r, "exclude_project"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"members": users})
}

func (s *HTTPServer) handleRegisteredMembers(w http.ResponseWriter, r *http.Request) {
	users, err := s.service.RegisteredMembers(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"members": users})
}

func (s *HTTPServer) handleUsersByIDs(w http.ResponseWriter, r *http.Request) {
	ids := store.ParseRefs(splitList(r.URL.Query().Get("ids")))
	users, err := s.service.UsersByIDs(r.Context(), ids)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (s *HTTPServer) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathRef(w, r, "user")
	if !ok {
		return
	}
	user, err := s.service.GetUser(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *HTTPServer) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := pathRef(w, r, "user")
	if !ok {
		return
	}
	var body profileBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if !s.check(w, &body) {
		return
	}
	user, err := s.service.UpdateProfile(r.Context(), id, authpw.ProfileUpdate{
		Name:         body.Name,
		DOB:          body.DOB,
		Phone:        body.Phone,
		Address:      body.Address,
		Position:     body.Position,
		ProfileImage: body.ProfileImage,
		Password:     body.Password,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

func (s *HTTPServer) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	id, ok := pathRef(w, r, "user")
	if !ok {
		return
	}
	var body passwordBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if !s.check(w, &body) {
		return
	}
	if err := s.service.ChangePassword(r.Context(), id, body.Current, strings.TrimSpace(body.New)); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathRef(w, r, "user")
	if !ok {
		return
	}
	if err := s.service.DeleteUser(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": id.Hex()})
}
