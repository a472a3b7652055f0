package httpapi

import "net/http"

func (s *Server) handleUsersList(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.queryContext(r)
	defer cancel()
	users, err := s.accounts.ListUsers(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]userDTO, 0, len(users))
	for _, u := range users {
		out = append(out, toUserDTO(u))
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "user_info": out})
}

func (s *Server) handleUsersCreate(w http.ResponseWriter, r *http.Request) {
	var body createUserRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	ctx, cancel := s.queryContext(r)
	defer cancel()
	u, err := s.accounts.CreateUser(ctx, body.Username, body.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"message": "User created successfully",
		"user":    map[string]any{"id": u.ID, "username": u.Username},
	})
}

// handleDevices returns one device for ?id=, otherwise all of them.
func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	ctx, cancel := s.queryContext(r)
	defer cancel()
	if id != nil {
		d, err := s.accounts.GetDevice(ctx, *id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": toDeviceDTO(*d)})
		return
	}
	devices, err := s.accounts.ListDevices(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]deviceDTO, 0, len(devices))
	for _, d := range devices {
		out = append(out, toDeviceDTO(d))
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": out})
}
