package api

import (
	"net/http"
	"os"

	"github.com/gorilla/mux"

	"github.com/callwaiting/tts-service/internal/apierr"
	"github.com/callwaiting/tts-service/internal/auth"
)

// handleServeAudio retrieves a stored audio file. Two authorization paths:
// a signed token in the query string (issued for object-store results), or
// a Bearer key belonging to the tenant in the path (local backend only).
func (s *Server) handleServeAudio(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	tenantID, fileID := vars["tenantID"], vars["fileID"]

	if token := r.URL.Query().Get("token"); token != "" {
		data, contentType, err := s.storage.FetchSigned(r.Context(), token, tenantID, fileID)
		if err != nil {
			apierr.Write(w, err)
			return
		}
		if contentType == "" {
			contentType = "audio/wav"
		}
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write(data)
		return
	}

	s.auth.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant, _ := auth.TenantFromContext(r.Context())
		if tenant.ID != tenantID {
			apierr.Write(w, apierr.E(apierr.Forbidden, "Audio file belongs to another tenant"))
			return
		}

		path, err := s.storage.LocalFilePath(tenantID, fileID)
		if err != nil {
			apierr.Write(w, err)
			return
		}
		if _, err := os.Stat(path); err != nil {
			apierr.Write(w, apierr.E(apierr.NotFound, "Audio file not found"))
			return
		}

		w.Header().Set("Content-Type", "audio/wav")
		http.ServeFile(w, r, path)
	})).ServeHTTP(w, r)
}
