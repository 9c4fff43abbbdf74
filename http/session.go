package http

import (
	"encoding/json"
	"net/http"
)

type sessionHandler struct {
	s SessionInfo
}

func newSessionHandler(s SessionInfo) http.Handler { return &sessionHandler{s} }

func (sh *sessionHandler) handleGet(w http.ResponseWriter, r *http.Request) error {
	respBytes, err := json.Marshal(sh.s.Info())
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(respBytes)
	return err
}

func (sh *sessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var err error
	switch r.Method {
	case http.MethodGet:
		if r.URL.Path != "/" && r.URL.Path != "" {
			http.NotFound(w, r)
			return
		}
		err = sh.handleGet(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
