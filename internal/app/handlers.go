package app

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strings"

	"github.com/vk/pipebook/internal/contents"
	"github.com/vk/pipebook/internal/ctxlog"
	"github.com/vk/pipebook/internal/notebook"
	"github.com/vk/pipebook/internal/pysrc"
)

const contentsPrefix = "/api/contents/"

// saveRequest is the wire shape of a save or rename request body.
type saveRequest struct {
	Name    string          `json:"name"`
	Path    string          `json:"path"`
	Type    string          `json:"type"`
	Format  string          `json:"format"`
	Content json.RawMessage `json:"content"`
}

// contentsHandler serves the host's contents protocol: GET lists or fetches,
// PUT saves, PATCH renames, DELETE deletes.
func (a *App) contentsHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := ctxlog.WithLogger(r.Context(), a.logger)
		apiPath := strings.Trim(strings.TrimPrefix(r.URL.Path, contentsPrefix), "/")

		switch r.Method {
		case http.MethodGet:
			withContent := r.URL.Query().Get("content") != "0"
			model, err := a.manager.Get(ctx, apiPath, withContent)
			if err != nil {
				a.writeError(w, err)
				return
			}
			a.writeJSON(w, http.StatusOK, model)

		case http.MethodPut:
			var req saveRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				a.writeError(w, &badRequestError{err})
				return
			}
			model, err := modelFromRequest(&req)
			if err != nil {
				a.writeError(w, &badRequestError{err})
				return
			}
			saved, err := a.manager.Save(ctx, model, apiPath)
			if err != nil {
				a.writeError(w, err)
				return
			}
			a.writeJSON(w, http.StatusOK, saved)

		case http.MethodPatch:
			var req saveRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				a.writeError(w, &badRequestError{err})
				return
			}
			if err := a.manager.Rename(ctx, apiPath, strings.Trim(req.Path, "/")); err != nil {
				a.writeError(w, err)
				return
			}
			model, err := a.manager.Get(ctx, strings.Trim(req.Path, "/"), false)
			if err != nil {
				a.writeError(w, err)
				return
			}
			a.writeJSON(w, http.StatusOK, model)

		case http.MethodDelete:
			if err := a.manager.Delete(ctx, apiPath); err != nil {
				a.writeError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)

		default:
			w.Header().Set("Allow", "GET, PUT, PATCH, DELETE")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
}

// modelFromRequest converts the wire shape into the manager's model,
// decoding notebook content into the cell model.
func modelFromRequest(req *saveRequest) (*contents.Model, error) {
	model := &contents.Model{
		Name:   req.Name,
		Path:   strings.Trim(req.Path, "/"),
		Type:   req.Type,
		Format: req.Format,
	}
	switch req.Type {
	case contents.TypeNotebook:
		nb := notebook.New()
		if err := nb.UnmarshalJSON(req.Content); err != nil {
			return nil, err
		}
		model.Content = nb
	case contents.TypeDirectory:
	default:
		var text string
		if len(req.Content) > 0 {
			if err := json.Unmarshal(req.Content, &text); err != nil {
				return nil, err
			}
		}
		model.Content = text
	}
	return model, nil
}

type badRequestError struct{ err error }

func (e *badRequestError) Error() string { return e.err.Error() }
func (e *badRequestError) Unwrap() error { return e.err }

// writeError maps the error taxonomy onto HTTP statuses.
func (a *App) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var badReq *badRequestError
	var fnErr *pysrc.FunctionNotFoundError
	switch {
	case errors.Is(err, os.ErrNotExist):
		status = http.StatusNotFound
	case errors.Is(err, contents.ErrUnsupported):
		status = http.StatusBadRequest
	case errors.As(err, &badReq):
		status = http.StatusBadRequest
	case errors.As(err, &fnErr):
		status = http.StatusNotFound
	}
	if status == http.StatusInternalServerError {
		a.logger.Error("Request failed", "error", err)
	} else {
		a.logger.Debug("Request rejected.", "status", status, "error", err)
	}
	a.writeJSON(w, status, map[string]string{"message": err.Error()})
}

func (a *App) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Error("Response encoding failed", "error", err)
	}
}
