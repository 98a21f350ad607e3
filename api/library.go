package handler

import (
	"net/http"
	"strconv"

	"kinobot/internal/menu"
	"kinobot/internal/storage"
)

type libraryItem struct {
	Code       string  `json:"code"`
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	Desc       string  `json:"desc,omitempty"`
	ParentCode *string `json:"parent_code,omitempty"`
	Views      int64   `json:"views"`
	Link       string  `json:"link,omitempty"`
}

func (s *Server) library(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > s.opts.LibraryLimit {
		limit = s.opts.LibraryLimit
	}
	movies, err := s.catalog.ListMovies(r.Context(), limit)
	if err != nil {
		s.log.Error("library list failed", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	out := make([]libraryItem, 0, len(movies))
	for i := range movies {
		out = append(out, s.buildLibraryItem(&movies[i]))
	}
	writeJSON(w, out)
}

func (s *Server) libraryItem(w http.ResponseWriter, r *http.Request) {
	code := storage.NormalizeCode(r.URL.Query().Get("code"))
	if code == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	m, err := s.catalog.GetMovie(r.Context(), code)
	if err != nil {
		s.log.Error("library item failed", "code", code, "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if m == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, s.buildLibraryItem(m))
}

func (s *Server) buildLibraryItem(m *storage.Movie) libraryItem {
	item := libraryItem{
		Code:       m.Code,
		Name:       m.Title(),
		Type:       string(m.Kind),
		Desc:       m.Description,
		ParentCode: m.ParentCode,
		Views:      m.Views,
	}
	if s.opts.BotUsername != "" {
		item.Link = menu.DeepLink(s.opts.BotUsername, m.Code)
	}
	return item
}
