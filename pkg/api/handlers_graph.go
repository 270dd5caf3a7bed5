package api

import "net/http"

func (s *Server) handleChildren(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.graph.Children(r.Context(), pathVar(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nodes)
}

func (s *Server) handleDescendants(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.graph.Descendants(r.Context(), pathVar(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nodes)
}

func (s *Server) handleAncestors(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.graph.Ancestors(r.Context(), pathVar(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nodes)
}

func (s *Server) handleDependencies(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.graph.Dependencies(r.Context(), pathVar(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nodes)
}

func (s *Server) handleDependents(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.graph.Dependents(r.Context(), pathVar(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nodes)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.graph.Ready(r.Context(), pathVar(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nodes)
}

func (s *Server) handleBlocked(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.graph.Blocked(r.Context(), pathVar(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nodes)
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	view, err := s.graph.Graph(r.Context(), pathVar(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
