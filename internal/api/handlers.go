package api

import (
	"fmt"
	"net/http"

	"codescope/internal/errors"
	"codescope/internal/ops"
	"codescope/internal/project"
	"codescope/internal/symbols"
	"codescope/internal/version"
)

// sessionHeader carries the session binding on every scoped request.
const sessionHeader = "X-Session-Id"

func (s *Server) requireProject(r *http.Request) (*project.Session, *project.Project, error) {
	id := r.Header.Get(sessionHeader)
	if id == "" {
		return nil, nil, errors.New(errors.BadArgument, "missing %s header", sessionHeader)
	}
	return s.registry.Resolve(id)
}

// record appends the operation to the session history and the audit trail.
func (s *Server) record(sess *project.Session, operation, path, preview string) {
	sess.Record(operation, path, preview)
	if s.audit != nil {
		s.audit.Record(sess.ID, operation, path, "ok")
	}
}

func (s *Server) recordError(sessionID, operation, path string, err error) {
	if s.audit != nil {
		s.audit.Record(sessionID, operation, path, string(errors.CodeOf(err)))
	}
}

// ---------------------------------------------------------------------------
// Daemon
// ---------------------------------------------------------------------------

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := s.registry.Health()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"version":     version.Info(),
		"projects":    h.Projects,
		"sessions":    h.Sessions,
		"maxProjects": h.MaxProjects,
	})
}

func (s *Server) handleListRoots(w http.ResponseWriter, r *http.Request) {
	roots := s.registry.ListRoots()
	writeJSON(w, http.StatusOK, map[string]interface{}{"roots": roots, "count": len(roots)})
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit", s.cfg.HistoryLimit)
	if err != nil {
		writeError(w, err)
		return
	}
	if s.audit == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"records": []struct{}{}, "enabled": false})
		return
	}
	records, err := s.audit.Recent(limit)
	if err != nil {
		writeInternal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"records": records, "enabled": true})
}

// ---------------------------------------------------------------------------
// Sessions
// ---------------------------------------------------------------------------

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": s.registry.ListSessions()})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Cwd string `json:"cwd"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.Cwd == "" {
		writeError(w, errors.New(errors.BadArgument, "cwd is required"))
		return
	}

	sess, err := s.registry.CreateSession(r.Context(), body.Cwd)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"sessionId": sess.ID,
		"project":   sess.Root,
		"createdAt": sess.CreatedAt,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.registry.Session(r.PathValue("id"))
	if !ok {
		writeError(w, errors.New(errors.NotFound, "session %q not found", r.PathValue("id")))
		return
	}
	writeJSON(w, http.StatusOK, sess.Info())
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.EndSession(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ended"})
}

// ---------------------------------------------------------------------------
// Structure
// ---------------------------------------------------------------------------

func (s *Server) handleStructure(w http.ResponseWriter, r *http.Request) {
	sess, p, err := s.requireProject(r)
	if err != nil {
		writeError(w, err)
		return
	}
	depth, err := intQuery(r, "depth", 0)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := ops.Structure(p.Tree, depth)
	if err != nil {
		writeError(w, err)
		return
	}
	s.record(sess, "structure", "", fmt.Sprintf("%d files", res.FileCount))
	writeJSON(w, http.StatusOK, res)
}

type fileAnnotationBody struct {
	Path string `json:"path"`
	Text string `json:"text,omitempty"`
	Mark string `json:"mark,omitempty"`
}

func (s *Server) handleFileAnnotation(w http.ResponseWriter, r *http.Request, operation string, apply func(p *project.Project, body fileAnnotationBody) error) {
	sess, p, err := s.requireProject(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body fileAnnotationBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if err := apply(p, body); err != nil {
		s.recordError(sess.ID, operation, body.Path, err)
		writeError(w, err)
		return
	}
	s.record(sess, operation, body.Path, "ok")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDefineFile(w http.ResponseWriter, r *http.Request) {
	s.handleFileAnnotation(w, r, "define_file", func(p *project.Project, body fileAnnotationBody) error {
		return ops.DefineFile(p.Tree, body.Path, body.Text)
	})
}

func (s *Server) handleRedefineFile(w http.ResponseWriter, r *http.Request) {
	s.handleFileAnnotation(w, r, "redefine_file", func(p *project.Project, body fileAnnotationBody) error {
		return ops.RedefineFile(p.Tree, body.Path, body.Text)
	})
}

func (s *Server) handleMarkFile(w http.ResponseWriter, r *http.Request) {
	s.handleFileAnnotation(w, r, "mark_file", func(p *project.Project, body fileAnnotationBody) error {
		return ops.MarkFile(p.Tree, body.Path, body.Mark)
	})
}

// ---------------------------------------------------------------------------
// Symbols
// ---------------------------------------------------------------------------

func (s *Server) handleListSymbols(w http.ResponseWriter, r *http.Request) {
	sess, p, err := s.requireProject(r)
	if err != nil {
		writeError(w, err)
		return
	}
	limit, err := intQuery(r, "limit", s.cfg.DefaultLimit)
	if err != nil {
		writeError(w, err)
		return
	}

	var kind symbols.Kind
	if raw := r.URL.Query().Get("kind"); raw != "" {
		parsed, ok := symbols.ParseKind(raw)
		if !ok {
			writeError(w, errors.New(errors.BadArgument, "unknown symbol kind %q", raw))
			return
		}
		kind = parsed
	}

	results := p.Table.List(kind, r.URL.Query().Get("file"), limit)
	s.record(sess, "list_symbols", r.URL.Query().Get("file"), fmt.Sprintf("%d symbols", len(results)))
	writeJSON(w, http.StatusOK, map[string]interface{}{"symbols": results, "count": len(results)})
}

func (s *Server) handleSearchSymbols(w http.ResponseWriter, r *http.Request) {
	sess, p, err := s.requireProject(r)
	if err != nil {
		writeError(w, err)
		return
	}
	query, err := requiredQuery(r, "q")
	if err != nil {
		writeError(w, err)
		return
	}
	limit, err := intQuery(r, "limit", s.cfg.DefaultLimit)
	if err != nil {
		writeError(w, err)
		return
	}

	results := p.Table.Search(query, limit)
	s.record(sess, "search_symbols", query, fmt.Sprintf("%d symbols", len(results)))
	writeJSON(w, http.StatusOK, map[string]interface{}{"symbols": results, "count": len(results)})
}

type symbolAnnotationBody struct {
	Name string `json:"name"`
	File string `json:"file"`
	Text string `json:"text"`
}

func (s *Server) handleSymbolAnnotation(w http.ResponseWriter, r *http.Request, operation string, overwrite bool) {
	sess, p, err := s.requireProject(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body symbolAnnotationBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}

	if overwrite {
		err = ops.RedefineSymbol(p.Table, body.Name, body.File, body.Text)
	} else {
		err = ops.DefineSymbol(p.Table, body.Name, body.File, body.Text)
	}
	if err != nil {
		s.recordError(sess.ID, operation, body.File, err)
		writeError(w, err)
		return
	}
	s.record(sess, operation, body.File, body.Name)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDefineSymbol(w http.ResponseWriter, r *http.Request) {
	s.handleSymbolAnnotation(w, r, "define_symbol", false)
}

func (s *Server) handleRedefineSymbol(w http.ResponseWriter, r *http.Request) {
	s.handleSymbolAnnotation(w, r, "redefine_symbol", true)
}

func (s *Server) handleImplementation(w http.ResponseWriter, r *http.Request) {
	sess, p, err := s.requireProject(r)
	if err != nil {
		writeError(w, err)
		return
	}
	name, err := requiredQuery(r, "name")
	if err != nil {
		writeError(w, err)
		return
	}
	file, err := requiredQuery(r, "file")
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := ops.Implementation(p.Root, p.Tree, p.Table, name, file)
	if err != nil {
		s.recordError(sess.ID, "implementation", file, err)
		writeError(w, err)
		return
	}
	s.record(sess, "implementation", file, name)
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCallers(w http.ResponseWriter, r *http.Request) {
	sess, p, err := s.requireProject(r)
	if err != nil {
		writeError(w, err)
		return
	}
	name, err := requiredQuery(r, "name")
	if err != nil {
		writeError(w, err)
		return
	}
	file, err := requiredQuery(r, "file")
	if err != nil {
		writeError(w, err)
		return
	}
	limit, err := intQuery(r, "limit", s.cfg.DefaultLimit)
	if err != nil {
		writeError(w, err)
		return
	}

	callers, err := ops.Callers(r.Context(), p.Root, p.Tree, p.Table, p.Extractor(), name, file, limit, p.MaxFileSize())
	if err != nil {
		s.recordError(sess.ID, "callers", file, err)
		writeError(w, err)
		return
	}
	s.record(sess, "callers", file, fmt.Sprintf("%d callers of %s", len(callers), name))
	writeJSON(w, http.StatusOK, map[string]interface{}{"callers": callers, "count": len(callers)})
}

func (s *Server) handleTests(w http.ResponseWriter, r *http.Request) {
	sess, p, err := s.requireProject(r)
	if err != nil {
		writeError(w, err)
		return
	}
	name, err := requiredQuery(r, "name")
	if err != nil {
		writeError(w, err)
		return
	}
	file, err := requiredQuery(r, "file")
	if err != nil {
		writeError(w, err)
		return
	}
	limit, err := intQuery(r, "limit", s.cfg.DefaultLimit)
	if err != nil {
		writeError(w, err)
		return
	}

	tests, err := ops.Tests(r.Context(), p.Root, p.Tree, p.Table, name, file, limit, p.MaxFileSize())
	if err != nil {
		s.recordError(sess.ID, "tests", file, err)
		writeError(w, err)
		return
	}
	s.record(sess, "tests", file, fmt.Sprintf("%d tests touch %s", len(tests), name))
	writeJSON(w, http.StatusOK, map[string]interface{}{"tests": tests, "count": len(tests)})
}

func (s *Server) handleVariables(w http.ResponseWriter, r *http.Request) {
	sess, p, err := s.requireProject(r)
	if err != nil {
		writeError(w, err)
		return
	}
	name, err := requiredQuery(r, "name")
	if err != nil {
		writeError(w, err)
		return
	}
	file, err := requiredQuery(r, "file")
	if err != nil {
		writeError(w, err)
		return
	}

	vars, err := p.Extractor().Variables(r.Context(), p.Root, p.Table, name, file)
	if err != nil {
		s.recordError(sess.ID, "variables", file, err)
		writeError(w, err)
		return
	}
	s.record(sess, "variables", file, fmt.Sprintf("%d variables in %s", len(vars), name))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"function":  name,
		"file":      file,
		"variables": vars,
	})
}

// ---------------------------------------------------------------------------
// Content
// ---------------------------------------------------------------------------

func (s *Server) handlePeek(w http.ResponseWriter, r *http.Request) {
	sess, p, err := s.requireProject(r)
	if err != nil {
		writeError(w, err)
		return
	}
	file, err := requiredQuery(r, "file")
	if err != nil {
		writeError(w, err)
		return
	}
	start, err := requiredIntQuery(r, "start")
	if err != nil {
		writeError(w, err)
		return
	}
	end, err := requiredIntQuery(r, "end")
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := ops.Peek(p.Root, p.Tree, file, start, end)
	if err != nil {
		s.recordError(sess.ID, "peek", file, err)
		writeError(w, err)
		return
	}
	s.record(sess, "peek", file, fmt.Sprintf("lines %d-%d", res.StartLine, res.EndLine))
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGrep(w http.ResponseWriter, r *http.Request) {
	sess, p, err := s.requireProject(r)
	if err != nil {
		writeError(w, err)
		return
	}
	pattern, err := requiredQuery(r, "pattern")
	if err != nil {
		writeError(w, err)
		return
	}
	maxMatches, err := intQuery(r, "max_matches", s.cfg.GrepMaxMatches)
	if err != nil {
		writeError(w, err)
		return
	}
	contextLines, err := intQuery(r, "context_lines", 0)
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := ops.Grep(r.Context(), p.Root, p.Tree, pattern, maxMatches, contextLines, p.MaxFileSize())
	if err != nil {
		s.recordError(sess.ID, "grep", pattern, err)
		writeError(w, err)
		return
	}
	s.record(sess, "grep", pattern, fmt.Sprintf("%d matches", res.TotalMatches))
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleChunkIndices(w http.ResponseWriter, r *http.Request) {
	sess, p, err := s.requireProject(r)
	if err != nil {
		writeError(w, err)
		return
	}
	file, err := requiredQuery(r, "file")
	if err != nil {
		writeError(w, err)
		return
	}
	size, err := requiredIntQuery(r, "size")
	if err != nil {
		writeError(w, err)
		return
	}
	overlap, err := intQuery(r, "overlap", 0)
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := ops.ChunkIndices(p.Root, p.Tree, file, size, overlap)
	if err != nil {
		s.recordError(sess.ID, "chunk_indices", file, err)
		writeError(w, err)
		return
	}
	s.record(sess, "chunk_indices", file, fmt.Sprintf("%d chunks", len(res.Chunks)))
	writeJSON(w, http.StatusOK, res)
}

// ---------------------------------------------------------------------------
// History and annotations
// ---------------------------------------------------------------------------

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit", s.cfg.HistoryLimit)
	if err != nil {
		writeError(w, err)
		return
	}

	if id := r.Header.Get(sessionHeader); id != "" {
		sess, ok := s.registry.Session(id)
		if !ok {
			writeError(w, errors.New(errors.NotFound, "session %q not found", id))
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"sessionId": sess.ID,
			"entries":   sess.History(limit),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": s.registry.AllHistory(limit)})
}

func (s *Server) handleSaveAnnotations(w http.ResponseWriter, r *http.Request) {
	sess, p, err := s.requireProject(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := ops.SaveAnnotations(p.Root, p.Tree, p.Table, s.logger); err != nil {
		s.recordError(sess.ID, "save_annotations", "", err)
		writeError(w, err)
		return
	}
	s.record(sess, "save_annotations", "", "ok")
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

func (s *Server) handleLoadAnnotations(w http.ResponseWriter, r *http.Request) {
	sess, p, err := s.requireProject(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := ops.LoadAnnotations(p.Root, p.Tree, p.Table, s.logger); err != nil {
		s.recordError(sess.ID, "load_annotations", "", err)
		writeError(w, err)
		return
	}
	s.record(sess, "load_annotations", "", "ok")
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded"})
}
