package api

// registerRoutes wires the operation surface. Session-scoped routes read
// the session from the X-Session-Id header.
func (s *Server) registerRoutes() {
	// Daemon
	s.router.HandleFunc("GET /api/v1/health", s.handleHealth)
	s.router.HandleFunc("GET /api/v1/roots", s.handleListRoots)
	s.router.HandleFunc("GET /api/v1/audit", s.handleAudit)

	// Sessions
	s.router.HandleFunc("GET /api/v1/sessions", s.handleListSessions)
	s.router.HandleFunc("POST /api/v1/sessions", s.handleCreateSession)
	s.router.HandleFunc("GET /api/v1/sessions/{id}", s.handleGetSession)
	s.router.HandleFunc("DELETE /api/v1/sessions/{id}", s.handleEndSession)

	// Structure
	s.router.HandleFunc("GET /api/v1/structure", s.handleStructure)
	s.router.HandleFunc("POST /api/v1/structure/define", s.handleDefineFile)
	s.router.HandleFunc("POST /api/v1/structure/redefine", s.handleRedefineFile)
	s.router.HandleFunc("POST /api/v1/structure/mark", s.handleMarkFile)

	// Symbols
	s.router.HandleFunc("GET /api/v1/symbols", s.handleListSymbols)
	s.router.HandleFunc("GET /api/v1/symbols/search", s.handleSearchSymbols)
	s.router.HandleFunc("POST /api/v1/symbols/define", s.handleDefineSymbol)
	s.router.HandleFunc("POST /api/v1/symbols/redefine", s.handleRedefineSymbol)
	s.router.HandleFunc("GET /api/v1/symbols/implementation", s.handleImplementation)
	s.router.HandleFunc("GET /api/v1/symbols/callers", s.handleCallers)
	s.router.HandleFunc("GET /api/v1/symbols/tests", s.handleTests)
	s.router.HandleFunc("GET /api/v1/symbols/variables", s.handleVariables)

	// Content
	s.router.HandleFunc("GET /api/v1/peek", s.handlePeek)
	s.router.HandleFunc("GET /api/v1/grep", s.handleGrep)
	s.router.HandleFunc("GET /api/v1/chunk_indices", s.handleChunkIndices)

	// History and annotations
	s.router.HandleFunc("GET /api/v1/history", s.handleHistory)
	s.router.HandleFunc("POST /api/v1/annotations/save", s.handleSaveAnnotations)
	s.router.HandleFunc("POST /api/v1/annotations/load", s.handleLoadAnnotations)
}
