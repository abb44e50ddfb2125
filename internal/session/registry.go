package session

import (
	"log/slog"
	"sync"
)

// Registry maintains the three bidirectional maps spec.md §4.1 requires:
// tag_id→session_id, session_id→*Session, and connection→session_id, plus
// the reconnect-supersession rule (I6): a handshake whose tag_id already
// maps to a live session tears down the old one before the new one exists.
type Registry struct {
	mu       sync.Mutex
	byTag    map[string]string
	byID     map[string]*Session
	byConn   map[Conn]string
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{
		byTag:  make(map[string]string),
		byID:   make(map[string]*Session),
		byConn: make(map[Conn]string),
	}
}

// Start installs a new session for tagID on conn, superseding and closing
// any prior live session for the same tagID first. The returned Session has
// a fresh ID and an empty TurnContext; the caller attaches an Orchestrator
// to it before traffic flows.
func (r *Registry) Start(tagID string, conn Conn, createdAt func() Session) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if priorID, ok := r.byTag[tagID]; ok {
		r.tearDownLocked(priorID)
	}
	sess := createdAt()
	ptr := &sess
	r.byTag[tagID] = ptr.ID
	r.byID[ptr.ID] = ptr
	r.byConn[conn] = ptr.ID
	return ptr
}

// tearDownLocked closes the connection and orchestrator for sessionID and
// removes it from all three maps. Caller must hold r.mu.
func (r *Registry) tearDownLocked(sessionID string) {
	sess, ok := r.byID[sessionID]
	if !ok {
		return
	}
	delete(r.byID, sessionID)
	delete(r.byTag, sess.TagID)
	delete(r.byConn, sess.Conn)
	if sess.Orchestrator != nil {
		if err := sess.Orchestrator.Close(); err != nil {
			slog.Warn("orchestrator stop failed during supersession", "session_id", sessionID, "error", err)
		}
	}
	if sess.Conn != nil {
		if err := sess.Conn.Close(); err != nil {
			slog.Debug("connection close during supersession", "session_id", sessionID, "error", err)
		}
	}
}

// Lookup resolves a Session by its ID.
func (r *Registry) Lookup(sessionID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.byID[sessionID]
	return sess, ok
}

// LookupByConn resolves a Session by its connection handle.
func (r *Registry) LookupByConn(conn Conn) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byConn[conn]
	if !ok {
		return nil, false
	}
	sess, ok := r.byID[id]
	return sess, ok
}

// Remove purges a session from all three maps and stops its orchestrator,
// idempotently — safe to call more than once for the same session.
func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tearDownLocked(sessionID)
}

// Count reports the number of live sessions, for metrics.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}
