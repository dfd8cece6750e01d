package realtime

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const commandBufferSize = 256

// HubConfig configures the collaboration hub.
type HubConfig struct {
	Logger            *zap.Logger
	TypingQuietPeriod time.Duration
}

// Hub owns all realtime collaboration state: note channel memberships, the
// presence registry, and the typing debouncer. Every mutation flows through a
// single goroutine draining the command mailbox, so handlers run to completion
// and events from one sender reach a channel's subscribers in the order sent.
// Broadcasts never touch persistent storage; content relay is ephemeral.
type Hub struct {
	logger   *zap.Logger
	commands chan command
	stopped  chan struct{}

	presence *PresenceRegistry
	typing   *TypingDebouncer
	sessions map[string]*session
	channels map[string]map[string]*session
}

type session struct {
	connectionID string
	identity     Identity
	sink         Sink
	notes        map[string]struct{}
}

type command interface{}

type connectCommand struct {
	session *session
}

type disconnectCommand struct {
	connectionID string
}

type clientEventCommand struct {
	connectionID string
	envelope     Envelope
}

type typingExpiredCommand struct {
	noteID     string
	email      string
	generation uint64
}

// NewHub constructs a hub. Run must be started before connections are attached.
func NewHub(cfg HubConfig) *Hub {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	hub := &Hub{
		logger:   logger,
		commands: make(chan command, commandBufferSize),
		stopped:  make(chan struct{}),
		presence: NewPresenceRegistry(),
		sessions: make(map[string]*session),
		channels: make(map[string]map[string]*session),
	}
	hub.typing = NewTypingDebouncer(cfg.TypingQuietPeriod, hub.submitTypingExpired)
	return hub
}

// Run drains the command mailbox until the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-h.commands:
			h.dispatch(cmd)
		}
	}
}

// Connect attaches an authenticated connection and returns its connection id.
func (h *Hub) Connect(identity Identity, sink Sink) string {
	connectionID := uuid.NewString()
	h.submit(connectCommand{session: &session{
		connectionID: connectionID,
		identity:     identity,
		sink:         sink,
		notes:        make(map[string]struct{}),
	}})
	return connectionID
}

// Disconnect tears down all state owned by the connection: channel
// subscriptions, presence entries, and pending typing timers.
func (h *Hub) Disconnect(connectionID string) {
	h.submit(disconnectCommand{connectionID: connectionID})
}

// HandleEvent queues one client event for dispatch.
func (h *Hub) HandleEvent(connectionID string, envelope Envelope) {
	h.submit(clientEventCommand{connectionID: connectionID, envelope: envelope})
}

func (h *Hub) submit(cmd command) {
	select {
	case h.commands <- cmd:
	case <-h.stopped:
	}
}

func (h *Hub) submitTypingExpired(noteID, email string, generation uint64) {
	h.submit(typingExpiredCommand{noteID: noteID, email: email, generation: generation})
}

func (h *Hub) dispatch(cmd command) {
	switch c := cmd.(type) {
	case connectCommand:
		h.handleConnect(c.session)
	case disconnectCommand:
		h.handleDisconnect(c.connectionID)
	case clientEventCommand:
		h.handleClientEvent(c.connectionID, c.envelope)
	case typingExpiredCommand:
		h.handleTypingExpired(c.noteID, c.email, c.generation)
	}
}

func (h *Hub) handleConnect(s *session) {
	h.sessions[s.connectionID] = s
	h.logger.Info("client connected",
		zap.String("connection_id", s.connectionID),
		zap.String("email", s.identity.Email),
	)
}

func (h *Hub) handleDisconnect(connectionID string) {
	s, ok := h.sessions[connectionID]
	if !ok {
		return
	}
	for noteID := range s.notes {
		h.leaveChannel(s, noteID)
	}
	delete(h.sessions, connectionID)
	h.logger.Info("client disconnected",
		zap.String("connection_id", connectionID),
		zap.String("email", s.identity.Email),
	)
}

func (h *Hub) handleClientEvent(connectionID string, envelope Envelope) {
	s, ok := h.sessions[connectionID]
	if !ok {
		return
	}

	switch envelope.Event {
	case EventJoinNote:
		h.handleJoinNote(s, envelope.Data)
	case EventLeaveNote:
		h.handleLeaveNote(s, envelope.Data)
	case EventNoteUpdate:
		h.handleRelayUpdate(s, envelope.Data, EventNoteUpdate, "content")
	case EventNoteTitleUpdate:
		h.handleRelayUpdate(s, envelope.Data, EventNoteTitleUpdate, "title")
	case EventCursorUpdate:
		h.handleCursorUpdate(s, envelope.Data)
	case EventTyping:
		h.handleTyping(s, envelope.Data)
	default:
		h.logger.Warn("dropping unknown event",
			zap.String("event", envelope.Event),
			zap.String("connection_id", s.connectionID),
		)
	}
}

func (h *Hub) handleJoinNote(s *session, data json.RawMessage) {
	noteID, ok := h.decodeNoteID(s, EventJoinNote, data)
	if !ok {
		return
	}
	if _, subscribed := s.notes[noteID]; !subscribed {
		s.notes[noteID] = struct{}{}
		members := h.channels[noteID]
		if members == nil {
			members = make(map[string]*session)
			h.channels[noteID] = members
		}
		members[s.connectionID] = s
		h.presence.Add(noteID, s.identity.Email)
	}
	h.broadcastPresence(noteID)
}

func (h *Hub) handleLeaveNote(s *session, data json.RawMessage) {
	noteID, ok := h.decodeNoteID(s, EventLeaveNote, data)
	if !ok {
		return
	}
	if _, subscribed := s.notes[noteID]; !subscribed {
		return
	}
	delete(s.notes, noteID)
	h.leaveChannel(s, noteID)
}

// leaveChannel performs the shared tail of leave-note and disconnect: channel
// and presence deregistration, the presence broadcast, and timer cancellation.
func (h *Hub) leaveChannel(s *session, noteID string) {
	if members := h.channels[noteID]; members != nil {
		delete(members, s.connectionID)
		if len(members) == 0 {
			delete(h.channels, noteID)
		}
	}
	h.presence.Remove(noteID, s.identity.Email)
	h.typing.Cancel(noteID, s.identity.Email)
	h.broadcastPresence(noteID)
}

func (h *Hub) handleRelayUpdate(s *session, data json.RawMessage, event, field string) {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(data, &payload); err != nil {
		h.warnMalformed(s, event, err)
		return
	}
	var noteID string
	if err := json.Unmarshal(payload["noteId"], &noteID); err != nil || noteID == "" {
		h.warnMalformed(s, event, err)
		return
	}
	outbound := mustMarshal(map[string]json.RawMessage{field: payload[field]})
	h.broadcastToChannel(noteID, Envelope{Event: event, Data: outbound}, s.connectionID)
}

type cursorPayload struct {
	NoteID         *string  `json:"noteId"`
	Email          *string  `json:"email"`
	CursorPosition *float64 `json:"cursorPosition"`
}

func (h *Hub) handleCursorUpdate(s *session, data json.RawMessage) {
	var payload cursorPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		h.warnMalformed(s, EventCursorUpdate, err)
		return
	}
	if payload.NoteID == nil || payload.Email == nil || payload.CursorPosition == nil {
		h.warnMalformed(s, EventCursorUpdate, nil)
		return
	}
	outbound := mustMarshal(map[string]interface{}{
		"email":          *payload.Email,
		"cursorPosition": *payload.CursorPosition,
	})
	h.broadcastToChannel(*payload.NoteID, Envelope{Event: EventCursorUpdate, Data: outbound}, s.connectionID)
}

type typingPayload struct {
	NoteID string `json:"noteId"`
}

func (h *Hub) handleTyping(s *session, data json.RawMessage) {
	var payload typingPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.NoteID == "" {
		h.warnMalformed(s, EventTyping, err)
		return
	}
	// Broadcast on every signal, not just the first of a burst; the trailing
	// stop event is what gets debounced.
	h.broadcastToChannel(payload.NoteID, Envelope{
		Event: EventUserTyping,
		Data:  mustMarshal(s.identity.Email),
	}, s.connectionID)
	h.typing.Signal(payload.NoteID, s.identity.Email)
}

func (h *Hub) handleTypingExpired(noteID, email string, generation uint64) {
	if !h.typing.Expire(noteID, email, generation) {
		return
	}
	h.broadcastToIdentityPeers(noteID, Envelope{
		Event: EventUserStopTyping,
		Data:  mustMarshal(email),
	}, email)
}

func (h *Hub) decodeNoteID(s *session, event string, data json.RawMessage) (string, bool) {
	var noteID string
	if err := json.Unmarshal(data, &noteID); err != nil || noteID == "" {
		h.warnMalformed(s, event, err)
		return "", false
	}
	return noteID, true
}

func (h *Hub) warnMalformed(s *session, event string, err error) {
	h.logger.Warn("dropping malformed event",
		zap.String("event", event),
		zap.String("connection_id", s.connectionID),
		zap.Error(err),
	)
}

// broadcastPresence sends the current presence snapshot to every subscriber of
// the note channel, the mutating connection included.
func (h *Hub) broadcastPresence(noteID string) {
	emails := h.presence.Snapshot(noteID)
	sort.Strings(emails)
	h.broadcastToChannel(noteID, Envelope{
		Event: EventActiveUsers,
		Data:  mustMarshal(emails),
	}, "")
}

// broadcastToChannel fans the envelope out to the channel's subscribers,
// skipping the excluded connection when set.
func (h *Hub) broadcastToChannel(noteID string, envelope Envelope, excludeConnectionID string) {
	for connectionID, member := range h.channels[noteID] {
		if connectionID == excludeConnectionID {
			continue
		}
		member.sink.Send(envelope)
	}
}

// broadcastToIdentityPeers fans the envelope out to the channel's subscribers,
// skipping every connection bound to the excluded identity. Used for timer
// driven broadcasts where no single originating connection exists.
func (h *Hub) broadcastToIdentityPeers(noteID string, envelope Envelope, excludeEmail string) {
	for _, member := range h.channels[noteID] {
		if member.identity.Email == excludeEmail {
			continue
		}
		member.sink.Send(envelope)
	}
}
