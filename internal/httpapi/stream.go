package httpapi

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"xcom/map-go/internal/overlay"
)

// streamOp is one message on the map websocket. The map client translates
// these into its toolkit's marker and vector-source primitives.
type streamOp struct {
	Op       string                     `json:"op"` // create | move | restyle | destroy | source | detail
	ID       string                     `json:"id,omitempty"`
	Pos      *overlay.Position          `json:"pos,omitempty"`
	Style    *overlay.Style             `json:"style,omitempty"`
	Detail   *overlay.MarkerDetail      `json:"detail,omitempty"`
	Source   string                     `json:"source,omitempty"`
	Features *overlay.FeatureCollection `json:"features,omitempty"`
}

type clientMessage struct {
	Type string `json:"type"` // click | map_ready | map_reset
	ID   string `json:"id,omitempty"`
}

// MapStream is the map-toolkit side of the reconciler: it implements
// MarkerFactory and VectorSink by mirroring marker state locally and
// broadcasting ops to connected map clients. A client connecting mid-session
// receives a full snapshot before incremental ops.
type MapStream struct {
	log      zerolog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	conns   map[*websocket.Conn]struct{}
	markers map[string]*streamMarker
	sources map[string]overlay.FeatureCollection

	// onMapReady forwards the client's ready/reset signals to the controller.
	onMapReady func(ready bool)
}

func NewMapStream(log zerolog.Logger) *MapStream {
	return &MapStream{
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true }, // LAN tool, same-host UI
		},
		conns:   make(map[*websocket.Conn]struct{}),
		markers: make(map[string]*streamMarker),
		sources: make(map[string]overlay.FeatureCollection),
	}
}

// SetMapReadyFunc wires the controller's readiness gate.
func (s *MapStream) SetMapReadyFunc(fn func(ready bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onMapReady = fn
}

// streamMarker is a MarkerHandle whose operations are broadcast to every
// connected map client.
type streamMarker struct {
	stream *MapStream
	id     string
	pos    overlay.Position
	style  overlay.Style
	detail overlay.MarkerDetail
}

// Create implements overlay.MarkerFactory.
func (s *MapStream) Create(spec overlay.MarkerSpec) overlay.MarkerHandle {
	m := &streamMarker{stream: s, id: spec.ID, pos: spec.Pos, style: spec.Style, detail: spec.Detail}
	s.mu.Lock()
	s.markers[spec.ID] = m
	s.broadcastLocked(streamOp{Op: "create", ID: spec.ID, Pos: &m.pos, Style: &m.style, Detail: &m.detail})
	s.mu.Unlock()
	return m
}

func (m *streamMarker) Move(pos overlay.Position) {
	s := m.stream
	s.mu.Lock()
	m.pos = pos
	s.broadcastLocked(streamOp{Op: "move", ID: m.id, Pos: &pos})
	s.mu.Unlock()
}

func (m *streamMarker) Restyle(style overlay.Style) {
	s := m.stream
	s.mu.Lock()
	m.style = style
	s.broadcastLocked(streamOp{Op: "restyle", ID: m.id, Style: &style})
	s.mu.Unlock()
}

func (m *streamMarker) Destroy() {
	s := m.stream
	s.mu.Lock()
	delete(s.markers, m.id)
	s.broadcastLocked(streamOp{Op: "destroy", ID: m.id})
	s.mu.Unlock()
}

// UpdateSource implements overlay.VectorSink. The full collection is pushed
// each time; the map library diffs vector sources internally.
func (s *MapStream) UpdateSource(name string, fc overlay.FeatureCollection) {
	s.mu.Lock()
	s.sources[name] = fc
	s.broadcastLocked(streamOp{Op: "source", Source: name, Features: &fc})
	s.mu.Unlock()
}

func (s *MapStream) broadcastLocked(op streamOp) {
	for conn := range s.conns {
		if err := conn.WriteJSON(op); err != nil {
			_ = conn.Close()
			delete(s.conns, conn)
		}
	}
}

// HandleWS upgrades the connection, replays the current world, then serves
// click queries until the client goes away.
func (s *MapStream) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("map stream upgrade failed")
		return
	}

	s.mu.Lock()
	s.conns[conn] = struct{}{}
	snapshot := make([]streamOp, 0, len(s.markers)+len(s.sources))
	for _, m := range s.markers {
		pos, style, detail := m.pos, m.style, m.detail
		snapshot = append(snapshot, streamOp{Op: "create", ID: m.id, Pos: &pos, Style: &style, Detail: &detail})
	}
	for name, fc := range s.sources {
		fcCopy := fc
		snapshot = append(snapshot, streamOp{Op: "source", Source: name, Features: &fcCopy})
	}
	for _, op := range snapshot {
		if err := conn.WriteJSON(op); err != nil {
			delete(s.conns, conn)
			s.mu.Unlock()
			_ = conn.Close()
			return
		}
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		switch msg.Type {
		case "click":
			s.handleClick(conn, msg.ID)
		case "map_ready":
			s.notifyMapReady(true)
		case "map_reset":
			// Base style reload: the map just wiped every custom layer.
			s.notifyMapReady(false)
		}
	}
}

func (s *MapStream) handleClick(conn *websocket.Conn, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markers[id]
	if !ok {
		return
	}
	detail := m.detail
	if err := conn.WriteJSON(streamOp{Op: "detail", ID: id, Detail: &detail}); err != nil {
		_ = conn.Close()
		delete(s.conns, conn)
	}
}

func (s *MapStream) notifyMapReady(ready bool) {
	s.mu.Lock()
	fn := s.onMapReady
	if !ready {
		// Forget mirrored state; the controller will rebuild it on ready.
		s.markers = make(map[string]*streamMarker)
		s.sources = make(map[string]overlay.FeatureCollection)
	}
	s.mu.Unlock()
	if fn != nil {
		fn(ready)
	}
}
