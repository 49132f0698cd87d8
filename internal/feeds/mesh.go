package feeds

import (
	"sync"

	"xcom/map-go/internal/overlay"
)

// MeshState holds the latest decoded radio-link node snapshot pushed by the
// wire-protocol collaborator. Implements the overlay's MeshSource.
type MeshState struct {
	mu     sync.RWMutex
	nodes  []overlay.MeshNode
	status string
}

func NewMeshState() *MeshState {
	return &MeshState{status: "no data"}
}

// Set replaces the snapshot.
func (m *MeshState) Set(nodes []overlay.MeshNode, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodes = nodes
	m.status = status
}

// MeshNodes returns a copy of the current snapshot.
func (m *MeshState) MeshNodes() []overlay.MeshNode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]overlay.MeshNode, len(m.nodes))
	copy(out, m.nodes)
	return out
}

// Status returns the link status string reported with the last snapshot.
func (m *MeshState) Status() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}
