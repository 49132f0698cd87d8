package roster

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Unit is one roster entry: a short unit id and its display label.
type Unit struct {
	ID    string `yaml:"id" json:"id"`
	Label string `yaml:"label" json:"label"`
}

type rosterFile struct {
	Units []Unit `yaml:"units"`
}

// Roster maps unit id tokens to display labels and mesh nodes to the units
// they are assigned to. Misses never block rendering; callers fall back to
// raw identifiers.
type Roster struct {
	mu          sync.RWMutex
	labels      map[string]string
	assignments map[string]string
}

func New(units []Unit) *Roster {
	r := &Roster{
		labels:      make(map[string]string, len(units)),
		assignments: make(map[string]string),
	}
	for _, u := range units {
		id := normalizeID(u.ID)
		if id == "" || strings.TrimSpace(u.Label) == "" {
			continue
		}
		r.labels[id] = strings.TrimSpace(u.Label)
	}
	return r
}

// Load reads a YAML roster file ({units: [{id, label}, ...]}).
func Load(path string) (*Roster, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f rosterFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse roster %s: %w", path, err)
	}
	return New(f.Units), nil
}

// Label resolves a unit id to its display label.
func (r *Roster) Label(unitID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	label, ok := r.labels[normalizeID(unitID)]
	return label, ok
}

// Assign binds a mesh node to a roster unit. An empty unit id clears the
// binding.
func (r *Roster) Assign(nodeID, unitID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	unitID = normalizeID(unitID)
	if unitID == "" {
		delete(r.assignments, nodeID)
		return
	}
	r.assignments[nodeID] = unitID
}

// Assignment returns the unit a node is bound to.
func (r *Roster) Assignment(nodeID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	unit, ok := r.assignments[nodeID]
	return unit, ok
}

// Units lists the roster sorted by unit id.
func (r *Roster) Units() []Unit {
	r.mu.RLock()
	out := make([]Unit, 0, len(r.labels))
	for id, label := range r.labels {
		out = append(out, Unit{ID: id, Label: label})
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func normalizeID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}
