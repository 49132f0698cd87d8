package overlay

import (
	"strconv"
	"time"
)

// ReportCollection is one imported batch of field reports. The import
// timestamp and mode live at the collection level in the feed.
type ReportCollection struct {
	Features   []Feature `json:"features"`
	ImportedAt time.Time `json:"imported_at"`
	Mode       Mode      `json:"mode"`
}

// NodePosition is a mesh node's last reported fix.
type NodePosition struct {
	Lat  float64   `json:"lat"`
	Lon  float64   `json:"lon"`
	Time time.Time `json:"time,omitempty"`
}

func (p NodePosition) Valid() bool {
	return finite(p.Lat) && finite(p.Lon)
}

// MeshNode is a radio-link or polled auxiliary node.
type MeshNode struct {
	Driver    string        `json:"driver"`
	ID        string        `json:"id,omitempty"`
	Num       int64         `json:"num,omitempty"`
	ShortName string        `json:"short_name,omitempty"`
	LongName  string        `json:"long_name,omitempty"`
	Position  *NodePosition `json:"position,omitempty"`
	LastSNR   *float64      `json:"last_snr,omitempty"`
	LastRSSI  *float64      `json:"last_rssi,omitempty"`
}

// Identity returns the stable key a node is reconciled and hidden under.
func (n MeshNode) Identity() string {
	if n.ID != "" {
		return n.ID
	}
	if n.Num != 0 {
		return strconv.FormatInt(n.Num, 10)
	}
	return ""
}

// Aggregate merges the three feeds into one flat feature list and one flat
// node list. This stage only normalizes shape; filtering happens later.
//
// A feature with no timestamp of its own inherits the collection-level import
// time, and a feature with no mode inherits the collection mode.
func Aggregate(collections []ReportCollection, radio []MeshNode, polled []MeshNode) ([]Feature, []MeshNode) {
	var features []Feature
	for _, c := range collections {
		for _, f := range c.Features {
			if _, ok := f.EffectiveTimestamp(); !ok && !c.ImportedAt.IsZero() {
				ts := c.ImportedAt
				f.ImportedAt = &ts
			}
			if f.Mode == "" {
				f.Mode = c.Mode
			}
			features = append(features, f)
		}
	}

	nodes := make([]MeshNode, 0, len(radio)+len(polled))
	nodes = append(nodes, radio...)
	nodes = append(nodes, polled...)
	return features, nodes
}
