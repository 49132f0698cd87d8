package openmanet

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"xcom/map-go/internal/overlay"
)

// Driver is the driver tag stamped on every node this package produces.
const Driver = "openmanet"

// FetchTimeout is the shared budget for one poll: every transport in the
// chain runs under the same deadline.
const FetchTimeout = 2500 * time.Millisecond

// nodeServicePath is the direct node-listing endpoint relative to the
// configured node address.
const nodeServicePath = "openmanet.NodeService/ListNodes"

// transport is one way of reaching the node service. Transports are tried in
// order; a failure falls through to the next before being reported.
type transport struct {
	name  string
	fetch func(ctx context.Context) ([]byte, error)
}

// Client fetches the auxiliary node list, preferring a LAN bridge relay and
// falling back to a direct request against the node service.
type Client struct {
	log      zerolog.Logger
	http     *http.Client
	bridge   string
	nodeBase string
	resolver *Resolver
	timeout  time.Duration
}

func NewClient(log zerolog.Logger, bridgeURL, nodeURL string, resolver *Resolver) *Client {
	return &Client{
		log:      log,
		http:     &http.Client{},
		bridge:   strings.TrimRight(strings.TrimSpace(bridgeURL), "/"),
		nodeBase: strings.TrimRight(strings.TrimSpace(nodeURL), "/"),
		resolver: resolver,
		timeout:  FetchTimeout,
	}
}

// FetchNodes runs the transport chain under one shared timeout and returns
// the normalized node list.
func (c *Client) FetchNodes(ctx context.Context) ([]overlay.MeshNode, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var chain []transport
	if c.bridge != "" {
		chain = append(chain, transport{name: "bridge", fetch: c.fetchViaBridge})
	}
	if c.nodeBase != "" {
		chain = append(chain, transport{name: "direct", fetch: c.fetchDirect})
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("openmanet: no bridge or node address configured")
	}

	var lastErr error
	for _, t := range chain {
		body, err := t.fetch(ctx)
		if err != nil {
			c.log.Debug().Err(err).Str("transport", t.name).Msg("openmanet fetch attempt failed")
			lastErr = err
			continue
		}
		nodes, err := c.decodeNodes(ctx, body)
		if err != nil {
			lastErr = fmt.Errorf("%s: %w", t.name, err)
			continue
		}
		return nodes, nil
	}
	return nil, lastErr
}

func (c *Client) fetchViaBridge(ctx context.Context) ([]byte, error) {
	u := c.bridge + "/openmanet/nodes?base_url=" + url.QueryEscape(c.nodeBase)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

func (c *Client) fetchDirect(ctx context.Context) ([]byte, error) {
	u := c.nodeBase + "/" + nodeServicePath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader("{}"))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, req.URL.Host)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 4<<20))
}

// nodeRecord is the wire shape of one entry in the service's "nodes" array.
// Coordinates arrive as numbers or strings depending on firmware, so they are
// parsed leniently.
type nodeRecord struct {
	Hostname  string          `json:"hostname"`
	MAC       string          `json:"mac"`
	IP        string          `json:"ip"`
	Latitude  json.RawMessage `json:"latitude"`
	Longitude json.RawMessage `json:"longitude"`
	LastHeard int64           `json:"last_heard"`
	SNR       *float64        `json:"snr"`
	RSSI      *float64        `json:"rssi"`
}

type nodesResponse struct {
	Nodes []nodeRecord `json:"nodes"`
}

func (c *Client) decodeNodes(ctx context.Context, body []byte) ([]overlay.MeshNode, error) {
	var resp nodesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode node list: %w", err)
	}

	out := make([]overlay.MeshNode, 0, len(resp.Nodes))
	for _, rec := range resp.Nodes {
		node, ok := c.normalize(ctx, rec)
		if !ok {
			continue
		}
		out = append(out, node)
	}
	return out, nil
}

// normalize maps a wire record to a MeshNode. Identity is hostname, else MAC,
// else IP; a record with none of the three is unusable. Position is attached
// only when both coordinates parse as finite numbers.
func (c *Client) normalize(ctx context.Context, rec nodeRecord) (overlay.MeshNode, bool) {
	hostname := strings.TrimSpace(rec.Hostname)
	mac := strings.TrimSpace(rec.MAC)
	ip := strings.TrimSpace(rec.IP)

	identity := hostname
	if identity == "" {
		identity = mac
	}
	if identity == "" {
		identity = ip
	}
	if identity == "" {
		return overlay.MeshNode{}, false
	}

	name := hostname
	if name == "" && ip != "" && c.resolver != nil {
		// Best effort; the identity key stays address-based so a late PTR
		// answer cannot flip marker identity between polls.
		if resolved, err := c.resolver.LookupAddr(ctx, ip); err == nil {
			name = resolved
		}
	}

	node := overlay.MeshNode{
		Driver:    Driver,
		ID:        identity,
		ShortName: shortName(name),
		LongName:  name,
		LastSNR:   rec.SNR,
		LastRSSI:  rec.RSSI,
	}

	lat, latOK := parseCoord(rec.Latitude)
	lon, lonOK := parseCoord(rec.Longitude)
	if latOK && lonOK {
		pos := overlay.NodePosition{Lat: lat, Lon: lon}
		if rec.LastHeard > 0 {
			pos.Time = time.Unix(rec.LastHeard, 0).UTC()
		}
		node.Position = &pos
	}
	return node, true
}

func parseCoord(raw json.RawMessage) (float64, bool) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return 0, false
	}
	s = strings.Trim(s, `"`)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func shortName(name string) string {
	if i := strings.IndexByte(name, '.'); i > 0 {
		return name[:i]
	}
	return name
}
