package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/yndnr/nodemesh-go/internal/api"
	"github.com/yndnr/nodemesh-go/internal/cluster"
)

// ClusterStatus is the membership view served under /cluster.
type ClusterStatus interface {
	Nodes(ctx context.Context) ([]api.NodeInfo, error)
	Node(ctx context.Context, uniqueID string) (*api.NodeInfo, error)
	HeadNode(ctx context.Context) (*api.NodeInfo, error)
}

// RouterConfig holds the sources the router serves.
type RouterConfig struct {
	// Metrics is mounted at MetricsPath when non-nil.
	Metrics     http.Handler
	MetricsPath string

	// Cluster enables the /cluster routes when non-nil.
	Cluster ClusterStatus

	// Ready reports whether the node serves traffic. Nil means always.
	Ready func() bool

	// AllowList restricts clients to these IPs or CIDR blocks.
	AllowList []string

	Logger *slog.Logger
}

// NewRouter builds the handler for cfg.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", handleHealth)
	mux.HandleFunc("GET /ready", readyHandler(cfg.Ready))
	if cfg.Metrics != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		mux.Handle("GET "+path, cfg.Metrics)
	}
	if cfg.Cluster != nil {
		c := &clusterHandler{status: cfg.Cluster, logger: logger}
		mux.HandleFunc("GET /cluster/nodes", c.handleNodes)
		mux.HandleFunc("GET /cluster/nodes/{id}", c.handleNode)
		mux.HandleFunc("GET /cluster/head", c.handleHead)
	}

	return Chain(mux,
		RequestID(),
		Recover(logger),
		AccessLog(logger),
		NetworkACL(cfg.AllowList, logger),
	)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func readyHandler(ready func() bool) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if ready != nil && !ready() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

// NodeView is the JSON form of a node.
type NodeView struct {
	UniqueID  string    `json:"unique_id"`
	Listeners []string  `json:"listeners"`
	Startup   time.Time `json:"startup"`
	Version   string    `json:"version"`
	State     string    `json:"state"`
	Head      bool      `json:"head"`
}

func newNodeView(n api.NodeInfo, headID string) NodeView {
	v := NodeView{
		UniqueID:  n.UniqueID,
		Listeners: make([]string, 0, len(n.Listeners)),
		Startup:   time.UnixMilli(n.Startup).UTC(),
		Version:   n.Version,
		State:     n.State.String(),
		Head:      n.UniqueID == headID,
	}
	for _, l := range n.Listeners {
		v.Listeners = append(v.Listeners, l.String())
	}
	return v
}

type clusterHandler struct {
	status ClusterStatus
	logger *slog.Logger
}

func (c *clusterHandler) headID(ctx context.Context) string {
	head, err := c.status.HeadNode(ctx)
	if err != nil || head == nil {
		return ""
	}
	return head.UniqueID
}

func (c *clusterHandler) handleNodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := c.status.Nodes(r.Context())
	if err != nil {
		c.fail(w, r, err)
		return
	}
	head := c.headID(r.Context())
	out := make([]NodeView, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, newNodeView(n, head))
	}
	writeJSON(w, http.StatusOK, out)
}

func (c *clusterHandler) handleNode(w http.ResponseWriter, r *http.Request) {
	n, err := c.status.Node(r.Context(), r.PathValue("id"))
	if err != nil {
		c.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newNodeView(*n, c.headID(r.Context())))
}

func (c *clusterHandler) handleHead(w http.ResponseWriter, r *http.Request) {
	n, err := c.status.HeadNode(r.Context())
	if err != nil {
		c.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newNodeView(*n, n.UniqueID))
}

func (c *clusterHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var ce *cluster.Error
	if errors.As(err, &ce) {
		status := http.StatusInternalServerError
		if errors.Is(err, cluster.ErrNodeNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, ce.Code, ce.Error())
		return
	}
	c.logger.Warn("cluster status failed",
		"request_id", RequestIDFromContext(r.Context()),
		"path", r.URL.Path,
		"error", err)
	writeError(w, http.StatusInternalServerError, "NM-SYS-5000", err.Error())
}
