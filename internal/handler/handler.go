package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"peerscan/internal/config"
	"peerscan/internal/discovery"
	"peerscan/internal/domain"
	"peerscan/internal/repository"
)

// Discoverer runs the three discovery operations
type Discoverer interface {
	Local() domain.LocalIdentity
	DiscoverOpenAddresses(ctx context.Context, cfg discovery.Config) ([]string, error)
	DiscoverPeersWithIdentity(ctx context.Context, cfg discovery.Config) ([]domain.PeerIdentity, error)
	DiscoverFilteredPeers(ctx context.Context, cfg discovery.Config, servicePrefix string) ([]domain.PeerIdentity, error)
}

// ConfigSource returns the config to use for the next request
type ConfigSource interface {
	Get() *config.Config
}

// Handler serves replica and discovery endpoints
type Handler struct {
	disc Discoverer
	cfg  ConfigSource
	runs repository.RunRepository
	log  zerolog.Logger
	now  func() time.Time
}

// New creates a handler. A nil runs repository disables history.
func New(disc Discoverer, cfg ConfigSource, runs repository.RunRepository, log zerolog.Logger) *Handler {
	if runs == nil {
		runs = repository.Nop{}
	}
	return &Handler{
		disc: disc,
		cfg:  cfg,
		runs: runs,
		log:  log.With().Str("component", "http").Logger(),
		now:  time.Now,
	}
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// HealthResponse is returned by /health
type HealthResponse struct {
	Status    string  `json:"status"`
	Hostname  string  `json:"hostname"`
	IP        string  `json:"ip"`
	Timestamp float64 `json:"timestamp"`
}

// AddressesResponse is returned by /peers
type AddressesResponse struct {
	Hostname string   `json:"hostname"`
	IP       string   `json:"ip"`
	Peers    []string `json:"peers"`
	Count    int      `json:"count"`
	Expected int      `json:"expected"`
}

// IdentitiesResponse is returned by /peers/identity and /peers/service
type IdentitiesResponse struct {
	Hostname string                `json:"hostname"`
	IP       string                `json:"ip"`
	Prefix   string                `json:"prefix,omitempty"`
	Peers    []domain.PeerIdentity `json:"peers"`
	Count    int                   `json:"count"`
	Expected int                   `json:"expected"`
}

// Cluster status values
const (
	ClusterOK          = "OK"
	ClusterDiscovering = "DISCOVERING"
)

// ClusterPeer is one replica address in the cluster view
type ClusterPeer struct {
	IP   string `json:"ip"`
	Self bool   `json:"self"`
}

// ClusterResponse is returned by /cluster
type ClusterResponse struct {
	Hostname string        `json:"hostname"`
	IP       string        `json:"ip"`
	Service  string        `json:"service"`
	Found    int           `json:"found"`
	Expected int           `json:"expected"`
	Status   string        `json:"status"`
	Peers    []ClusterPeer `json:"peers"`
}

// RunsResponse is returned by /runs
type RunsResponse struct {
	Runs  []domain.RunSummary `json:"runs"`
	Count int                 `json:"count"`
}

// Identity returns this replica's identity document
func (h *Handler) Identity(c *gin.Context) {
	c.JSON(http.StatusOK, h.disc.Local().Document(h.now()))
}

// Health reports liveness
func (h *Handler) Health(c *gin.Context) {
	local := h.disc.Local()
	now := h.now()
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "healthy",
		Hostname:  local.Hostname,
		IP:        local.IP.String(),
		Timestamp: float64(now.UnixNano()) / float64(time.Second),
	})
}

// scanContext detaches a scan from the client connection; only the
// configured budget can cut it short
func scanContext(c *gin.Context) context.Context {
	return context.WithoutCancel(c.Request.Context())
}

// Peers returns the open addresses on the service port
func (h *Handler) Peers(c *gin.Context) {
	cfg := h.cfg.Get()
	peers, err := h.disc.DiscoverOpenAddresses(scanContext(c), cfg.Discovery)
	if err != nil {
		h.writeError(c, "Failed to discover peers", err)
		return
	}

	local := h.disc.Local()
	c.JSON(http.StatusOK, AddressesResponse{
		Hostname: local.Hostname,
		IP:       local.IP.String(),
		Peers:    peers,
		Count:    len(peers),
		Expected: cfg.Service.ReplicaCount,
	})
}

// PeersWithIdentity returns one identity per open address
func (h *Handler) PeersWithIdentity(c *gin.Context) {
	cfg := h.cfg.Get()
	peers, err := h.disc.DiscoverPeersWithIdentity(scanContext(c), cfg.Discovery)
	if err != nil {
		h.writeError(c, "Failed to discover peers", err)
		return
	}
	c.JSON(http.StatusOK, h.identities(cfg, "", peers))
}

// ServicePeers returns identified peers whose hostname starts with ?prefix=
func (h *Handler) ServicePeers(c *gin.Context) {
	cfg := h.cfg.Get()
	prefix := c.DefaultQuery("prefix", cfg.Service.Name)

	peers, err := h.disc.DiscoverFilteredPeers(scanContext(c), cfg.Discovery, prefix)
	if err != nil {
		h.writeError(c, "Failed to discover service peers", err)
		return
	}
	c.JSON(http.StatusOK, h.identities(cfg, prefix, peers))
}

// Cluster compares found replicas against the expected count
func (h *Handler) Cluster(c *gin.Context) {
	cfg := h.cfg.Get()
	addrs, err := h.disc.DiscoverOpenAddresses(scanContext(c), cfg.Discovery)
	if err != nil {
		h.writeError(c, "Failed to discover peers", err)
		return
	}

	local := h.disc.Local()
	self := local.IP.String()

	peers := make([]ClusterPeer, len(addrs))
	for i, ip := range addrs {
		peers[i] = ClusterPeer{IP: ip, Self: ip == self}
	}

	status := ClusterDiscovering
	if len(addrs) >= cfg.Service.ReplicaCount {
		status = ClusterOK
	}

	c.JSON(http.StatusOK, ClusterResponse{
		Hostname: local.Hostname,
		IP:       self,
		Service:  local.ServiceName,
		Found:    len(addrs),
		Expected: cfg.Service.ReplicaCount,
		Status:   status,
		Peers:    peers,
	})
}

// Runs lists recent scan-run summaries
func (h *Handler) Runs(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "Invalid limit",
				Details: "limit must be a non-negative integer",
			})
			return
		}
		limit = n
	}

	runs, err := h.runs.ListRuns(c.Request.Context(), limit)
	if err != nil {
		h.writeError(c, "Failed to list runs", err)
		return
	}
	c.JSON(http.StatusOK, RunsResponse{Runs: runs, Count: len(runs)})
}

func (h *Handler) identities(cfg *config.Config, prefix string, peers []domain.PeerIdentity) IdentitiesResponse {
	local := h.disc.Local()
	return IdentitiesResponse{
		Hostname: local.Hostname,
		IP:       local.IP.String(),
		Prefix:   prefix,
		Peers:    peers,
		Count:    len(peers),
		Expected: cfg.Service.ReplicaCount,
	}
}

func (h *Handler) writeError(c *gin.Context, msg string, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, discovery.ErrInvalidConfig) {
		status = http.StatusBadRequest
	} else {
		h.log.Error().Err(err).Str("path", c.Request.URL.Path).Msg(msg)
	}
	c.JSON(status, ErrorResponse{Error: msg, Details: err.Error()})
}
