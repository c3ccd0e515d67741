package proxmox

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pvescale/lxc-autoscaler/internal/logger"
	"github.com/pvescale/lxc-autoscaler/pkg/models"
)

// HTTPClient talks to the Proxmox VE REST API (/api2/json). It supports
// API-token authentication (preferred) and ticket-based password login.
type HTTPClient struct {
	client  *http.Client
	baseURL string
	timeout time.Duration

	user       string
	password   string
	tokenName  string
	tokenValue string

	mu        sync.Mutex
	ticket    string
	csrfToken string
	nodeCache map[int]string // vmid -> node
}

type HTTPClientConfig struct {
	Host       string
	Port       int
	User       string
	Password   string
	TokenName  string
	TokenValue string
	VerifySSL  bool
	Timeout    time.Duration
}

func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	port := cfg.Port
	if port == 0 {
		port = 8006
	}

	transport := &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
	}
	if !cfg.VerifySSL {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &HTTPClient{
		client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		baseURL:    fmt.Sprintf("https://%s:%d/api2/json", cfg.Host, port),
		timeout:    timeout,
		user:       cfg.User,
		password:   cfg.Password,
		tokenName:  cfg.TokenName,
		tokenValue: cfg.TokenValue,
		nodeCache:  make(map[int]string),
	}
}

type statusResponse struct {
	Status string  `json:"status"`
	CPU    float64 `json:"cpu"`
	Mem    int64   `json:"mem"`
	MaxMem int64   `json:"maxmem"`
}

type configResponse struct {
	Cores  int             `json:"cores"`
	Memory json.RawMessage `json:"memory"`
}

type clusterResource struct {
	Type   string  `json:"type"`
	VMID   int     `json:"vmid"`
	Node   string  `json:"node"`
	Status string  `json:"status"`
	CPU    float64 `json:"cpu"`
	MaxCPU int     `json:"maxcpu"`
	Mem    int64   `json:"mem"`
	MaxMem int64   `json:"maxmem"`
}

func (c *HTTPClient) GetUtilization(ctx context.Context, vmid int) (Utilization, error) {
	node, err := c.resolveNode(ctx, vmid)
	if err != nil {
		return Utilization{}, err
	}

	var status statusResponse
	path := fmt.Sprintf("/nodes/%s/lxc/%d/status/current", node, vmid)
	if err := c.get(ctx, path, &status); err != nil {
		if errors.Is(err, ErrNotFound) {
			c.invalidateNode(vmid)
		}
		return Utilization{}, err
	}

	util := Utilization{
		CPUPercent: status.CPU * 100,
		Running:    status.Status == "running",
	}
	if status.MaxMem > 0 {
		util.MemoryPercent = float64(status.Mem) / float64(status.MaxMem) * 100
	}

	return util, nil
}

func (c *HTTPClient) GetAllocation(ctx context.Context, vmid int) (models.Allocation, error) {
	node, err := c.resolveNode(ctx, vmid)
	if err != nil {
		return models.Allocation{}, err
	}

	var conf configResponse
	path := fmt.Sprintf("/nodes/%s/lxc/%d/config", node, vmid)
	if err := c.get(ctx, path, &conf); err != nil {
		if errors.Is(err, ErrNotFound) {
			c.invalidateNode(vmid)
		}
		return models.Allocation{}, err
	}

	cores := conf.Cores
	if cores == 0 {
		cores = 1
	}

	return models.Allocation{
		Cores:    cores,
		MemoryMB: parseMemoryMB(conf.Memory),
	}, nil
}

func (c *HTTPClient) GetClusterUtilization(ctx context.Context) (HostUtilization, error) {
	resources, err := c.clusterResources(ctx)
	if err != nil {
		return HostUtilization{}, err
	}

	var (
		cpuUsed, cpuTotal float64
		memUsed, memTotal int64
	)
	for _, r := range resources {
		if r.Type != "node" || r.Status != "online" {
			continue
		}
		// Node cpu is a fraction of maxcpu cores.
		cpuUsed += r.CPU * float64(r.MaxCPU)
		cpuTotal += float64(r.MaxCPU)
		memUsed += r.Mem
		memTotal += r.MaxMem
	}

	var util HostUtilization
	if cpuTotal > 0 {
		util.CPUPercent = cpuUsed / cpuTotal * 100
	}
	if memTotal > 0 {
		util.MemoryPercent = float64(memUsed) / float64(memTotal) * 100
	}

	return util, nil
}

func (c *HTTPClient) Resize(ctx context.Context, vmid int, target models.Allocation) error {
	node, err := c.resolveNode(ctx, vmid)
	if err != nil {
		return err
	}

	form := url.Values{}
	form.Set("cores", strconv.Itoa(target.Cores))
	form.Set("memory", strconv.Itoa(target.MemoryMB))

	logger.WithContainer(vmid).Infof("Resizing container on node %s: cores=%d memory=%dMB",
		node, target.Cores, target.MemoryMB)

	path := fmt.Sprintf("/nodes/%s/lxc/%d/config", node, vmid)
	return c.put(ctx, path, form)
}

func (c *HTTPClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

// resolveNode maps a vmid to its hosting node, consulting the cluster
// resource list on a cache miss. Containers can migrate between nodes, so
// the cache entry is dropped whenever a lookup comes back not-found.
func (c *HTTPClient) resolveNode(ctx context.Context, vmid int) (string, error) {
	c.mu.Lock()
	node, ok := c.nodeCache[vmid]
	c.mu.Unlock()
	if ok {
		return node, nil
	}

	resources, err := c.clusterResources(ctx)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range resources {
		if r.Type == "lxc" {
			c.nodeCache[r.VMID] = r.Node
		}
	}

	node, ok = c.nodeCache[vmid]
	if !ok {
		return "", fmt.Errorf("%w: container %d not present on any node", ErrNotFound, vmid)
	}
	return node, nil
}

func (c *HTTPClient) invalidateNode(vmid int) {
	c.mu.Lock()
	delete(c.nodeCache, vmid)
	c.mu.Unlock()
}

func (c *HTTPClient) clusterResources(ctx context.Context) ([]clusterResource, error) {
	var resources []clusterResource
	if err := c.get(ctx, "/cluster/resources", &resources); err != nil {
		return nil, err
	}
	return resources, nil
}

func (c *HTTPClient) get(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *HTTPClient) put(ctx context.Context, path string, form url.Values) error {
	return c.do(ctx, http.MethodPut, path, form, nil)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, form url.Values, out interface{}) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%w: failed to create request: %v", ErrConnection, err)
	}

	req.Header.Set("Accept", "application/json")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	if err := c.authorize(ctx, req, method); err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		return err
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read response body: %v", ErrConnection, err)
	}

	// Proxmox wraps every payload in a data envelope.
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("%w: invalid response: %v", ErrConnection, err)
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("%w: invalid response payload: %v", ErrConnection, err)
	}

	return nil
}

// authorize attaches token credentials, or logs in for a ticket when only
// password auth is configured. Write methods additionally need the CSRF
// prevention token from the login response.
func (c *HTTPClient) authorize(ctx context.Context, req *http.Request, method string) error {
	if c.tokenName != "" && c.tokenValue != "" {
		req.Header.Set("Authorization",
			fmt.Sprintf("PVEAPIToken=%s!%s=%s", c.user, c.tokenName, c.tokenValue))
		return nil
	}

	c.mu.Lock()
	ticket, csrf := c.ticket, c.csrfToken
	c.mu.Unlock()

	if ticket == "" {
		var err error
		ticket, csrf, err = c.login(ctx)
		if err != nil {
			return err
		}
	}

	req.AddCookie(&http.Cookie{Name: "PVEAuthCookie", Value: ticket})
	if method != http.MethodGet {
		req.Header.Set("CSRFPreventionToken", csrf)
	}
	return nil
}

func (c *HTTPClient) login(ctx context.Context) (ticket, csrf string, err error) {
	form := url.Values{}
	form.Set("username", c.user)
	form.Set("password", c.password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/access/ticket", strings.NewReader(form.Encode()))
	if err != nil {
		return "", "", fmt.Errorf("%w: failed to create login request: %v", ErrConnection, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", "", classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", "", fmt.Errorf("%w: login rejected", ErrAuth)
	}
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("%w: login returned status %d", ErrConnection, resp.StatusCode)
	}

	var envelope struct {
		Data struct {
			Ticket    string `json:"ticket"`
			CSRFToken string `json:"CSRFPreventionToken"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return "", "", fmt.Errorf("%w: invalid login response: %v", ErrConnection, err)
	}

	c.mu.Lock()
	c.ticket = envelope.Data.Ticket
	c.csrfToken = envelope.Data.CSRFToken
	c.mu.Unlock()

	return envelope.Data.Ticket, envelope.Data.CSRFToken, nil
}

func classifyStatus(code int) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", ErrAuth, code)
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusBadRequest:
		return fmt.Errorf("%w: status %d", ErrValidation, code)
	default:
		return fmt.Errorf("%w: unexpected status %d", ErrConnection, code)
	}
}

func classifyTransportError(ctx context.Context, err error) error {
	if ctx.Err() == context.DeadlineExceeded {
		return ErrTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}
	return fmt.Errorf("%w: %v", ErrConnection, err)
}

// parseMemoryMB handles the memory field, which newer Proxmox releases
// return as a number and older ones as a string.
func parseMemoryMB(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 512
	}

	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.Atoi(s); err == nil {
			return v
		}
	}

	return 512
}
