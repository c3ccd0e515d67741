package proxmox

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pvescale/lxc-autoscaler/pkg/models"
)

type fakePVE struct {
	t          *testing.T
	mux        *http.ServeMux
	lastResize url.Values
	authHeader string
}

func newFakePVE(t *testing.T) *fakePVE {
	f := &fakePVE{t: t, mux: http.NewServeMux()}

	f.mux.HandleFunc("/api2/json/cluster/resources", func(w http.ResponseWriter, r *http.Request) {
		f.authHeader = r.Header.Get("Authorization")
		fmt.Fprint(w, `{"data":[
			{"type":"lxc","vmid":101,"node":"pve1","status":"running"},
			{"type":"lxc","vmid":102,"node":"pve2","status":"stopped"},
			{"type":"node","node":"pve1","status":"online","cpu":0.5,"maxcpu":8,"mem":8589934592,"maxmem":17179869184},
			{"type":"node","node":"pve2","status":"online","cpu":0.25,"maxcpu":8,"mem":4294967296,"maxmem":17179869184}
		]}`)
	})

	f.mux.HandleFunc("/api2/json/nodes/pve1/lxc/101/status/current", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":{"status":"running","cpu":0.42,"mem":536870912,"maxmem":1073741824}}`)
	})

	f.mux.HandleFunc("/api2/json/nodes/pve1/lxc/101/config", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			require.NoError(f.t, r.ParseForm())
			f.lastResize = r.PostForm
			fmt.Fprint(w, `{"data":null}`)
			return
		}
		fmt.Fprint(w, `{"data":{"cores":2,"memory":"1024"}}`)
	})

	return f
}

func testClient(t *testing.T, handler http.Handler) *HTTPClient {
	server := httptest.NewTLSServer(handler)
	t.Cleanup(server.Close)

	u, err := url.Parse(server.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	return NewHTTPClient(HTTPClientConfig{
		Host:       u.Hostname(),
		Port:       port,
		User:       "autoscaler@pve",
		TokenName:  "scaler",
		TokenValue: "secret",
		VerifySSL:  false,
		Timeout:    5 * time.Second,
	})
}

func TestHTTPClient_GetUtilization(t *testing.T) {
	fake := newFakePVE(t)
	client := testClient(t, fake.mux)
	defer client.Close()

	util, err := client.GetUtilization(context.Background(), 101)
	require.NoError(t, err)

	assert.True(t, util.Running)
	assert.InDelta(t, 42.0, util.CPUPercent, 0.001)
	assert.InDelta(t, 50.0, util.MemoryPercent, 0.001)
	assert.Equal(t, "PVEAPIToken=autoscaler@pve!scaler=secret", fake.authHeader)
}

func TestHTTPClient_GetAllocation(t *testing.T) {
	fake := newFakePVE(t)
	client := testClient(t, fake.mux)
	defer client.Close()

	alloc, err := client.GetAllocation(context.Background(), 101)
	require.NoError(t, err)
	assert.Equal(t, models.Allocation{Cores: 2, MemoryMB: 1024}, alloc)
}

func TestHTTPClient_GetClusterUtilization(t *testing.T) {
	fake := newFakePVE(t)
	client := testClient(t, fake.mux)
	defer client.Close()

	host, err := client.GetClusterUtilization(context.Background())
	require.NoError(t, err)

	// (0.5*8 + 0.25*8) / 16 cores and (8GiB + 4GiB) / 32GiB.
	assert.InDelta(t, 37.5, host.CPUPercent, 0.001)
	assert.InDelta(t, 37.5, host.MemoryPercent, 0.001)
}

func TestHTTPClient_Resize(t *testing.T) {
	fake := newFakePVE(t)
	client := testClient(t, fake.mux)
	defer client.Close()

	err := client.Resize(context.Background(), 101, models.Allocation{Cores: 4, MemoryMB: 2048})
	require.NoError(t, err)

	require.NotNil(t, fake.lastResize)
	assert.Equal(t, "4", fake.lastResize.Get("cores"))
	assert.Equal(t, "2048", fake.lastResize.Get("memory"))
}

func TestHTTPClient_UnknownContainer(t *testing.T) {
	fake := newFakePVE(t)
	client := testClient(t, fake.mux)
	defer client.Close()

	_, err := client.GetUtilization(context.Background(), 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHTTPClient_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		expected error
	}{
		{"unauthorized", http.StatusUnauthorized, ErrAuth},
		{"forbidden", http.StatusForbidden, ErrAuth},
		{"bad request", http.StatusBadRequest, ErrValidation},
		{"server error", http.StatusInternalServerError, ErrConnection},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("/api2/json/cluster/resources", func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"data":[{"type":"lxc","vmid":101,"node":"pve1","status":"running"}]}`)
			})
			mux.HandleFunc("/api2/json/nodes/pve1/lxc/101/status/current", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})

			client := testClient(t, mux)
			defer client.Close()

			_, err := client.GetUtilization(context.Background(), 101)
			assert.ErrorIs(t, err, tt.expected)
		})
	}
}

func TestHTTPClient_NotFoundInvalidatesNodeCache(t *testing.T) {
	gone := false
	mux := http.NewServeMux()
	mux.HandleFunc("/api2/json/cluster/resources", func(w http.ResponseWriter, r *http.Request) {
		node := "pve1"
		if gone {
			node = "pve2"
		}
		fmt.Fprintf(w, `{"data":[{"type":"lxc","vmid":101,"node":"%s","status":"running"}]}`, node)
	})
	mux.HandleFunc("/api2/json/nodes/pve1/lxc/101/status/current", func(w http.ResponseWriter, r *http.Request) {
		if gone {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, `{"data":{"status":"running","cpu":0.1,"mem":1,"maxmem":2}}`)
	})
	mux.HandleFunc("/api2/json/nodes/pve2/lxc/101/status/current", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":{"status":"running","cpu":0.2,"mem":1,"maxmem":2}}`)
	})

	client := testClient(t, mux)
	defer client.Close()

	_, err := client.GetUtilization(context.Background(), 101)
	require.NoError(t, err)

	// Container migrates; the stale cache entry produces one not-found,
	// then the next lookup resolves the new node.
	gone = true
	_, err = client.GetUtilization(context.Background(), 101)
	assert.ErrorIs(t, err, ErrNotFound)

	util, err := client.GetUtilization(context.Background(), 101)
	require.NoError(t, err)
	assert.InDelta(t, 20.0, util.CPUPercent, 0.001)
}
