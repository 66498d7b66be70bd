package testutil

import (
	"fmt"
	"math/rand/v2"
	"net"
	"strconv"
	"sync"
)

const maxPortAttempts = 50

var (
	portManagerInstance *portManager
	portManagerOnce     sync.Once
)

// portManager hands out fixed host ports so containers keep their address across Stop/Start.
type portManager struct {
	usedPorts map[int]bool
	mu        sync.Mutex
	minPort   int
	maxPort   int
}

func getPortManager() *portManager {
	portManagerOnce.Do(func() {
		portManagerInstance = &portManager{
			usedPorts: make(map[int]bool),
			minPort:   15000,
			maxPort:   25000,
		}
	})
	return portManagerInstance
}

func (pm *portManager) reservePort() (int, error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	for range maxPortAttempts {
		port := pm.minPort + rand.IntN(pm.maxPort-pm.minPort+1)
		if pm.usedPorts[port] || !portIsFree(port) {
			continue
		}
		pm.usedPorts[port] = true
		return port, nil
	}

	return 0, fmt.Errorf("failed to find available port after %d attempts", maxPortAttempts)
}

func (pm *portManager) releasePort(port int) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	delete(pm.usedPorts, port)
}

func portIsFree(port int) bool {
	l, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		return false
	}
	_ = l.Close()
	return true
}
