package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// Manager starts or finds the kasage server and reports when it is ready.
type Manager struct {
	serverAddr string
	serverBin  string
	statusFunc func(string)
	readyFunc  func(string)

	client       *http.Client
	pollInterval time.Duration
	pollAttempts int

	mu        sync.Mutex
	serverCmd *exec.Cmd
}

// NewManager creates a Manager for the server listening on serverAddr.
func NewManager(serverAddr, serverBin string, status, ready func(string)) *Manager {
	return &Manager{
		serverAddr:   serverAddr,
		serverBin:    serverBin,
		statusFunc:   status,
		readyFunc:    ready,
		client:       &http.Client{Timeout: time.Second},
		pollInterval: time.Second,
		pollAttempts: 30,
	}
}

func (m *Manager) status(msg string) {
	if m.statusFunc != nil {
		m.statusFunc(msg)
	}
}

// Start launches the server if needed and waits for it in the background.
func (m *Manager) Start() {
	go func() {
		if m.isServerReady() {
			m.status("Server already active.")
		} else {
			m.status("Starting server...")
			go m.runServer()
		}

		for i := 0; i < m.pollAttempts; i++ {
			if m.isServerReady() {
				m.status("Server ready.")
				if m.readyFunc != nil {
					m.readyFunc(m.baseURL())
				}
				return
			}
			time.Sleep(m.pollInterval)
		}
		m.status("Error: server did not start.")
	}()
}

// Stop asks a server started by this manager to shut down.
func (m *Manager) Stop() {
	m.mu.Lock()
	started := m.serverCmd != nil
	m.mu.Unlock()
	if !started {
		return
	}
	if err := m.requestShutdown(); err != nil {
		slog.Warn("API shutdown failed", "error", err)
		return
	}
	time.Sleep(500 * time.Millisecond)
}

func (m *Manager) requestShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL()+"/api/shutdown", http.NoBody)
	if err != nil {
		return err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("shutdown returned status %d", resp.StatusCode)
	}
	return nil
}

func (m *Manager) runServer() {
	cmd := exec.Command(m.serverBin)
	m.mu.Lock()
	m.serverCmd = cmd
	m.mu.Unlock()

	if err := m.runWithOutput(cmd); err != nil {
		m.status(fmt.Sprintf("Server exited with error: %v", err))
	}
}

func (m *Manager) runWithOutput(cmd *exec.Cmd) error {
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}

	go m.streamReader(stdout)
	go m.streamReader(stderr)
	return cmd.Wait()
}

func (m *Manager) streamReader(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		slog.Debug("server", "line", scanner.Text())
	}
}

// resolveAddr turns a listen address into one a client can dial.
func (m *Manager) resolveAddr() string {
	addr := m.serverAddr
	switch {
	case strings.HasPrefix(addr, ":"):
		return "127.0.0.1" + addr
	case strings.HasPrefix(addr, "0.0.0.0:"):
		return strings.Replace(addr, "0.0.0.0:", "127.0.0.1:", 1)
	case strings.HasPrefix(addr, "localhost:"):
		return strings.Replace(addr, "localhost:", "127.0.0.1:", 1)
	}
	return addr
}

func (m *Manager) baseURL() string {
	return "http://" + m.resolveAddr()
}

func (m *Manager) isServerReady() bool {
	resp, err := m.client.Get(m.baseURL() + "/api/version")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
