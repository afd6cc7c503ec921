package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Manager starts the map server when it is not already running, relays its
// output to the shell page and shows the map once it answers /health.
type Manager struct {
	logFunc  func(string)
	termFunc func(string)
	appFunc  func(string)

	serverAddr string
	serverBin  string
	configPath string
	logPath    string

	readyAttempts int
	pollInterval  time.Duration
	client        *http.Client

	mu        sync.Mutex
	serverCmd *exec.Cmd
	started   bool
}

func NewManager(log, term, app func(string), serverAddr string) *Manager {
	return &Manager{
		logFunc:       log,
		termFunc:      term,
		appFunc:       app,
		serverAddr:    serverAddr,
		serverBin:     "./carnav",
		configPath:    "configs/carnav.yaml",
		logPath:       "logs/server.log",
		readyAttempts: 30,
		pollInterval:  time.Second,
		client:        &http.Client{Timeout: time.Second},
	}
}

func (m *Manager) log(msg string) {
	if m.logFunc != nil {
		m.logFunc(msg)
	}
}

func (m *Manager) term(name string) {
	if m.termFunc != nil {
		m.termFunc(name)
	}
}

// Stop asks a server this shell started to shut down. A server that was
// already running is left alone.
func (m *Manager) Stop() {
	m.mu.Lock()
	started := m.started
	m.mu.Unlock()
	if !started {
		return
	}

	fmt.Println("> carnav closing: Sending shutdown signal to server...")
	url := fmt.Sprintf("http://%s/api/shutdown", m.resolveAddr())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, url, http.NoBody)
	resp, err := m.client.Do(req)
	if err != nil {
		fmt.Printf("> API shutdown failed: %v\n", err)
		return
	}
	resp.Body.Close()
	fmt.Println("> Shutdown command sent successfully.")
	time.Sleep(500 * time.Millisecond)
}

// ReportDimensions tells the server the size of the map area in pixels.
func (m *Manager) ReportDimensions(width, height int) error {
	body, err := json.Marshal(map[string]int{"width": width, "height": height})
	if err != nil {
		return err
	}
	url := fmt.Sprintf("http://%s/api/viewport/dimensions", m.resolveAddr())
	req, err := http.NewRequest(http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("server answered %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	return nil
}

func (m *Manager) Start() {
	go func() {
		if !m.checkPrerequisites() {
			m.log("> No config found. Generating defaults...")
			if err := m.initConfig(); err != nil {
				m.log(fmt.Sprintf("> Config generation failed: %v", err))
				return
			}
			m.log("> Config written to " + m.configPath)
		}

		m.term(filepath.Base(m.serverBin))
		if !m.isServerReady() {
			m.log("> Server not running. Starting " + filepath.Base(m.serverBin) + "...")
			go m.runServer()
		} else {
			m.log("> Server already active.")
			m.term(filepath.Base(m.logPath))
			go m.tailServerLog()
		}

		m.log("> Waiting for server...")
		if m.waitReady() {
			m.log("> Server ready!")
			if m.appFunc != nil {
				m.appFunc("http://" + m.resolveAddr())
			}
			return
		}
		m.log("> Error: Server timed out.")
	}()
}

func (m *Manager) waitReady() bool {
	for i := 0; i < m.readyAttempts; i++ {
		if m.isServerReady() {
			return true
		}
		time.Sleep(m.pollInterval)
	}
	return false
}

func (m *Manager) checkPrerequisites() bool {
	_, err := os.Stat(m.configPath)
	return err == nil
}

func (m *Manager) initConfig() error {
	return m.runWithOutput(exec.Command(m.serverBin, "-init-config", "-config", m.configPath))
}

func (m *Manager) runServer() {
	cmd := exec.Command(m.serverBin, "-config", m.configPath)
	m.mu.Lock()
	m.serverCmd = cmd
	m.started = true
	m.mu.Unlock()
	if err := m.runWithOutput(cmd); err != nil {
		m.log(fmt.Sprintf("Server exited with error: %v", err))
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

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); m.streamReader(stdout) }()
	go func() { defer wg.Done(); m.streamReader(stderr) }()
	wg.Wait()

	return cmd.Wait()
}

func (m *Manager) tailServerLog() {
	file, err := os.Open(m.logPath)
	if err != nil {
		m.log(fmt.Sprintf("Could not open log file: %v", err))
		return
	}
	defer file.Close()

	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		m.log(fmt.Sprintf("Could not seek log file: %v", err))
		return
	}
	reader := bufio.NewReader(file)

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				time.Sleep(500 * time.Millisecond)
				continue
			}
			break
		}
		m.log(strings.TrimSpace(line))
	}
}

func (m *Manager) streamReader(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		m.log(scanner.Text())
	}
}

func (m *Manager) resolveAddr() string {
	addr := m.serverAddr
	if strings.HasPrefix(addr, ":") {
		return "127.0.0.1" + addr
	}
	if strings.HasPrefix(addr, "localhost:") {
		return strings.Replace(addr, "localhost:", "127.0.0.1:", 1)
	}
	return addr
}

func (m *Manager) isServerReady() bool {
	resp, err := m.client.Get(fmt.Sprintf("http://%s/health", m.resolveAddr()))
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
