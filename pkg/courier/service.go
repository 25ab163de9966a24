package courier

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alcionai/clues"

	"github.com/monoco-dev/fabric/internal/atomicfile"
	"github.com/monoco-dev/fabric/internal/pathutil"
)

// ErrAlreadyRunning is returned by Start when the service is already
// up (or mid-startup).
var ErrAlreadyRunning = clues.New("courier already running")

// ErrNotRunning is returned by Stop/Kill when no live process is on
// record.
var ErrNotRunning = clues.New("courier not running")

// ErrStartFailed is returned by Start when the spawned process never
// reports healthy within ServiceStartTimeout.
var ErrStartFailed = clues.New("courier failed to start")

// Status reports the service's current lifecycle state, mirroring
// what the daemon's own health endpoint returns once reachable.
type Status struct {
	State        State          `json:"state"`
	PID          int            `json:"pid,omitempty"`
	APIURL       string         `json:"api_url,omitempty"`
	Version      string         `json:"version,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Adapters     map[string]any `json:"adapters,omitempty"`
	Metrics      map[string]any `json:"metrics,omitempty"`
}

// IsRunning reports whether the service is in the running state.
func (s Status) IsRunning() bool { return s.State == StateRunning }

type runtimeState struct {
	PID       int       `json:"pid"`
	Host      string    `json:"host"`
	Port      int       `json:"port"`
	StartedAt time.Time `json:"started_at"`
}

// Service manages the courier daemon's process lifecycle: spawning,
// health-polling, graceful stop, and force kill, all tracked through a
// PID file and a runtime-state file.
type Service struct {
	PIDFile     string
	StateFile   string
	LogFile     string
	Host        string
	Port        int
	ProjectRoot string

	// ExecPath is the binary re-invoked to run the daemon in the
	// background. Defaults to the current executable.
	ExecPath string

	httpClient *http.Client
}

// NewService constructs a Service using courier's default control-file
// locations, rooted at projectRoot.
func NewService(projectRoot string) *Service {
	return &Service{
		PIDFile:     DefaultPIDFile(),
		StateFile:   DefaultStateFile(),
		LogFile:     DefaultLogFile(),
		Host:        DefaultHost,
		Port:        DefaultPort,
		ProjectRoot: projectRoot,
		httpClient:  &http.Client{Timeout: HealthCheckTimeout},
	}
}

func (s *Service) client() *http.Client {
	if s.httpClient == nil {
		s.httpClient = &http.Client{Timeout: HealthCheckTimeout}
	}

	return s.httpClient
}

func (s *Service) apiURL() string {
	return "http://" + s.Host + ":" + itoa(s.Port)
}

func (s *Service) readPID() (int, bool) {
	raw, err := os.ReadFile(s.PIDFile)
	if err != nil {
		return 0, false
	}

	pid, err := parsePID(raw)
	if err != nil {
		return 0, false
	}

	return pid, true
}

func (s *Service) writePID(pid int) error {
	return atomicfile.WriteFile(s.PIDFile, []byte(itoa(pid)), 0o644)
}

func (s *Service) removePID() {
	_ = os.Remove(s.PIDFile)
}

func (s *Service) writeRuntimeState(pid int, now time.Time) error {
	data, err := json.MarshalIndent(runtimeState{PID: pid, Host: s.Host, Port: s.Port, StartedAt: now}, "", "  ")
	if err != nil {
		return clues.Wrap(err, "encoding runtime state")
	}

	return atomicfile.WriteFile(s.StateFile, data, 0o644)
}

func (s *Service) readRuntimeState() (runtimeState, bool) {
	raw, err := os.ReadFile(s.StateFile)
	if err != nil {
		return runtimeState{}, false
	}

	var st runtimeState
	if err := json.Unmarshal(raw, &st); err != nil {
		return runtimeState{}, false
	}

	return st, true
}

func (s *Service) removeRuntimeState() {
	_ = os.Remove(s.StateFile)
}

func isProcessRunning(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	return proc.Signal(syscall.Signal(0)) == nil
}

// GetStatus reports the service's current lifecycle state, probing
// the health endpoint when a live PID is on record.
func (s *Service) GetStatus() Status {
	pid, ok := s.readPID()
	if !ok {
		return Status{State: StateStopped}
	}

	if !isProcessRunning(pid) {
		s.removePID()
		s.removeRuntimeState()

		return Status{State: StateError, ErrorMessage: "stale PID file found - process not running"}
	}

	apiURL := s.apiURL()
	if st, ok := s.readRuntimeState(); ok {
		apiURL = "http://" + st.Host + ":" + itoa(st.Port)
	}

	if health, ok := s.probeHealth(apiURL); ok {
		health.State = StateRunning
		health.PID = pid
		health.APIURL = apiURL

		return health
	}

	return Status{State: StateStarting, PID: pid, APIURL: apiURL}
}

func (s *Service) probeHealth(apiURL string) (Status, bool) {
	resp, err := s.client().Get(apiURL + "/health")
	if err != nil {
		return Status{}, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Status{}, false
	}

	var body struct {
		Version  string         `json:"version"`
		Adapters map[string]any `json:"adapters"`
		Metrics  map[string]any `json:"metrics"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Status{}, false
	}

	return Status{Version: body.Version, Adapters: body.Adapters, Metrics: body.Metrics}, true
}

// Start launches the daemon. In the foreground, it blocks running the
// daemon inline; otherwise it spawns a detached subprocess and polls
// its health endpoint until ServiceStartTimeout elapses.
func (s *Service) Start(foreground, debug bool) (Status, error) {
	current := s.GetStatus()
	if current.IsRunning() || current.State == StateStarting {
		return Status{}, clues.Stack(ErrAlreadyRunning).With("pid", current.PID)
	}

	s.removePID()
	s.removeRuntimeState()

	if err := os.MkdirAll(filepath.Dir(s.LogFile), 0o755); err != nil {
		return Status{}, clues.Wrap(err, "creating log directory")
	}

	args := []string{"daemon",
		"--host", s.Host,
		"--port", itoa(s.Port),
		"--pid-file", s.PIDFile,
		"--state-file", s.StateFile,
		"--project-root", s.ProjectRoot,
	}
	if debug {
		args = append(args, "--debug")
	}

	execPath := s.ExecPath
	if execPath == "" {
		var err error

		execPath, err = os.Executable()
		if err != nil {
			return Status{}, clues.Wrap(err, "resolving executable path")
		}
	}

	if foreground {
		cmd := exec.Command(execPath, args...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			return Status{}, clues.Wrap(err, "running courier daemon in foreground")
		}

		return s.GetStatus(), nil
	}

	logFile, err := os.OpenFile(s.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return Status{}, clues.Wrap(err, "opening log file").With("path", pathutil.LoggableDir(s.LogFile))
	}
	defer logFile.Close()

	cmd := exec.Command(execPath, args...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return Status{}, clues.Wrap(err, "spawning courier daemon")
	}

	if err := s.writePID(cmd.Process.Pid); err != nil {
		return Status{}, err
	}

	if err := s.writeRuntimeState(cmd.Process.Pid, time.Now()); err != nil {
		return Status{}, err
	}

	deadline := time.Now().Add(ServiceStartTimeout)
	for time.Now().Before(deadline) {
		status := s.GetStatus()
		if status.IsRunning() {
			return status, nil
		}

		if status.State == StateError {
			return Status{}, clues.Stack(ErrStartFailed).With("reason", status.ErrorMessage)
		}

		time.Sleep(500 * time.Millisecond)
	}

	return Status{}, clues.Stack(ErrStartFailed).With("reason", "timed out waiting for health check")
}

// Stop sends SIGTERM and, if wait is true, blocks until the process
// exits or timeout elapses, escalating to Kill on timeout.
func (s *Service) Stop(timeout time.Duration, wait bool) (Status, error) {
	pid, ok := s.readPID()
	if !ok {
		return Status{}, clues.Stack(ErrNotRunning)
	}

	if !isProcessRunning(pid) {
		s.removePID()
		s.removeRuntimeState()

		return Status{}, clues.Stack(ErrNotRunning).With("reason", "stale pid file")
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return Status{}, clues.Wrap(err, "finding courier process").With("pid", pid)
	}

	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return Status{}, clues.Wrap(err, "sending SIGTERM").With("pid", pid)
	}

	if wait {
		deadline := time.Now().Add(timeout)
		for time.Now().Before(deadline) {
			if !isProcessRunning(pid) {
				s.removePID()
				s.removeRuntimeState()

				return Status{State: StateStopped}, nil
			}

			time.Sleep(500 * time.Millisecond)
		}

		return s.Kill(), nil
	}

	return s.GetStatus(), nil
}

// Kill forcibly terminates the daemon with SIGKILL, ignoring any
// error from an already-dead process.
func (s *Service) Kill() Status {
	pid, ok := s.readPID()
	if !ok {
		return Status{State: StateStopped}
	}

	if proc, err := os.FindProcess(pid); err == nil {
		_ = proc.Signal(syscall.SIGKILL)
	}

	s.removePID()
	s.removeRuntimeState()

	return Status{State: StateStopped}
}

// Restart stops (tolerating "not running") then starts the service.
func (s *Service) Restart(force, debug bool) (Status, error) {
	if _, err := s.Stop(SigtermGrace, true); err != nil && !errors.Is(err, ErrNotRunning) {
		if !force {
			return Status{}, err
		}

		s.Kill()
	}

	return s.Start(false, debug)
}

// Logs returns the last n lines of the daemon's log file.
func (s *Service) Logs(n int) (string, error) {
	raw, err := os.ReadFile(s.LogFile)
	if os.IsNotExist(err) {
		return "", nil
	}

	if err != nil {
		return "", clues.Wrap(err, "reading log file")
	}

	return lastLines(string(raw), n), nil
}
