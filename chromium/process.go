// Package chromium manages the lifecycle of a local Chrome process used
// as the probe vehicle, or attaches to one already running with remote
// debugging enabled.
package chromium

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/copymill/webprobe/log"
	"github.com/copymill/webprobe/storage"
)

// defaultArgs keep a probe Chrome quiet: no first-run dialogs, no
// background networking, no GPU.
var defaultArgs = []string{
	"--headless",
	"--disable-gpu",
	"--no-first-run",
	"--no-default-browser-check",
	"--disable-background-networking",
	"--disable-default-apps",
	"--disable-extensions",
	"--disable-sync",
	"--disable-translate",
	"--mute-audio",
	"--remote-debugging-port=0",
	"about:blank",
}

// Options configures how the browser process is launched.
type Options struct {
	// ExecutablePath overrides binary discovery.
	ExecutablePath string
	// Headless turns headless mode off when false.
	Headless bool
	// ExtraArgs are appended to the default Chrome flags.
	ExtraArgs []string
	// Env entries are appended to the inherited environment.
	Env []string
}

// Process is a running browser owned (or observed) by the probe run.
type Process struct {
	ctx    context.Context
	cancel context.CancelFunc

	// The process of the browser, if running locally.
	process *os.Process

	lostConnection             chan struct{}
	processIsGracefullyClosing chan struct{}
	gracefulCloseOnce          sync.Once
	processDone                chan struct{}

	// Browser's WebSocket URL to speak CDP.
	wsURL string

	// The directory where user data for the browser is stored.
	userDataDir *storage.Dir

	logger *log.Logger
}

// Launch starts a browser process and resolves its DevTools websocket
// URL. Cancelling ctx terminates the process.
func Launch(ctx context.Context, opts Options, logger *log.Logger) (*Process, error) {
	path := opts.ExecutablePath
	if path == "" {
		if path = findExecutable(); path == "" {
			return nil, errors.New("no Chrome or Chromium executable found")
		}
	}

	dataDir, err := storage.NewDir("", "webprobe-chromium-*")
	if err != nil {
		return nil, err
	}

	args := make([]string, 0, len(defaultArgs)+len(opts.ExtraArgs)+1)
	for _, a := range defaultArgs {
		if a == "--headless" && !opts.Headless {
			continue
		}
		args = append(args, a)
	}
	args = append(args, "--user-data-dir="+dataDir.Dir)
	args = append(args, opts.ExtraArgs...)

	ctx, cancel := context.WithCancel(ctx)
	cmd, procDone, err := execute(ctx, path, args, opts.Env, dataDir, logger)
	if err != nil {
		cancel()
		_ = dataDir.Cleanup()
		return nil, err
	}

	wsURL, err := devToolsURL(dataDir.Dir)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("getting DevTools URL: %w", err)
	}

	p := Process{
		ctx:                        ctx,
		cancel:                     cancel,
		process:                    cmd.Process,
		lostConnection:             make(chan struct{}),
		processIsGracefullyClosing: make(chan struct{}),
		processDone:                procDone,
		wsURL:                      wsURL,
		userDataDir:                dataDir,
		logger:                     logger,
	}

	go func() {
		// If we lose connection to the browser and we're not in-progress
		// with a clean browser-initiated termination then cancel the
		// context to clean up.
		select {
		case <-p.lostConnection:
		case <-ctx.Done():
		}

		select {
		case <-p.processIsGracefullyClosing:
		default:
			p.cancel()
		}
	}()

	return &p, nil
}

// Attach connects to an already-running browser exposing the DevTools
// HTTP endpoint at host:port and returns a Process that Terminate will
// not kill.
func Attach(ctx context.Context, host string, port int, logger *log.Logger) (*Process, error) {
	wsURL, err := queryWebSocketURL(ctx, host, port)
	if err != nil {
		return nil, err
	}

	// The process is not ours, so Wait has nothing to wait for.
	procDone := make(chan struct{})
	close(procDone)

	ctx, cancel := context.WithCancel(ctx)
	return &Process{
		ctx:                        ctx,
		cancel:                     cancel,
		lostConnection:             make(chan struct{}),
		processIsGracefullyClosing: make(chan struct{}),
		processDone:                procDone,
		wsURL:                      wsURL,
		logger:                     logger,
	}, nil
}

// DidLoseConnection marks the CDP connection to this browser as gone.
func (p *Process) DidLoseConnection() {
	close(p.lostConnection)
}

// GracefulClose triggers a graceful closing of the browser process.
// Safe to call more than once; teardown paths overlap.
func (p *Process) GracefulClose() {
	p.gracefulCloseOnce.Do(func() {
		p.logger.Debugf("chromium", "graceful close")
		close(p.processIsGracefullyClosing)
	})
}

// Terminate kills the browser process and cleans up its user data dir.
func (p *Process) Terminate() {
	p.logger.Debugf("chromium", "terminate")
	p.cancel()
}

// Wait blocks until the browser process has exited.
func (p *Process) Wait() {
	<-p.processDone
}

// WsURL returns the websocket URL that the browser is listening on for
// CDP clients.
func (p *Process) WsURL() string {
	return p.wsURL
}

// Pid returns the browser process ID, or -1 when attached to an
// externally managed browser.
func (p *Process) Pid() int {
	if p.process == nil {
		return -1
	}
	return p.process.Pid
}

func execute(
	ctx context.Context, path string, args, env []string, dataDir *storage.Dir,
	logger *log.Logger,
) (*exec.Cmd, chan struct{}, error) {
	cmd := exec.CommandContext(ctx, path, args...)
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}

	// We must start the cmd before calling cmd.Wait, as otherwise the
	// two can run into a data race.
	err := cmd.Start()
	if os.IsNotExist(err) {
		return nil, nil, fmt.Errorf("file does not exist: %s", path)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("starting %s: %w", path, err)
	}
	if ctx.Err() != nil {
		return nil, nil, ctx.Err()
	}

	done := make(chan struct{})
	go func() {
		defer func() {
			if err := dataDir.Cleanup(); err != nil {
				logger.Errorf("chromium", "cleaning up the user data directory: %v", err)
			}
			close(done)
		}()

		if err := cmd.Wait(); err != nil {
			logger.Debugf("chromium", "process with PID %d ended: %v", cmd.Process.Pid, err)
		}
	}()

	return cmd, done, nil
}

// devToolsURL returns the DevTools websocket address by reading the
// DevToolsActivePort file in the data directory.
func devToolsURL(dataDir string) (wsURL string, rerr error) {
	var (
		f                *os.File
		fpath            = filepath.Join(dataDir, "DevToolsActivePort")
		maxReadAttempts  = 10
		readAttemptDelay = 50 * time.Millisecond
	)

	// The browser might not have created the file yet, so try reading
	// it multiple times after a slight delay.
	for readAttempts := 0; readAttempts < maxReadAttempts; readAttempts++ {
		var err error
		f, err = os.Open(fpath) //nolint:gosec // path is under our own temp dir
		if errors.Is(err, os.ErrNotExist) {
			time.Sleep(readAttemptDelay)
			continue
		}
		if err != nil {
			return "", fmt.Errorf("reading %q: %w", fpath, err)
		}
		defer func() {
			if cerr := f.Close(); rerr == nil {
				rerr = cerr
			}
		}()

		break
	}

	if f == nil {
		return "", fmt.Errorf("unable to read file %q in %s", fpath,
			time.Duration(maxReadAttempts)*readAttemptDelay)
	}

	fs := bufio.NewScanner(f)
	fs.Split(bufio.ScanLines)
	portURI := make([]string, 0, 2)
	for fs.Scan() {
		portURI = append(portURI, fs.Text())
	}
	if len(portURI) < 2 {
		return "", fmt.Errorf("malformed DevToolsActivePort file %q", fpath)
	}

	return fmt.Sprintf("ws://127.0.0.1:%s%s", portURI[0], portURI[1]), nil
}

// queryWebSocketURL asks the DevTools HTTP endpoint for the browser
// target's websocket debugger URL.
func queryWebSocketURL(ctx context.Context, host string, port int) (string, error) {
	versionURL := fmt.Sprintf("http://%s:%d/json/version", host, port)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, versionURL, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("querying %q: %w", versionURL, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	var version struct {
		WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&version); err != nil {
		return "", fmt.Errorf("decoding version response: %w", err)
	}
	if version.WebSocketDebuggerURL == "" {
		return "", errors.New("no websocket debugger URL in version response")
	}

	return version.WebSocketDebuggerURL, nil
}
