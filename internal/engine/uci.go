package engine

import (
	"bufio"
	"context"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/otbreview/otbreview/internal/domain"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Client is a subprocess-based UCI engine collaborator. No Go UCI
// *client* library exists in the ecosystem this module was grounded on
// (only a UCI *server*, see hailam-chessplay/internal/uci — used here
// only to confirm the wire vocabulary); this client is a deliberate
// stdlib os/exec+bufio implementation, documented as such in
// DESIGN.md's standard-library-only justifications.
type Client struct {
	cmd    *exec.Cmd
	stdin  *bufio.Writer
	lines  chan string
	logger *zap.Logger

	mu     sync.Mutex
	closed bool
}

// EvalResult is one engine analysis response.
type EvalResult struct {
	CP    *int
	Mate  *int
	PV    []string
	Depth int
}

// NewClient spawns the engine binary at path and performs the UCI
// handshake (uci/uciok, isready/readyok).
func NewClient(path string, logger *zap.Logger) (*Client, error) {
	if path == "" {
		return nil, &domain.EngineUnavailableError{Path: path, Reason: "no engine path configured"}
	}

	cmd := exec.Command(path)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.Wrap(err, "opening engine stdin")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "opening engine stdout")
	}
	if err := cmd.Start(); err != nil {
		return nil, &domain.EngineUnavailableError{Path: path, Reason: err.Error()}
	}

	lines := make(chan string, 64)
	go pumpLines(stdout, lines)

	c := &Client{
		cmd:    cmd,
		stdin:  bufio.NewWriter(stdin),
		lines:  lines,
		logger: logger,
	}

	if err := c.send("uci"); err != nil {
		return nil, err
	}
	if _, err := c.waitFor(context.Background(), "uciok", 5*time.Second); err != nil {
		return nil, errors.Wrap(err, "waiting for uciok")
	}
	if err := c.send("isready"); err != nil {
		return nil, err
	}
	if _, err := c.waitFor(context.Background(), "readyok", 5*time.Second); err != nil {
		return nil, errors.Wrap(err, "waiting for readyok")
	}

	return c, nil
}

func pumpLines(r io.Reader, out chan<- string) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		out <- scanner.Text()
	}
	close(out)
}

func (c *Client) send(line string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("engine client is closed")
	}
	if _, err := c.stdin.WriteString(line + "\n"); err != nil {
		return errors.Wrapf(err, "writing %q to engine", line)
	}
	return c.stdin.Flush()
}

func (c *Client) waitFor(ctx context.Context, prefix string, timeout time.Duration) (string, error) {
	deadline := time.After(timeout)
	for {
		select {
		case line, ok := <-c.lines:
			if !ok {
				return "", errors.New("engine closed its output stream")
			}
			if strings.HasPrefix(line, prefix) {
				return line, nil
			}
		case <-deadline:
			return "", errors.Errorf("timed out waiting for %q", prefix)
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// Analyze runs a fixed-depth search from fen and returns the last
// reported evaluation and principal variation before bestmove, per
// spec.md §4.E steps 1-2.
func (c *Client) Analyze(ctx context.Context, ply int, fen string, depth, pvLength int, timeout time.Duration) (EvalResult, error) {
	if err := c.send("ucinewgame"); err != nil {
		return EvalResult{}, err
	}
	if err := c.send("position fen " + fen); err != nil {
		return EvalResult{}, err
	}
	if err := c.send("go depth " + strconv.Itoa(depth)); err != nil {
		return EvalResult{}, err
	}

	var last EvalResult
	deadline := time.After(timeout)
	for {
		select {
		case line, ok := <-c.lines:
			if !ok {
				return EvalResult{}, errors.New("engine closed its output stream mid-analysis")
			}
			if strings.HasPrefix(line, "info") {
				if parsed, ok := parseInfoLine(line, pvLength); ok {
					last = parsed
				}
				continue
			}
			if strings.HasPrefix(line, "bestmove") {
				return last, nil
			}
		case <-deadline:
			return EvalResult{}, &domain.EngineTimeoutError{Ply: ply, Timeout: timeout.String()}
		case <-ctx.Done():
			return EvalResult{}, ctx.Err()
		}
	}
}

// parseInfoLine extracts depth, score (cp or mate) and a PV of at most
// pvLength moves from a UCI "info ..." line.
func parseInfoLine(line string, pvLength int) (EvalResult, bool) {
	fields := strings.Fields(line)
	var result EvalResult
	found := false

	for i := 0; i < len(fields); i++ {
		switch fields[i] {
		case "depth":
			if i+1 < len(fields) {
				if d, err := strconv.Atoi(fields[i+1]); err == nil {
					result.Depth = d
				}
			}
		case "score":
			if i+2 < len(fields) {
				switch fields[i+1] {
				case "cp":
					if v, err := strconv.Atoi(fields[i+2]); err == nil {
						result.CP = &v
						found = true
					}
				case "mate":
					if v, err := strconv.Atoi(fields[i+2]); err == nil {
						result.Mate = &v
						found = true
					}
				}
			}
		case "pv":
			pv := fields[i+1:]
			if len(pv) > pvLength {
				pv = pv[:pvLength]
			}
			result.PV = append([]string(nil), pv...)
			i = len(fields)
		}
	}

	return result, found
}

// Close sends "quit" and releases the subprocess.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	_, _ = c.stdin.WriteString("quit\n")
	_ = c.stdin.Flush()
	c.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- c.cmd.Wait() }()

	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		if c.logger != nil {
			c.logger.Warn("engine did not exit after quit, killing process")
		}
		_ = c.cmd.Process.Kill()
		return <-done
	}
}
