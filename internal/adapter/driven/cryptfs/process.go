package cryptfs

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

// promptMarkers are the password prompts printed by gocryptfs.
var promptMarkers = []string{"Password:", "Repeat:"}

// process is a crypto binary running on a pseudo-terminal. Password prompts
// are answered from the output reader goroutine, so the password is only ever
// written to the terminal, never to argv, the environment or disk.
type process struct {
	cmd      *exec.Cmd
	ptmx     *os.File
	password string
	logger   *slog.Logger

	mu       sync.Mutex
	output   bytes.Buffer
	scanned  int
	answered int
	answers  int

	readerDone chan struct{}
	done       chan struct{}
	waitErr    error
}

// startProcess starts cmd on a new pty and answers up to answers prompts
// with password.
func startProcess(cmd *exec.Cmd, password string, answers int, logger *slog.Logger) (*process, error) {
	ptmx, err := pty.Start(cmd)
	if err != nil {
		return nil, fmt.Errorf("starting pty: %w", err)
	}

	p := &process{
		cmd:        cmd,
		ptmx:       ptmx,
		password:   password,
		logger:     logger,
		answers:    answers,
		readerDone: make(chan struct{}),
		done:       make(chan struct{}),
	}

	go p.readLoop()
	go p.waitLoop()

	return p, nil
}

func (p *process) readLoop() {
	defer close(p.readerDone)

	buf := make([]byte, 1024)
	for {
		n, err := p.ptmx.Read(buf)
		if n > 0 {
			p.consume(buf[:n])
		}
		if err != nil {
			// EIO once the child side is closed; anything else ends the loop too.
			return
		}
	}
}

// consume appends terminal output and answers any new password prompt.
func (p *process) consume(chunk []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.output.Write(chunk)

	for p.answered < p.answers {
		pending := p.output.String()[p.scanned:]
		idx, marker := firstMarker(pending)
		if idx < 0 {
			return
		}
		p.scanned += idx + len(marker)
		p.answered++

		if _, err := p.ptmx.Write([]byte(p.password + "\n")); err != nil {
			p.logger.Debug("answer prompt failed", "prompt", marker, "error", err)
			return
		}
	}
}

func firstMarker(s string) (int, string) {
	best, found := -1, ""
	for _, m := range promptMarkers {
		if i := strings.Index(s, m); i >= 0 && (best < 0 || i < best) {
			best, found = i, m
		}
	}
	return best, found
}

func (p *process) waitLoop() {
	err := p.cmd.Wait()
	// Drain whatever the child printed before exiting.
	<-p.readerDone
	_ = p.ptmx.Close()

	p.mu.Lock()
	p.waitErr = err
	p.mu.Unlock()
	close(p.done)
}

// exited reports whether the process has terminated.
func (p *process) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// exitCode returns the exit status, or -1 if unavailable. Valid after done.
func (p *process) exitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.waitErr == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(p.waitErr, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// transcript returns the captured terminal output with the password redacted.
func (p *process) transcript() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := p.output.String()
	if p.password != "" {
		out = strings.ReplaceAll(out, p.password, "***")
	}
	return strings.TrimSpace(out)
}

// kill terminates the process group and waits for the leader to be reaped.
// pty.Start makes the child a session leader, so its pid is also the group
// id and any helpers still holding the terminal die with it.
func (p *process) kill() {
	if !p.exited() && p.cmd.Process != nil {
		if err := unix.Kill(-p.cmd.Process.Pid, unix.SIGKILL); err != nil {
			_ = p.cmd.Process.Kill()
		}
	}
	<-p.done
}
