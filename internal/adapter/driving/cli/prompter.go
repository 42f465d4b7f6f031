package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/howeyc/gopass"
	"golang.org/x/term"
)

// Prompter collects interactive input from the user.
type Prompter interface {
	// Password reads a secret without echoing it.
	Password(prompt string) (string, error)
	// Confirm asks a yes/no question; anything but y or yes is a no.
	Confirm(prompt string) (bool, error)
	// EditLine lets the user edit initial and returns the result.
	EditLine(prompt, initial string) (string, error)
}

var _ Prompter = (*TerminalPrompter)(nil)

// TerminalPrompter prompts on out and reads from in. Prompts never go to
// stdout so that secrets printed there stay machine readable.
type TerminalPrompter struct {
	in  *os.File
	out io.Writer
}

// NewTerminalPrompter creates a TerminalPrompter.
func NewTerminalPrompter(in *os.File, out io.Writer) *TerminalPrompter {
	return &TerminalPrompter{in: in, out: out}
}

// Password reads a password. gopass switches the terminal out of echo mode
// when in is a terminal and reads a plain line otherwise.
func (p *TerminalPrompter) Password(prompt string) (string, error) {
	pw, err := gopass.GetPasswdPrompt(prompt, false, p.in, p.out)
	if errors.Is(err, gopass.ErrInterrupted) {
		return "", ErrAborted
	}
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(pw), nil
}

// Confirm asks a yes/no question.
func (p *TerminalPrompter) Confirm(prompt string) (bool, error) {
	fmt.Fprint(p.out, prompt)
	answer, err := readLine(p.in)
	if err != nil {
		return false, err
	}
	return isYes(answer), nil
}

// EditLine offers initial for editing in raw mode. Without a terminal the
// current value cannot be edited in place, so an empty line keeps it.
func (p *TerminalPrompter) EditLine(prompt, initial string) (string, error) {
	fd := int(p.in.Fd())
	if !term.IsTerminal(fd) {
		fmt.Fprint(p.out, prompt)
		line, err := readLine(p.in)
		if err != nil {
			return "", err
		}
		if line == "" {
			return initial, nil
		}
		return line, nil
	}

	state, err := term.MakeRaw(fd)
	if err != nil {
		return "", fmt.Errorf("enter raw mode: %w", err)
	}
	defer func() { _ = term.Restore(fd, state) }()

	return editLine(p.in, p.out, prompt, initial)
}

// readLine reads a single line one byte at a time so nothing past the
// newline is consumed from r.
func readLine(r io.Reader) (string, error) {
	var sb strings.Builder
	buf := make([]byte, 1)
	for {
		n, err := r.Read(buf)
		if n == 1 {
			if buf[0] == '\n' {
				break
			}
			sb.WriteByte(buf[0])
			continue
		}
		if errors.Is(err, io.EOF) {
			if sb.Len() == 0 {
				return "", fmt.Errorf("read input: %w", io.ErrUnexpectedEOF)
			}
			break
		}
		if err != nil {
			return "", fmt.Errorf("read input: %w", err)
		}
	}
	return strings.TrimRight(sb.String(), "\r"), nil
}

func isYes(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
