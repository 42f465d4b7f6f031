package cli

import (
	"errors"
	"fmt"
	"io"
	"unicode"
	"unicode/utf8"
)

// ErrAborted is returned when the user cancels a prompt.
var ErrAborted = errors.New("aborted")

const (
	keyCtrlC     = 0x03
	keyCtrlD     = 0x04
	keyBackspace = 0x08
	keyCtrlU     = 0x15
	keyEscape    = 0x1b
	keyDelete    = 0x7f
)

// editLine runs a minimal line editor over a raw-mode byte stream. The line
// starts out holding initial; Backspace removes the last rune, Ctrl-U clears
// the line, Enter accepts and Ctrl-C aborts. Escape sequences (arrow keys and
// the like) are swallowed.
func editLine(r io.Reader, w io.Writer, prompt, initial string) (string, error) {
	line := []rune(initial)
	redraw := func() {
		fmt.Fprintf(w, "\r\x1b[K%s%s", prompt, string(line))
	}
	redraw()

	var pending []byte
	buf := make([]byte, 1)
	for {
		n, err := r.Read(buf)
		if n == 0 {
			if err == nil {
				continue
			}
			if errors.Is(err, io.EOF) {
				fmt.Fprint(w, "\r\n")
				return string(line), nil
			}
			return "", fmt.Errorf("read input: %w", err)
		}
		c := buf[0]

		if c < utf8.RuneSelf {
			// An ASCII byte ends any truncated multibyte sequence.
			pending = pending[:0]
		} else {
			pending = append(pending, c)
			if !utf8.FullRune(pending) {
				continue
			}
			ru, _ := utf8.DecodeRune(pending)
			pending = pending[:0]
			if ru != utf8.RuneError && unicode.IsPrint(ru) {
				line = append(line, ru)
				redraw()
			}
			continue
		}

		switch c {
		case '\r', '\n':
			fmt.Fprint(w, "\r\n")
			return string(line), nil
		case keyCtrlC:
			fmt.Fprint(w, "\r\n")
			return "", ErrAborted
		case keyCtrlD:
			if len(line) == 0 {
				fmt.Fprint(w, "\r\n")
				return "", ErrAborted
			}
		case keyBackspace, keyDelete:
			if len(line) > 0 {
				line = line[:len(line)-1]
				redraw()
			}
		case keyCtrlU:
			line = line[:0]
			redraw()
		case keyEscape:
			skipEscape(r)
		default:
			if c >= 0x20 {
				line = append(line, rune(c))
				redraw()
			}
		}
	}
}

// skipEscape consumes the rest of a CSI or SS3 escape sequence.
func skipEscape(r io.Reader) {
	buf := make([]byte, 1)
	if _, err := io.ReadFull(r, buf); err != nil {
		return
	}
	if buf[0] != '[' && buf[0] != 'O' {
		return
	}
	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			return
		}
		if buf[0] >= 0x40 && buf[0] <= 0x7e {
			return
		}
	}
}
