package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"slotcache/internal/logger"
)

// ExecFunc runs one parsed shell line
type ExecFunc func(ctx context.Context, args []string) error

// Config holds the configuration for a Shell
type Config struct {
	Prompt  string
	Banner  string
	In      io.Reader
	Out     io.Writer
	Err     io.Writer
	History int
	Exec    ExecFunc
}

// Shell reads lines, splits them into arguments and hands them to Exec.
// On a terminal it edits lines in raw mode with history recall; on any
// other input it runs the lines as a script.
type Shell struct {
	config  Config
	history *CommandHistory
}

func New(config Config) *Shell {
	if config.In == nil {
		config.In = os.Stdin
	}
	if config.Out == nil {
		config.Out = os.Stdout
	}
	if config.Err == nil {
		config.Err = os.Stderr
	}
	if config.History <= 0 {
		config.History = 100
	}
	return &Shell{config: config, history: NewCommandHistory(config.History)}
}

// History returns the lines entered so far
func (s *Shell) History() *CommandHistory {
	return s.history
}

// Run reads until EOF, quit or exit, or until ctx is done. In script mode
// it keeps going after a failing line and reports the failures at the end.
func (s *Shell) Run(ctx context.Context) error {
	if f, ok := s.config.In.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return s.runInteractive(ctx, f)
	}
	return s.runScript(ctx)
}

func (s *Shell) runInteractive(ctx context.Context, in *os.File) error {
	fd := int(in.Fd())
	out := s.config.Out

	if s.config.Banner != "" {
		fmt.Fprintln(out, s.config.Banner)
	}
	fmt.Fprintln(out, "Type 'help' for commands, 'quit' to exit. Arrow keys recall history.")

	reader := bufio.NewReader(in)
	for ctx.Err() == nil {
		oldState, err := term.MakeRaw(fd)
		if err != nil {
			logger.Warnf("Could not set terminal to raw mode, history recall disabled: %v", err)
			return s.runLines(ctx, reader, true)
		}
		fmt.Fprint(out, s.config.Prompt)
		line, err := readInputWithHistory(reader, out, s.config.Prompt, s.history)
		_ = term.Restore(fd, oldState)

		if errors.Is(err, io.EOF) {
			fmt.Fprintln(out)
			return nil
		}
		if err != nil {
			return err
		}

		stop, _ := s.handle(ctx, line, 0)
		if stop {
			return nil
		}
	}
	return ctx.Err()
}

func (s *Shell) runScript(ctx context.Context) error {
	return s.runLines(ctx, bufio.NewReader(s.config.In), false)
}

func (s *Shell) runLines(ctx context.Context, reader *bufio.Reader, prompt bool) error {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 16<<20)

	lineNum, failed := 0, 0
	for {
		if prompt {
			fmt.Fprint(s.config.Out, s.config.Prompt)
		}
		if ctx.Err() != nil || !scanner.Scan() {
			break
		}
		lineNum++

		stop, ok := s.handle(ctx, scanner.Text(), lineNum)
		if !ok {
			failed++
		}
		if stop {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading input: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if failed > 0 && !prompt {
		return fmt.Errorf("%d of %d lines failed", failed, lineNum)
	}
	return nil
}

// handle runs one line. lineNum is 0 for interactive input.
func (s *Shell) handle(ctx context.Context, line string, lineNum int) (stop, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return false, true
	}

	switch line {
	case "quit", "exit":
		return true, true
	case "history":
		for i, h := range s.history.Lines() {
			fmt.Fprintf(s.config.Out, "%4d  %s\n", i+1, h)
		}
		return false, true
	}
	s.history.Add(line)

	args, err := SplitArgs(line)
	if err == nil {
		err = s.config.Exec(ctx, args)
	}
	if err != nil {
		if lineNum > 0 {
			fmt.Fprintf(s.config.Err, "(error) line %d: %v\n", lineNum, err)
		} else {
			fmt.Fprintf(s.config.Err, "(error) %v\n", err)
		}
		return false, false
	}
	return false, true
}

// readInputWithHistory edits one line in raw mode. Up and down recall
// history, left, right, Home and End move the cursor, Ctrl+C discards the
// line and Ctrl+D on an empty line ends input.
func readInputWithHistory(reader *bufio.Reader, out io.Writer, prompt string, history *CommandHistory) (string, error) {
	var line []rune
	cursor := 0

	redraw := func() {
		fmt.Fprintf(out, "\r\033[K%s%s", prompt, string(line))
		if back := len(line) - cursor; back > 0 {
			fmt.Fprintf(out, "\033[%dD", back)
		}
	}
	replace := func(s string) {
		line = []rune(s)
		cursor = len(line)
		redraw()
	}

	for {
		r, _, err := reader.ReadRune()
		if err != nil {
			return "", err
		}

		switch r {
		case '\r', '\n':
			fmt.Fprint(out, "\r\n")
			history.ResetPosition()
			return string(line), nil

		case 3: // Ctrl+C
			fmt.Fprint(out, "^C\r\n")
			line, cursor = nil, 0
			history.ResetPosition()
			redraw()
			continue

		case 4: // Ctrl+D
			if len(line) == 0 {
				return "", io.EOF
			}
			continue

		case 127, '\b':
			if cursor > 0 {
				line = append(line[:cursor-1], line[cursor:]...)
				cursor--
				redraw()
			}
			continue

		case 27: // ESC
			seq, err := readEscape(reader)
			if err != nil {
				return "", err
			}
			switch seq {
			case "A":
				if history.Len() > 0 {
					replace(history.Previous())
				}
			case "B":
				replace(history.Next())
			case "C":
				if cursor < len(line) {
					cursor++
					fmt.Fprint(out, "\033[C")
				}
			case "D":
				if cursor > 0 {
					cursor--
					fmt.Fprint(out, "\033[D")
				}
			case "H":
				cursor = 0
				redraw()
			case "F":
				cursor = len(line)
				redraw()
			case "3~": // Delete
				if cursor < len(line) {
					line = append(line[:cursor], line[cursor+1:]...)
					redraw()
				}
			}
			continue
		}

		if r < 32 {
			continue
		}
		line = append(line[:cursor], append([]rune{r}, line[cursor:]...)...)
		cursor++
		redraw()
	}
}

// readEscape reads the rest of a CSI sequence after ESC and returns its
// body without the leading '['. Other escapes return "".
func readEscape(reader *bufio.Reader) (string, error) {
	b, err := reader.ReadByte()
	if err != nil {
		return "", err
	}
	if b != '[' {
		return "", nil
	}

	var seq []byte
	for {
		b, err := reader.ReadByte()
		if err != nil {
			return "", err
		}
		seq = append(seq, b)
		if b >= 0x40 && b <= 0x7e {
			return string(seq), nil
		}
	}
}
