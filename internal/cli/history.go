package cli

// CommandHistory keeps the most recent shell lines for arrow-key recall
type CommandHistory struct {
	commands []string
	position int
	maxSize  int
}

// NewCommandHistory creates a history holding at most maxSize lines
func NewCommandHistory(maxSize int) *CommandHistory {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &CommandHistory{
		commands: make([]string, 0, maxSize),
		maxSize:  maxSize,
	}
}

func (h *CommandHistory) Len() int {
	return len(h.commands)
}

// Add records a line. Empty lines and repeats of the newest line are skipped.
func (h *CommandHistory) Add(line string) {
	if line == "" || (len(h.commands) > 0 && h.commands[len(h.commands)-1] == line) {
		h.position = len(h.commands)
		return
	}

	h.commands = append(h.commands, line)
	if len(h.commands) > h.maxSize {
		h.commands = h.commands[1:]
	}
	h.position = len(h.commands)
}

// Previous steps back one line. At the oldest line it keeps returning it.
func (h *CommandHistory) Previous() string {
	if len(h.commands) == 0 {
		return ""
	}
	if h.position > 0 {
		h.position--
	}
	return h.commands[h.position]
}

// Next steps forward one line and returns "" once past the newest
func (h *CommandHistory) Next() string {
	if h.position < len(h.commands)-1 {
		h.position++
		return h.commands[h.position]
	}
	h.position = len(h.commands)
	return ""
}

// ResetPosition moves past the newest line
func (h *CommandHistory) ResetPosition() {
	h.position = len(h.commands)
}

// Lines returns a copy of the recorded lines, oldest first
func (h *CommandHistory) Lines() []string {
	return append([]string(nil), h.commands...)
}
