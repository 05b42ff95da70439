package domain

import "strings"

// ActionKind names one of the supported side-effecting operations.
type ActionKind string

const (
	ActionNotify     ActionKind = "notify"
	ActionShell      ActionKind = "shell"
	ActionListFiles  ActionKind = "list_files"
	ActionMkdir      ActionKind = "mkdir"
	ActionRunCommand ActionKind = "run_command"
)

// ActionKinds lists every known kind in declaration order.
func ActionKinds() []ActionKind {
	return []ActionKind{ActionNotify, ActionShell, ActionListFiles, ActionMkdir, ActionRunCommand}
}

// Known reports whether k belongs to the closed set of action kinds.
func (k ActionKind) Known() bool {
	for _, known := range ActionKinds() {
		if k == known {
			return true
		}
	}
	return false
}

// ActionSpec is one entry of a service's action list. Immutable once loaded.
type ActionSpec struct {
	Kind    ActionKind
	Message string // notify
	Cmd     string // shell
	Command string // run_command, shell fallback
	Path    string // mkdir, list_files
}

// ShellCommand returns cmd, falling back to command when cmd is empty.
func (a ActionSpec) ShellCommand() string {
	if strings.TrimSpace(a.Cmd) != "" {
		return a.Cmd
	}
	return a.Command
}
