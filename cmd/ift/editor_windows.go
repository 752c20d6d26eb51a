//go:build windows

package main

import (
	"fmt"
	"io"
	"os"
	"os/exec"
)

// editorCommand uses $EDITOR when set and notepad otherwise
func editorCommand(out io.Writer, configPath string) *exec.Cmd {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		// notepad is always available
		editor = "notepad"
	}
	fmt.Fprintf(out, "Opening %s with %s...\n", configPath, editor)
	return exec.Command(editor, configPath)
}
