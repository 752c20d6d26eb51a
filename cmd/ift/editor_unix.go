//go:build !windows

package main

import (
	"fmt"
	"io"
	"os"
	"os/exec"
)

// editorCommand picks $EDITOR, then $VISUAL, then vi or vim, and wraps it in
// sudo when the config is not writable by the current user.
func editorCommand(out io.Writer, configPath string) *exec.Cmd {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		// Try vi first (works in Alpine/Docker), fallback to vim
		if _, err := exec.LookPath("vi"); err == nil {
			editor = "vi"
		} else {
			editor = "vim"
		}
	}

	needSudo := os.Geteuid() != 0 && !writable(configPath)
	if needSudo {
		fmt.Fprintf(out, "Opening %s with sudo %s...\n", configPath, editor)
		return exec.Command("sudo", editor, configPath)
	}
	fmt.Fprintf(out, "Opening %s with %s...\n", configPath, editor)
	return exec.Command(editor, configPath)
}

func writable(path string) bool {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return false
	}
	f.Close()
	return true
}
