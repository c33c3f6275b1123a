package main

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/creack/pty"
	"golang.org/x/term"
)

// runShell drops into an interactive adb shell on the device, with the
// local terminal in raw mode so curses tools on the phone work.
func runShell(args []string) {
	var serial string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--device", "-d", "-s":
			if i+1 < len(args) {
				i++
				serial = args[i]
			}
		case "--help", "-h":
			fmt.Println(`Usage: phone-pilot shell [-d <serial>]

Open an interactive adb shell. With multiple devices connected the
serial is required (see: phone-pilot devices).`)
			return
		}
	}

	if _, err := exec.LookPath("adb"); err != nil {
		fmt.Fprintln(os.Stderr, "Error: adb not found in PATH")
		os.Exit(1)
	}

	cmdArgs := []string{}
	if serial != "" {
		cmdArgs = append(cmdArgs, "-s", serial)
	}
	cmdArgs = append(cmdArgs, "shell")

	cmd := exec.Command("adb", cmdArgs...)
	ptmx, err := pty.Start(cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to start shell: %v\n", err)
		os.Exit(1)
	}
	defer ptmx.Close()

	// Keep the remote shell's window size in sync with ours.
	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)
	go func() {
		for range winch {
			pty.InheritSize(os.Stdin, ptmx)
		}
	}()
	winch <- syscall.SIGWINCH
	defer func() { signal.Stop(winch); close(winch) }()

	oldState, err := term.MakeRaw(int(os.Stdin.Fd()))
	if err == nil {
		defer term.Restore(int(os.Stdin.Fd()), oldState)
	}

	go io.Copy(ptmx, os.Stdin)
	io.Copy(os.Stdout, ptmx)

	cmd.Wait()
}
