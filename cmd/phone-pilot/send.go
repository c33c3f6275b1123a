package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

func runSend(args []string) {
	var device, dataDir string
	var wait, abort bool

	var positional []string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--device", "-d":
			if i+1 < len(args) {
				i++
				device = args[i]
			}
		case "--wait", "-w":
			wait = true
		case "--abort":
			abort = true
		case "--data-dir":
			if i+1 < len(args) {
				i++
				dataDir = args[i]
			}
		case "--help", "-h":
			printSendUsage()
			return
		default:
			positional = append(positional, args[i])
		}
	}

	sockPath := resolveSocketPath(dataDir)
	if _, err := os.Stat(sockPath); os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Error: phone-pilot is not running (socket not found: %s)\n", sockPath)
		os.Exit(1)
	}

	if abort {
		payload, _ := json.Marshal(map[string]string{"device": device})
		mustPost(sockPath, "/abort", payload)
		fmt.Println("Abort requested.")
		return
	}

	task := strings.Join(positional, " ")
	if task == "" {
		fmt.Fprintln(os.Stderr, "Error: task is required")
		printSendUsage()
		os.Exit(1)
	}

	payload, _ := json.Marshal(map[string]any{
		"device": device,
		"task":   task,
		"wait":   wait,
	})

	body := mustPost(sockPath, "/run", payload)

	var result map[string]any
	json.Unmarshal(body, &result)
	if wait {
		fmt.Printf("Status: %v\n%v\n", result["status"], result["message"])
	} else {
		fmt.Printf("Task started on device %v.\n", result["device"])
	}
}

func resolveSocketPath(dataDir string) string {
	if dataDir != "" {
		return filepath.Join(dataDir, "run", "api.sock")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".phone-pilot", "run", "api.sock")
	}
	return filepath.Join(".phone-pilot", "run", "api.sock")
}

func socketClient(sockPath string) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: func(_ context.Context, _, _ string) (net.Conn, error) {
				return net.Dial("unix", sockPath)
			},
		},
	}
}

func apiPost(sockPath, path string, payload []byte) (*http.Response, error) {
	return socketClient(sockPath).Post("http://unix"+path, "application/json", bytes.NewReader(payload))
}

// mustPost posts and exits the process on any transport or API error.
func mustPost(sockPath, path string, payload []byte) []byte {
	resp, err := apiPost(sockPath, path, payload)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Error: %s\n", strings.TrimSpace(string(body)))
		os.Exit(1)
	}
	return body
}

func printSendUsage() {
	fmt.Println(`Usage: phone-pilot send [options] <task>

Run a task on a connected device.

Options:
  -d, --device <name>      Target device (optional if only one device)
  -w, --wait               Block until the task finishes
      --abort              Abort the running task instead of starting one
      --data-dir <path>    Data directory (default: ~/.phone-pilot)
  -h, --help               Show this help

Examples:
  phone-pilot send "Open Settings and turn on dark mode"
  phone-pilot send -d pixel -w "Check the weather for tomorrow"
  phone-pilot send --abort`)
}
