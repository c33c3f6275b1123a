package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/chenhg5/phone-pilot/device"
)

// adbDevice is one line of `adb devices -l` output.
type adbDevice struct {
	Serial string `json:"serial"`
	State  string `json:"state"`
	Model  string `json:"model,omitempty"`
	Alias  string `json:"alias,omitempty"`
}

func runDevices(args []string) {
	var asJSON, pick bool
	var aliasArgs []string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--json":
			asJSON = true
		case "--pick":
			pick = true
		case "alias":
			aliasArgs = args[i+1:]
			i = len(args)
		case "--help", "-h":
			printDevicesUsage()
			return
		}
	}

	aliases := openAliasStore()

	if len(aliasArgs) > 0 {
		runDeviceAlias(aliases, aliasArgs)
		return
	}

	devices, err := listAdbDevices(aliases)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(devices) == 0 {
		fmt.Println("No devices found. Connect a phone via USB (with USB debugging enabled)")
		fmt.Println("or pair wirelessly with: phone-pilot pair")
		return
	}

	if pick {
		serial, err := pickDevice(devices)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(serial)
		return
	}

	if asJSON {
		json.NewEncoder(os.Stdout).Encode(devices)
		return
	}

	fmt.Printf("Connected devices (%d):\n\n", len(devices))
	for _, d := range devices {
		name := d.Model
		if d.Alias != "" {
			name = d.Alias
		}
		status := ""
		if d.State != "device" {
			status = "  [" + d.State + "]"
		}
		fmt.Printf("  %-24s %s%s\n", d.Serial, name, status)
	}
}

func runDeviceAlias(aliases *device.AliasStore, args []string) {
	switch len(args) {
	case 1:
		if err := aliases.Delete(args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Alias for %s removed.\n", args[0])
	case 2:
		if err := aliases.Set(args[0], args[1]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s → %s\n", args[0], args[1])
	default:
		fmt.Fprintln(os.Stderr, "Usage: phone-pilot devices alias <serial> [name]")
		os.Exit(1)
	}
}

func openAliasStore() *device.AliasStore {
	dataDir := ".phone-pilot"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".phone-pilot")
	}
	s, err := device.NewAliasStore(dataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return s
}

// listAdbDevices parses `adb devices -l`.
func listAdbDevices(aliases *device.AliasStore) ([]adbDevice, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, "adb", "devices", "-l").Output()
	if err != nil {
		return nil, fmt.Errorf("adb not available: %w", err)
	}

	var devices []adbDevice
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "List of devices") || strings.HasPrefix(line, "*") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		d := adbDevice{Serial: fields[0], State: fields[1]}
		for _, f := range fields[2:] {
			if v, ok := strings.CutPrefix(f, "model:"); ok {
				d.Model = v
			}
		}
		if aliases != nil {
			d.Alias = aliases.Get(d.Serial)
		}
		devices = append(devices, d)
	}
	return devices, nil
}

func printDevicesUsage() {
	fmt.Println(`Usage: phone-pilot devices [options]
       phone-pilot devices alias <serial> [name]

List devices known to adb, or manage display aliases.

Options:
  --json    Print machine-readable output
  --pick    Choose a device interactively and print its serial
  -h, --help

Examples:
  phone-pilot devices
  phone-pilot devices --pick
  phone-pilot devices alias emulator-5554 "work phone"`)
}
