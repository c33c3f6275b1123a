package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/mdp/qrterminal/v3"
)

// pairingServiceRe matches a `_adb-tls-pairing._tcp` line of
// `adb mdns services` and captures the host:port.
var pairingServiceRe = regexp.MustCompile(`_adb-tls-pairing\._tcp\.?\s+(\S+:\d+)`)

func runPair(args []string) {
	var addr, code string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--addr":
			if i+1 < len(args) {
				i++
				addr = args[i]
			}
		case "--code":
			if i+1 < len(args) {
				i++
				code = args[i]
			}
		case "--help", "-h":
			printPairUsage()
			return
		}
	}

	if _, err := exec.LookPath("adb"); err != nil {
		fmt.Fprintln(os.Stderr, "Error: adb not found in PATH")
		os.Exit(1)
	}

	// Manual mode: address and code read from the phone's pairing dialog.
	if addr != "" {
		if code == "" {
			fmt.Fprintln(os.Stderr, "Error: --code is required with --addr")
			os.Exit(1)
		}
		pairWith(addr, code)
		return
	}

	// QR mode: the phone scans the code from Settings → Developer options →
	// Wireless debugging → Pair device with QR code.
	name := "phone-pilot-" + randomDigits(4)
	password := randomDigits(6)

	fmt.Println("Scan this QR code from your phone's Wireless debugging screen:")
	fmt.Println()
	qrterminal.GenerateWithConfig(fmt.Sprintf("WIFI:T:ADB;S:%s;P:%s;;", name, password), qrterminal.Config{
		Level:     qrterminal.M,
		Writer:    os.Stdout,
		BlackChar: qrterminal.BLACK,
		WhiteChar: qrterminal.WHITE,
		QuietZone: 1,
	})
	fmt.Println()
	fmt.Println("Waiting for the phone to appear on the network (2 min timeout)...")

	addr, err := waitForPairingService(2 * time.Minute)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fmt.Fprintln(os.Stderr, "You can pair manually: phone-pilot pair --addr <host:port> --code <code>")
		os.Exit(1)
	}

	pairWith(addr, password)
}

// waitForPairingService polls adb's mdns discovery until a pairing service
// shows up.
func waitForPairingService(timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		out, err := exec.CommandContext(ctx, "adb", "mdns", "services").Output()
		cancel()
		if err == nil {
			if m := pairingServiceRe.FindStringSubmatch(string(out)); m != nil {
				return m[1], nil
			}
		}
		time.Sleep(time.Second)
	}
	return "", fmt.Errorf("no pairing service found (is Wireless debugging enabled?)")
}

func pairWith(addr, code string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, "adb", "pair", addr, code).CombinedOutput()
	text := strings.TrimSpace(string(out))
	if err != nil || !strings.Contains(text, "Successfully paired") {
		fmt.Fprintf(os.Stderr, "Error: pairing failed: %s\n", text)
		os.Exit(1)
	}
	fmt.Println(text)
	fmt.Println()
	fmt.Println("Paired. Connect with: adb connect <host:port> (port shown on the Wireless debugging screen)")
	fmt.Println("Then list devices with: phone-pilot devices")
}

func randomDigits(n int) string {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		d, _ := rand.Int(rand.Reader, big.NewInt(10))
		fmt.Fprintf(&sb, "%d", d.Int64())
	}
	return sb.String()
}

func printPairUsage() {
	fmt.Println(`Usage: phone-pilot pair [options]

Pair with a phone over WiFi (Android 11+ wireless debugging).
Without options, shows a QR code to scan from the phone.

Options:
  --addr <host:port>   Pairing address shown on the phone
  --code <code>        Pairing code shown on the phone
  -h, --help           Show this help

Examples:
  phone-pilot pair
  phone-pilot pair --addr 192.168.1.23:40123 --code 123456`)
}
