package adb

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image/png"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/chenhg5/phone-pilot/core"
)

func init() {
	core.RegisterDevice("adb", New)
}

// Device drives a locally connected phone through the adb binary (USB or
// adb-over-WiFi serial).
type Device struct {
	serial  string
	adbPath string
}

func New(opts map[string]any) (core.Device, error) {
	serial, _ := opts["serial"].(string)
	if serial == "" {
		return nil, fmt.Errorf("adb: serial is required")
	}
	adbPath, _ := opts["adb_path"].(string)
	if adbPath == "" {
		adbPath = "adb"
	}
	if _, err := exec.LookPath(adbPath); err != nil {
		return nil, fmt.Errorf("adb: %q not found in PATH", adbPath)
	}

	d := &Device{serial: serial, adbPath: adbPath}
	if err := d.checkAvailable(context.Background()); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Device) Serial() string { return d.serial }

func (d *Device) Close() error { return nil }

// checkAvailable verifies the device answers to adb get-state.
func (d *Device) checkAvailable(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	out, err := d.run(ctx, "get-state")
	if err != nil {
		return fmt.Errorf("adb: device %s not available: %w", d.serial, err)
	}
	if state := strings.TrimSpace(out); state != "device" {
		return fmt.Errorf("adb: device %s not available (state: %s)", d.serial, state)
	}
	return nil
}

// Model returns the device model via getprop, underscores for spaces.
func (d *Device) Model(ctx context.Context) string {
	out, err := d.run(ctx, "shell", "getprop", "ro.product.model")
	if err != nil {
		return ""
	}
	return strings.ReplaceAll(strings.TrimSpace(out), " ", "_")
}

func (d *Device) GetScreenshot(ctx context.Context) (core.Screenshot, error) {
	raw, err := d.runRaw(ctx, "exec-out", "screencap", "-p")
	if err != nil {
		return core.Screenshot{}, fmt.Errorf("adb: screencap: %w", err)
	}

	cfg, err := png.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return core.Screenshot{}, fmt.Errorf("adb: decode screenshot: %w", err)
	}

	return core.Screenshot{
		Width:      cfg.Width,
		Height:     cfg.Height,
		Base64Data: base64.StdEncoding.EncodeToString(raw),
	}, nil
}

var resumedActivityRe = regexp.MustCompile(`mResumedActivity.*?([\w.]+)/([\w.$]+)`)

func (d *Device) GetCurrentApp(ctx context.Context) (core.AppInfo, error) {
	out, err := d.run(ctx, "shell", "dumpsys", "activity", "activities")
	if err != nil {
		return core.AppInfo{}, fmt.Errorf("adb: dumpsys: %w", err)
	}
	if m := resumedActivityRe.FindStringSubmatch(out); m != nil {
		return core.AppInfo{PackageName: m[1], ActivityName: m[2]}, nil
	}
	return core.AppInfo{PackageName: "unknown"}, nil
}

// Execute performs a parsed action against a screen of the given pixel
// dimensions. Finish actions are acknowledged without touching the device.
func (d *Device) Execute(ctx context.Context, action core.ParsedAction, width, height int) (core.ActionResult, error) {
	if action.IsFinish() {
		return core.ActionResult{Success: true, ShouldFinish: true, Message: action.Message()}, nil
	}

	switch strings.ToLower(action.Name()) {
	case "tap":
		x, y, err := coordPair(action["element"])
		if err != nil {
			return core.ActionResult{}, fmt.Errorf("tap: %w", err)
		}
		return d.shellAction(ctx, "input", "tap", itoa(x), itoa(y))

	case "swipe":
		x1, y1, err := coordPair(action["start"])
		if err != nil {
			return core.ActionResult{}, fmt.Errorf("swipe start: %w", err)
		}
		x2, y2, err := coordPair(action["end"])
		if err != nil {
			return core.ActionResult{}, fmt.Errorf("swipe end: %w", err)
		}
		return d.shellAction(ctx, "input", "swipe", itoa(x1), itoa(y1), itoa(x2), itoa(y2), "300")

	case "type":
		text, _ := action["text"].(string)
		return d.shellAction(ctx, "input", "text", escapeShellText(text))

	case "scroll":
		direction, _ := action["direction"].(string)
		x1, y1, x2, y2 := scrollCoords(direction, width, height)
		return d.shellAction(ctx, "input", "swipe", itoa(x1), itoa(y1), itoa(x2), itoa(y2), "300")

	case "back":
		return d.shellAction(ctx, "input", "keyevent", "4")

	case "home":
		return d.shellAction(ctx, "input", "keyevent", "3")

	case "launch":
		app, _ := action["app"].(string)
		if app == "" {
			return core.ActionResult{}, fmt.Errorf("launch: app is required")
		}
		return d.shellAction(ctx, "monkey", "-p", app, "-c", "android.intent.category.LAUNCHER", "1")

	case "wait":
		select {
		case <-time.After(2 * time.Second):
		case <-ctx.Done():
			return core.ActionResult{}, ctx.Err()
		}
		return core.ActionResult{Success: true}, nil

	default:
		return core.ActionResult{Success: false, Message: fmt.Sprintf("unsupported action %q", action.Name())}, nil
	}
}

func (d *Device) shellAction(ctx context.Context, args ...string) (core.ActionResult, error) {
	if _, err := d.run(ctx, append([]string{"shell"}, args...)...); err != nil {
		return core.ActionResult{}, err
	}
	// Give the UI a moment to settle before the next screenshot.
	select {
	case <-time.After(500 * time.Millisecond):
	case <-ctx.Done():
	}
	return core.ActionResult{Success: true}, nil
}

func (d *Device) run(ctx context.Context, args ...string) (string, error) {
	out, err := d.runRaw(ctx, args...)
	return string(out), err
}

func (d *Device) runRaw(ctx context.Context, args ...string) ([]byte, error) {
	full := append([]string{"-s", d.serial}, args...)
	cmd := exec.CommandContext(ctx, d.adbPath, full...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("adb %s: %s", strings.Join(args, " "), msg)
	}
	return stdout.Bytes(), nil
}

// coordPair reads an [x, y] parameter as produced by the action parser.
func coordPair(v any) (int, int, error) {
	arr, ok := v.([]any)
	if !ok || len(arr) != 2 {
		return 0, 0, fmt.Errorf("expected [x, y] coordinate pair, got %v", v)
	}
	x, xok := arr[0].(float64)
	y, yok := arr[1].(float64)
	if !xok || !yok {
		return 0, 0, fmt.Errorf("coordinates must be numbers, got %v", arr)
	}
	return int(x), int(y), nil
}

// scrollCoords maps a scroll direction to a swipe gesture. Scrolling down
// means revealing content below, so the finger moves up.
func scrollCoords(direction string, width, height int) (int, int, int, int) {
	cx, cy := width/2, height/2
	switch strings.ToLower(direction) {
	case "up":
		return cx, height / 4, cx, height * 3 / 4
	case "left":
		return width / 4, cy, width * 3 / 4, cy
	case "right":
		return width * 3 / 4, cy, width / 4, cy
	default: // "down"
		return cx, height * 3 / 4, cx, height / 4
	}
}

func escapeShellText(s string) string {
	s = strings.ReplaceAll(s, " ", "%s")
	var out strings.Builder
	for _, r := range s {
		switch r {
		case '\'', '"', '`', '\\', '&', '|', ';', '(', ')', '<', '>', '$':
			out.WriteByte('\\')
		}
		out.WriteRune(r)
	}
	return out.String()
}

func itoa(n int) string { return fmt.Sprintf("%d", n) }
