package remote

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chenhg5/phone-pilot/core"
)

func init() {
	core.RegisterDevice("remote", New)
}

// Device proxies the device capability to a companion agent on another
// host over a websocket, one JSON request/response pair per call. The
// engine drives it strictly sequentially, so a single in-flight request
// guarded by a mutex is sufficient.
type Device struct {
	serial string
	url    string

	mu     sync.Mutex
	conn   *websocket.Conn
	nextID int64
}

type request struct {
	ID     int64          `json:"id"`
	Method string         `json:"method"`
	Params map[string]any `json:"params,omitempty"`
}

type response struct {
	ID     int64          `json:"id"`
	Result map[string]any `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`
}

func New(opts map[string]any) (core.Device, error) {
	url, _ := opts["url"].(string)
	if url == "" {
		return nil, fmt.Errorf("remote: url is required")
	}
	serial, _ := opts["serial"].(string)
	if serial == "" {
		serial = url
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("remote: dial %s: %w", url, err)
	}

	return &Device{serial: serial, url: url, conn: conn}, nil
}

func (d *Device) Serial() string { return d.serial }

func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return nil
	}
	err := d.conn.Close()
	d.conn = nil
	return err
}

func (d *Device) call(ctx context.Context, method string, params map[string]any) (map[string]any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn == nil {
		return nil, fmt.Errorf("remote: connection closed")
	}

	d.nextID++
	req := request{ID: d.nextID, Method: method, Params: params}

	deadline := time.Now().Add(30 * time.Second)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	d.conn.SetWriteDeadline(deadline)
	d.conn.SetReadDeadline(deadline)

	if err := d.conn.WriteJSON(req); err != nil {
		return nil, fmt.Errorf("remote: write %s: %w", method, err)
	}

	// Responses arrive in request order; skip any with stale ids.
	for {
		var resp response
		if err := d.conn.ReadJSON(&resp); err != nil {
			return nil, fmt.Errorf("remote: read %s: %w", method, err)
		}
		if resp.ID != req.ID {
			continue
		}
		if resp.Error != "" {
			return nil, fmt.Errorf("remote: %s: %s", method, resp.Error)
		}
		return resp.Result, nil
	}
}

func (d *Device) GetScreenshot(ctx context.Context) (core.Screenshot, error) {
	result, err := d.call(ctx, "screenshot", nil)
	if err != nil {
		return core.Screenshot{}, err
	}
	width, _ := result["width"].(float64)
	height, _ := result["height"].(float64)
	data, _ := result["base64_data"].(string)
	if data == "" {
		return core.Screenshot{}, fmt.Errorf("remote: screenshot response missing data")
	}
	return core.Screenshot{Width: int(width), Height: int(height), Base64Data: data}, nil
}

func (d *Device) GetCurrentApp(ctx context.Context) (core.AppInfo, error) {
	result, err := d.call(ctx, "current_app", nil)
	if err != nil {
		return core.AppInfo{}, err
	}
	pkg, _ := result["package"].(string)
	activity, _ := result["activity"].(string)
	return core.AppInfo{PackageName: pkg, ActivityName: activity}, nil
}

func (d *Device) Execute(ctx context.Context, action core.ParsedAction, width, height int) (core.ActionResult, error) {
	result, err := d.call(ctx, "execute", map[string]any{
		"action": map[string]any(action),
		"width":  width,
		"height": height,
	})
	if err != nil {
		return core.ActionResult{}, err
	}
	success, _ := result["success"].(bool)
	shouldFinish, _ := result["should_finish"].(bool)
	message, _ := result["message"].(string)
	return core.ActionResult{Success: success, ShouldFinish: shouldFinish, Message: message}, nil
}
