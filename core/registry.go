package core

import "fmt"

// DeviceFactory creates a Device from config options.
type DeviceFactory func(opts map[string]any) (Device, error)

var deviceFactories = make(map[string]DeviceFactory)

// RegisterDevice registers a factory under a connection kind ("adb", "remote").
func RegisterDevice(kind string, factory DeviceFactory) {
	deviceFactories[kind] = factory
}

// CreateDevice builds a device for the given connection kind.
func CreateDevice(kind string, opts map[string]any) (Device, error) {
	f, ok := deviceFactories[kind]
	if !ok {
		available := make([]string, 0, len(deviceFactories))
		for k := range deviceFactories {
			available = append(available, k)
		}
		return nil, fmt.Errorf("unknown device kind %q, available: %v", kind, available)
	}
	return f(opts)
}
