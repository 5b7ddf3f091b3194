package transports

import (
	"fmt"
	"sort"

	"go.bug.st/serial/enumerator"
)

// PortInfo describes one serial port present on the host.
type PortInfo struct {
	Name         string `json:"name"`
	IsUSB        bool   `json:"is_usb"`
	VID          string `json:"vid,omitempty"`
	PID          string `json:"pid,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
	Product      string `json:"product,omitempty"`
}

// ListPorts enumerates the host's serial ports, sorted by name.
func ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}

	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		ports = append(ports, PortInfo{
			Name:         d.Name,
			IsUSB:        d.IsUSB,
			VID:          d.VID,
			PID:          d.PID,
			SerialNumber: d.SerialNumber,
			Product:      d.Product,
		})
	}
	sort.Slice(ports, func(i, j int) bool { return ports[i].Name < ports[j].Name })
	return ports, nil
}

// Targets returns the connection targets d can dial: "Mock", then
// "Simulator" when an emulator is configured, then the host's serial ports.
func (d Dialer) Targets() []string {
	targets := []string{TargetMock}
	if d.Emulator != nil {
		targets = append(targets, TargetSimulator)
	}
	ports, err := ListPorts()
	if err != nil {
		return targets
	}
	for _, p := range ports {
		targets = append(targets, p.Name)
	}
	return targets
}

// Targets returns the targets reachable with the default Dialer.
func Targets() []string {
	return Dialer{}.Targets()
}
