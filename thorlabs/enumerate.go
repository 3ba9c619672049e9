package thorlabs

import (
	"sort"
	"strings"

	"go.bug.st/serial/enumerator"
)

// Thorlabs APT controllers enumerate with the FTDI vendor ID and a Thorlabs product ID
const (
	aptVID = "0403"
	aptPID = "faf0"
)

// controller families by the first two digits of their serial number
var serialPrefixes = map[string]string{
	"26": "KST101",
	"27": "KDC101",
	"28": "KBD101",
	"45": "LTS",
	"80": "TST001",
	"83": "TDC001",
}

// Device is a Kinesis controller found on the USB bus
type Device struct {
	Serial string
	Port   string
	Model  string
}

// ModelFromSerial returns the controller family of a serial number, or "unknown"
func ModelFromSerial(sn string) string {
	if len(sn) >= 2 {
		if m, ok := serialPrefixes[sn[:2]]; ok {
			return m
		}
	}
	return "unknown"
}

// ListDevices returns the Kinesis controllers attached to the computer, sorted by serial number
func ListDevices() ([]Device, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, err
	}
	return filterPorts(ports), nil
}

func filterPorts(ports []*enumerator.PortDetails) []Device {
	var out []Device
	for _, p := range ports {
		if !p.IsUSB || !strings.EqualFold(p.VID, aptVID) || !strings.EqualFold(p.PID, aptPID) {
			continue
		}
		out = append(out, Device{Serial: p.SerialNumber, Port: p.Name, Model: ModelFromSerial(p.SerialNumber)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Serial < out[j].Serial })
	return out
}
