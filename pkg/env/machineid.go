package env

import (
	"os"

	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"
)

// MachineID retrieves the unique ID identifying the machine.
// The host name is used where no machine ID is available (containers).
func MachineID() string {
	id, err := machineid.ID()
	if err == nil {
		return id
	}
	glog.Warningf("machine ID: %v", err)
	if host, err := os.Hostname(); err == nil {
		return host
	}
	return "unknown"
}
