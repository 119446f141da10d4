// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The Dodobot serialbridge Authors

package mqttbus

import (
	"fmt"
	"os"

	"github.com/denisbrodbeck/machineid"
)

const appID = "serialbridge"

// DefaultClientID derives a stable client ID from the machine ID, falling
// back to the host name and process ID.
func DefaultClientID() string {
	id, err := machineid.ProtectedID(appID)
	if err == nil && len(id) >= 12 {
		return appID + "-" + id[:12]
	}
	host, _ := os.Hostname()
	return fmt.Sprintf("%s-%s-%d", appID, host, os.Getpid())
}
