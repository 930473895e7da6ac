package fleet

import "hash/fnv"

// AssignGateway picks the gateway a device should attach to: its preferred
// gateway when that gateway is in the running set, otherwise a stable hash
// of the device name modulo the running set — carried verbatim from
// wasmbed-device-controller's `hash(device_name) % len(active_gateways)`
// assignment (E5's determinism property: the same device name always maps
// to the same index for a fixed running set).
func AssignGateway(deviceName, preferredGateway string, runningGateways []string) (string, bool) {
	if len(runningGateways) == 0 {
		return "", false
	}

	if preferredGateway != "" {
		for _, g := range runningGateways {
			if g == preferredGateway {
				return g, true
			}
		}
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(deviceName))
	idx := h.Sum64() % uint64(len(runningGateways))
	return runningGateways[idx], true
}
