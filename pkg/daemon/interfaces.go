package daemon

import (
	"fmt"

	"github.com/ishanjain/ift/pkg/netif"
)

// availableInterfaces lists every interface with its addresses, for error
// logs that need to show what a template could have matched
func availableInterfaces(snap netif.Snapshot) []string {
	var result []string
	for _, iface := range snap {
		if len(iface.Addrs) == 0 {
			result = append(result, fmt.Sprintf("%s: -", iface.Name))
			continue
		}
		for _, addr := range iface.Addrs {
			result = append(result, fmt.Sprintf("%s: %s", iface.Name, addr.Prefix()))
		}
	}
	return result
}
