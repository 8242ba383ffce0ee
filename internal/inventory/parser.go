package inventory

import (
	"fmt"
	"strings"

	"github.com/archellir/denshimon-sub006/internal/mesh"
)

// Dependency is one entry of a service's depends-on annotation.
type Dependency struct {
	Namespace string
	Name      string
	Protocol  mesh.Protocol
}

// ID returns the mesh service id of the dependency target.
func (d Dependency) ID() string {
	return serviceID(d.Namespace, d.Name)
}

// ParseDependencies parses a comma separated dependency list of the form
// "[namespace/]name[:protocol]". Targets without a namespace resolve to
// defaultNamespace and entries without a protocol use HTTP. Protocol names
// are matched case-insensitively.
func ParseDependencies(raw, defaultNamespace string) ([]Dependency, error) {
	deps := []Dependency{}
	seen := map[string]bool{}

	for index, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		target, protocolName, hasProtocol := strings.Cut(entry, ":")
		protocol := mesh.ProtocolHTTP
		if hasProtocol {
			parsed, ok := parseProtocol(protocolName)
			if !ok {
				return nil, fmt.Errorf("entry %d %q: unknown protocol %q", index, entry, protocolName)
			}
			protocol = parsed
		}

		namespace, name, hasNamespace := strings.Cut(strings.TrimSpace(target), "/")
		if !hasNamespace {
			namespace, name = defaultNamespace, namespace
		}
		namespace = strings.TrimSpace(namespace)
		name = strings.TrimSpace(name)
		if namespace == "" || name == "" || strings.Contains(name, "/") {
			return nil, fmt.Errorf("entry %d %q: invalid target", index, entry)
		}

		dep := Dependency{Namespace: namespace, Name: name, Protocol: protocol}
		key := dep.ID() + ":" + string(protocol)
		if seen[key] {
			continue
		}
		seen[key] = true
		deps = append(deps, dep)
	}

	return deps, nil
}

func parseProtocol(raw string) (mesh.Protocol, bool) {
	for _, protocol := range []mesh.Protocol{mesh.ProtocolHTTP, mesh.ProtocolGRPC, mesh.ProtocolTCP, mesh.ProtocolUDP} {
		if strings.EqualFold(strings.TrimSpace(raw), string(protocol)) {
			return protocol, true
		}
	}
	return "", false
}

func parseKind(raw string) (mesh.Kind, bool) {
	kind := mesh.Kind(strings.ToLower(strings.TrimSpace(raw)))
	if kind == "" {
		return mesh.KindOther, true
	}
	if !kind.Valid() {
		return mesh.KindOther, false
	}
	return kind, true
}

func parseLoadBalancing(raw string) (mesh.LoadBalancing, bool) {
	switch mesh.LoadBalancing(strings.ToLower(strings.TrimSpace(raw))) {
	case "":
		return mesh.LoadBalancingRoundRobin, true
	case mesh.LoadBalancingRoundRobin:
		return mesh.LoadBalancingRoundRobin, true
	case mesh.LoadBalancingLeastConn:
		return mesh.LoadBalancingLeastConn, true
	case mesh.LoadBalancingRandom:
		return mesh.LoadBalancingRandom, true
	case mesh.LoadBalancingWeighted:
		return mesh.LoadBalancingWeighted, true
	default:
		return mesh.LoadBalancingRoundRobin, false
	}
}

// ParseBool reports whether an annotation or environment value reads as true.
func ParseBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "t", "true", "y", "yes", "on":
		return true
	default:
		return false
	}
}

func serviceID(namespace, name string) string {
	return namespace + "/" + name
}
