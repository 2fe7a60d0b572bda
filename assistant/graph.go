package assistant

import (
	"fmt"

	"github.com/hupe1980/assistmesh/config"
	"github.com/hupe1980/assistmesh/core"
)

// ValidateGraph checks the declared team graph before anything is built.
// Members must exist, the graph must be acyclic and only the root may have a
// team. Agent names must be unique. Violations of the team graph are reported as *core.DelegationCycleError with the path
// of agent names leading to the offending edge.
func ValidateGraph(cfg config.AssistantConfig) error {
	agents := make(map[string]config.AgentConfig, len(cfg.Agents))
	for _, a := range cfg.Agents {
		if _, dup := agents[a.Name]; dup {
			return fmt.Errorf("assistant: agent %q is declared more than once", a.Name)
		}
		agents[a.Name] = a
	}

	if _, ok := agents[cfg.Root]; !ok {
		return fmt.Errorf("assistant: root agent %q is not declared", cfg.Root)
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(agents))

	var visit func(path []string) error
	visit = func(path []string) error {
		name := path[len(path)-1]
		state[name] = visiting

		for _, member := range agents[name].Team {
			next := append(append([]string(nil), path...), member)

			if _, ok := agents[member]; !ok {
				return fmt.Errorf("assistant: agent %q lists unknown team member %q", name, member)
			}

			switch state[member] {
			case visiting:
				return &core.DelegationCycleError{Path: next, Reason: "team graph contains a cycle"}
			case unvisited:
				if err := visit(next); err != nil {
					return err
				}
			}

			if len(path) > 1 {
				return &core.DelegationCycleError{Path: next, Reason: "team members cannot have teams of their own"}
			}
		}

		state[name] = done
		return nil
	}

	return visit([]string{cfg.Root})
}
