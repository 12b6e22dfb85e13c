package watch

import (
	"github.com/pkg/errors"
)

// StartOrderResolver orders targets so that dependencies are watched (and
// started) before the targets that depend on them.
type StartOrderResolver interface {
	AddNode(name string, dependencies []string)
	Resolve() ([]string, error)
}

type startOrderResolver struct {
	graph map[string][]string
}

func NewStartOrderResolver() StartOrderResolver {
	return &startOrderResolver{
		graph: make(map[string][]string),
	}
}

func (r *startOrderResolver) AddNode(name string, dependencies []string) {
	r.graph[name] = dependencies
}

func (r *startOrderResolver) Resolve() ([]string, error) {
	const (
		unvisited = iota
		visiting
		done
	)

	state := make(map[string]int)
	var order []string

	var visit func(string) error
	visit = func(name string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			return errors.Errorf("dependency cycle involving target %s", name)
		}
		state[name] = visiting

		for _, dep := range r.graph[name] {
			if err := visit(dep); err != nil {
				return err
			}
		}

		state[name] = done
		order = append(order, name)
		return nil
	}

	for name := range r.graph {
		if err := visit(name); err != nil {
			return nil, err
		}
	}

	return order, nil
}
