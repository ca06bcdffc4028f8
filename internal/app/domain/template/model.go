// Package template models the registered, immutable-once-registered
// description of a workflow's ordered stages.
package template

import "fmt"

// StageDescriptor describes one stage of a workflow template.
type StageDescriptor struct {
	Name            string
	Type            string
	DependsOn       []string
	ParallelAllowed bool
	OnFailureSkip   bool
	DefaultConfig   map[string]any
}

// Template is a registered, ordered description of a workflow's stages.
type Template struct {
	Name   string
	Stages []StageDescriptor
}

// StageNames returns the ordered stage names.
func (t Template) StageNames() []string {
	names := make([]string, len(t.Stages))
	for i, s := range t.Stages {
		names[i] = s.Name
	}
	return names
}

// Validate checks that every dependency name exists and that the stage
// graph is a DAG (no cycles). Returns a DependencyCycle-flavoured error on
// failure.
func (t Template) Validate() error {
	byName := make(map[string]StageDescriptor, len(t.Stages))
	for _, s := range t.Stages {
		if _, dup := byName[s.Name]; dup {
			return fmt.Errorf("template %q: duplicate stage name %q", t.Name, s.Name)
		}
		byName[s.Name] = s
	}
	for _, s := range t.Stages {
		for _, dep := range s.DependsOn {
			if _, ok := byName[dep]; !ok {
				return fmt.Errorf("template %q: stage %q depends on unknown stage %q", t.Name, s.Name, dep)
			}
		}
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(t.Stages))
	var visit func(name string) error
	visit = func(name string) error {
		switch color[name] {
		case black:
			return nil
		case gray:
			return fmt.Errorf("template %q: dependency cycle detected at stage %q", t.Name, name)
		}
		color[name] = gray
		for _, dep := range byName[name].DependsOn {
			if err := visit(dep); err != nil {
				return err
			}
		}
		color[name] = black
		return nil
	}
	for _, s := range t.Stages {
		if err := visit(s.Name); err != nil {
			return err
		}
	}
	return nil
}

// TopologicalOrder returns the stages ordered so that every stage follows
// all of its dependencies. Validate must be called first; behaviour on a
// cyclic template is undefined.
func (t Template) TopologicalOrder() []StageDescriptor {
	byName := make(map[string]StageDescriptor, len(t.Stages))
	for _, s := range t.Stages {
		byName[s.Name] = s
	}
	visited := make(map[string]bool, len(t.Stages))
	var order []StageDescriptor
	var visit func(name string)
	visit = func(name string) {
		if visited[name] {
			return
		}
		visited[name] = true
		for _, dep := range byName[name].DependsOn {
			visit(dep)
		}
		order = append(order, byName[name])
	}
	for _, s := range t.Stages {
		visit(s.Name)
	}
	return order
}
