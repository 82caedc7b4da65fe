// Package sched runs a dependency graph of named tasks on a bounded worker
// pool. Each task runs at most once; its result is memoized and handed to
// every dependent. A single failure cancels the whole run.
package sched

import (
	"context"
	"sort"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/juju/errors"
	"golang.org/x/sync/errgroup"
)

// RunFn computes one task. deps maps dependency names to their results.
type RunFn func(ctx context.Context, deps map[string]interface{}) (interface{}, error)

// Task is one named node of the graph.
type Task struct {
	Name string
	Deps []string
	Run  RunFn
}

// Graph collects tasks before execution.
type Graph struct {
	tasks map[string]Task
	order []string
}

// NewGraph ...
func NewGraph() *Graph {
	return &Graph{tasks: map[string]Task{}}
}

// Add registers a task. Registering one name twice is a programming error.
func (g *Graph) Add(task Task) error {
	if task.Name == "" {
		return errors.New("task needs a name")
	}
	if task.Run == nil {
		return errors.Errorf("task %s has no run function", task.Name)
	}
	if _, ok := g.tasks[task.Name]; ok {
		return errors.Errorf("task %s already registered", task.Name)
	}
	g.tasks[task.Name] = task
	g.order = append(g.order, task.Name)
	return nil
}

// MustAdd is Add for statically known graphs.
func (g *Graph) MustAdd(task Task) {
	if err := g.Add(task); err != nil {
		panic(err)
	}
}

// topoOrder returns a dependency-respecting order, or an error naming a
// missing dependency or a member of a dependency cycle.
func (g *Graph) topoOrder() ([]string, error) {
	const (
		white = iota
		gray
		black
	)
	color := map[string]int{}
	var order []string

	var visit func(name string) error
	visit = func(name string) error {
		switch color[name] {
		case black:
			return nil
		case gray:
			return errors.Errorf("dependency cycle through task %s", name)
		}
		task, ok := g.tasks[name]
		if !ok {
			return errors.Errorf("unknown task %s", name)
		}
		color[name] = gray
		deps := append([]string{}, task.Deps...)
		sort.Strings(deps)
		for _, dep := range deps {
			if err := visit(dep); err != nil {
				return errors.Trace(err)
			}
		}
		color[name] = black
		order = append(order, name)
		return nil
	}

	names := append([]string{}, g.order...)
	sort.Strings(names)
	for _, name := range names {
		if err := visit(name); err != nil {
			return nil, errors.Trace(err)
		}
	}
	return order, nil
}

// Run executes the graph with at most workers tasks in flight and returns
// every task's result by name. The first task error cancels everything still
// queued or running; all errors observed are aggregated.
func (g *Graph) Run(ctx context.Context, workers int) (map[string]interface{}, error) {
	if workers < 1 {
		workers = 1
	}
	order, err := g.topoOrder()
	if err != nil {
		return nil, errors.Trace(err)
	}

	var (
		mu      sync.Mutex
		results = map[string]interface{}{}
		done    = map[string]chan struct{}{}
		errs    *multierror.Error
	)
	for _, name := range order {
		done[name] = make(chan struct{})
	}

	eg, egCtx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, workers)
	for _, name := range order {
		task := g.tasks[name]
		eg.Go(func() error {
			for _, dep := range task.Deps {
				select {
				case <-done[dep]:
				case <-egCtx.Done():
					return egCtx.Err()
				}
			}
			select {
			case sem <- struct{}{}:
			case <-egCtx.Done():
				return egCtx.Err()
			}
			defer func() { <-sem }()

			deps := map[string]interface{}{}
			mu.Lock()
			for _, dep := range task.Deps {
				deps[dep] = results[dep]
			}
			mu.Unlock()

			res, err := task.Run(egCtx, deps)
			if err != nil {
				err = errors.Annotatef(err, "task %s", task.Name)
				mu.Lock()
				errs = multierror.Append(errs, err)
				mu.Unlock()
				return err
			}
			mu.Lock()
			results[task.Name] = res
			mu.Unlock()
			close(done[task.Name])
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		mu.Lock()
		defer mu.Unlock()
		if agg := errs.ErrorOrNil(); agg != nil {
			return nil, agg
		}
		return nil, errors.Trace(err)
	}
	return results, nil
}
