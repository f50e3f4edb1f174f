// Package scope resolves a scope filter expression against a backlog into a
// deterministic, depth-first pre-order execution queue of item ids.
package scope

import (
	"github.com/autoforge/autoforge/internal/backlog"
)

// Resolve walks b in depth-first pre-order starting from the roots that
// fall within expr (an empty expr selects every root), and returns every
// visited item id in visitation order — phases and milestones and tasks
// included, not just leaf subtasks, since the Task Orchestrator dispatches
// on all four levels.
func Resolve(b *backlog.Backlog, expr string) ([]string, error) {
	if err := backlog.ValidateScope(expr); err != nil {
		return nil, err
	}

	var queue []string
	var walk func(id string)
	walk = func(id string) {
		queue = append(queue, id)
		for _, child := range b.ChildrenOf(id) {
			walk(child)
		}
	}

	for _, root := range b.Roots() {
		if !rootInScope(root, expr, b) {
			continue
		}
		walkFromScope(b, root, expr, &queue)
	}
	return queue, nil
}

// rootInScope reports whether root's subtree could contain anything in
// scope, cheaply (a root is in scope if it matches, is an ancestor of the
// scope, or the scope is empty).
func rootInScope(root, expr string, b *backlog.Backlog) bool {
	if expr == "" {
		return true
	}
	if backlog.MatchesScope(root, expr) {
		return true
	}
	// root might be an ancestor of expr (e.g. root="P1", expr="P1.M2").
	return backlog.MatchesScope(expr, root)
}

// walkFromScope performs the actual DFS pre-order, only appending ids once
// the traversal has descended into (or started within) the requested
// scope.
func walkFromScope(b *backlog.Backlog, id, expr string, queue *[]string) {
	if backlog.MatchesScope(id, expr) {
		*queue = append(*queue, id)
		appendSubtree(b, id, queue)
		return
	}
	// id is an ancestor of the scope target: descend without emitting id
	// itself, since it falls outside the requested scope.
	for _, child := range b.ChildrenOf(id) {
		walkFromScope(b, child, expr, queue)
	}
}

func appendSubtree(b *backlog.Backlog, id string, queue *[]string) {
	for _, child := range b.ChildrenOf(id) {
		*queue = append(*queue, child)
		appendSubtree(b, child, queue)
	}
}

// Leaves filters a resolved queue down to just the Subtask ids, preserving
// order — the unit the PRP Runtime actually executes.
func Leaves(b *backlog.Backlog, queue []string) []string {
	var out []string
	for _, id := range queue {
		it, err := b.Get(id)
		if err != nil {
			continue
		}
		if it.Level == backlog.LevelSubtask {
			out = append(out, id)
		}
	}
	return out
}
