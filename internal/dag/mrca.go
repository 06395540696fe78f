package dag

import (
	"context"
)

// CommitGraph resolves a commit's parents. Satisfied by the metadata
// store's per-repository commit graph.
type CommitGraph interface {
	CommitParents(ctx context.Context, id string) ([]string, error)
}

// MRCA computes the most-recent-common-ancestor of two commit heads with a
// two-sided breadth-first search over commit parents. The first commit seen
// on both sides is the ancestor; when two candidates are equally recent the
// one on A's frontier wins because A's frontier is expanded first each round.
//
// common is empty when no common ancestor exists, in which case pathA and
// pathB are the full reachable histories. Otherwise pathA holds the commits
// reachable from headA that are outside the common ancestor subgraph,
// newest first (symmetrically pathB).
func MRCA(ctx context.Context, ga, gb CommitGraph, headA, headB string) (common string, pathA, pathB []string, err error) {
	common, err = meet(ctx, ga, gb, headA, headB)
	if err != nil {
		return "", nil, nil, err
	}

	var exclude map[string]bool
	if common != "" {
		exclude, err = reachable(ctx, ga, common)
		if err != nil {
			return "", nil, nil, err
		}
	}

	pathA, err = pathOutside(ctx, ga, headA, exclude)
	if err != nil {
		return "", nil, nil, err
	}
	pathB, err = pathOutside(ctx, gb, headB, exclude)
	if err != nil {
		return "", nil, nil, err
	}
	return common, pathA, pathB, nil
}

// meet runs the two-sided BFS and returns the first commit visited by both
// sides, or empty when the searches exhaust without meeting.
func meet(ctx context.Context, ga, gb CommitGraph, headA, headB string) (string, error) {
	if headA == headB {
		return headA, nil
	}

	visitedA := map[string]bool{headA: true}
	visitedB := map[string]bool{headB: true}
	queueA := []string{headA}
	queueB := []string{headB}

	for len(queueA) > 0 || len(queueB) > 0 {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		// A's frontier first: the tie-break.
		found, err := expand(ctx, ga, &queueA, visitedA, visitedB)
		if err != nil {
			return "", err
		}
		if found != "" {
			return found, nil
		}

		found, err = expand(ctx, gb, &queueB, visitedB, visitedA)
		if err != nil {
			return "", err
		}
		if found != "" {
			return found, nil
		}
	}
	return "", nil
}

// expand advances one BFS frontier by a full level, returning the first
// commit also visited by the other side.
func expand(ctx context.Context, g CommitGraph, queue *[]string, visited, other map[string]bool) (string, error) {
	frontier := *queue
	*queue = nil
	for _, id := range frontier {
		if other[id] {
			return id, nil
		}
		parents, err := g.CommitParents(ctx, id)
		if err != nil {
			return "", err
		}
		for _, p := range parents {
			if visited[p] {
				continue
			}
			visited[p] = true
			if other[p] {
				return p, nil
			}
			*queue = append(*queue, p)
		}
	}
	return "", nil
}

// reachable returns the set of commits reachable from head, inclusive.
func reachable(ctx context.Context, g CommitGraph, head string) (map[string]bool, error) {
	seen := map[string]bool{head: true}
	queue := []string{head}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id := queue[0]
		queue = queue[1:]
		parents, err := g.CommitParents(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, p := range parents {
			if !seen[p] {
				seen[p] = true
				queue = append(queue, p)
			}
		}
	}
	return seen, nil
}

// pathOutside lists the commits reachable from head that are not in the
// excluded subgraph, in BFS discovery order (newest first).
func pathOutside(ctx context.Context, g CommitGraph, head string, exclude map[string]bool) ([]string, error) {
	if head == "" || exclude[head] {
		return nil, nil
	}
	path := []string{head}
	seen := map[string]bool{head: true}
	queue := []string{head}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id := queue[0]
		queue = queue[1:]
		parents, err := g.CommitParents(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, p := range parents {
			if seen[p] || exclude[p] {
				continue
			}
			seen[p] = true
			path = append(path, p)
			queue = append(queue, p)
		}
	}
	return path, nil
}
