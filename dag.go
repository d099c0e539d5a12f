package stencil

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

var (
	// ErrResourceCycle is returned when a dependency cycle between
	// resources is found. It means that the resource another resource
	// depends on itself depends on that other resource. It always
	// indicates a misconfiguration of the resource dependency graph, and
	// means that the ResourceRelationship returned from one of the
	// relation calculators on a resource is problematic.
	ErrResourceCycle = errors.New("resource cycle detected")
)

// resource is the constraint for the resources a graph holds.
type resource[Self any] interface {
	equal(Self) bool
	getKey() string
	linked() bool
	describe() string
	implicitlyOrdered() bool
	hasRelations() bool
	relationTo(context.Context, Self) ResourceRelationship
}

// graph is a directed acyclic graph of type Type. It's used to ensure ordering
// constraints of CSS and JS assets are met.
type graph[Type resource[Type]] struct {
	// nodes holds the nodes in the graph.
	nodes []Type

	// edgesTo holds graph edges, with the key being the position of the
	// node in the nodes slice that the edges are pointing to.
	//
	// if there's a node 1 and a node 2, and an edge from 1->2, edgesTo
	// will have a key of 2 with a value of [1].
	//
	// nodes point to their dependencies and dependencies are always
	// walked first; i.e., if there's a node 1 and a node 2, and an edge
	// from 1->2, 2 will always appear before 1 when walking the graph.
	edgesTo map[int]map[int]struct{}

	// edgesFrom holds graph edges, with the key being the position of the
	// node in the nodes slice that the edges are pointing from.
	//
	// if there's a node 1 and a node 2, and an edge from 1->2, edgesFrom
	// will have a key of 1 with a value of [2].
	edgesFrom map[int]map[int]struct{}
}

func newGraph[Type resource[Type]]() graph[Type] {
	return graph[Type]{
		edgesTo:   map[int]map[int]struct{}{},
		edgesFrom: map[int]map[int]struct{}{},
	}
}

// addEdge records that from depends on to, so to is walked first.
func (g *graph[Type]) addEdge(from, to int) {
	if from == to {
		return
	}
	if g.edgesFrom[from] == nil {
		g.edgesFrom[from] = map[int]struct{}{}
	}
	if g.edgesTo[to] == nil {
		g.edgesTo[to] = map[int]struct{}{}
	}
	g.edgesFrom[from][to] = struct{}{}
	g.edgesTo[to][from] = struct{}{}
}

// addGroup adds the resources one component declared in one list. Each
// resource depends on the one before it, unless it opts out of implicit
// ordering. Resources already in the graph are skipped.
func (g *graph[Type]) addGroup(resources []Type) {
	last := -1
	for _, res := range resources {
		if slices.ContainsFunc(g.nodes, res.equal) {
			continue
		}
		g.nodes = append(g.nodes, res)
		if !res.implicitlyOrdered() {
			continue
		}
		thisNode := len(g.nodes) - 1
		if last >= 0 {
			g.addEdge(thisNode, last)
		}
		last = thisNode
	}
}

// addRelations adds the edges the relation calculators of every resource
// ask for.
func (g *graph[Type]) addRelations(ctx context.Context) {
	for pos, res := range g.nodes {
		if !res.hasRelations() {
			continue
		}
		for compPos, comparison := range g.nodes {
			if pos == compPos {
				continue
			}
			switch res.relationTo(ctx, comparison) {
			case ResourceRelationshipAfter:
				g.addEdge(pos, compPos)
			case ResourceRelationshipBefore:
				g.addEdge(compPos, pos)
			case ResourceRelationshipNeutral:
				// do nothing, this doesn't imply dependency
			}
		}
	}
}

// resourceGraphs is a collection of graphs, one for CSS resources, one for
// JavaScript resources that should be included in the page header, and one for
// JavaScript resources that should be included in the page footer.
type resourceGraphs struct {
	css    graph[cssResource]
	headJS graph[jsResource]
	footJS graph[jsResource]
}

// buildGraphs creates a resourceGraphs containing all the resources that the
// passed components define, with all their dependencies computed.
//
// Each component's resources will have an implicit dependency on the previous
// resource of their type for that component, so their order within the slice
// will be preserved when rendering them.
func buildGraphs(ctx context.Context, components []Component) resourceGraphs {
	result := resourceGraphs{
		css:    newGraph[cssResource](),
		headJS: newGraph[jsResource](),
		footJS: newGraph[jsResource](),
	}
	for _, component := range components {
		if cssLinker, ok := component.(CSSLinker); ok {
			result.css.addGroup(toResources[cssResource](cssLinker.LinkCSS(ctx)))
		}
		if cssEmbedder, ok := component.(CSSEmbedder); ok {
			result.css.addGroup(toResources[cssResource](cssEmbedder.EmbedCSS(ctx)))
		}
		if jsLinker, ok := component.(JSLinker); ok {
			head, foot := splitFooter(toResources[jsResource](jsLinker.LinkJS(ctx)))
			result.headJS.addGroup(head)
			result.footJS.addGroup(foot)
		}
		if jsEmbedder, ok := component.(JSEmbedder); ok {
			head, foot := splitFooter(toResources[jsResource](jsEmbedder.EmbedJS(ctx)))
			result.headJS.addGroup(head)
			result.footJS.addGroup(foot)
		}
	}
	result.css.addRelations(ctx)
	result.headJS.addRelations(ctx)
	result.footJS.addRelations(ctx)
	return result
}

func toResources[Res any, In any](in []In) []Res {
	out := make([]Res, 0, len(in))
	for _, item := range in {
		res, ok := any(item).(Res)
		if !ok {
			panic(fmt.Sprintf("unexpected type %T when collecting resources", item))
		}
		out = append(out, res)
	}
	return out
}

func splitFooter(resources []jsResource) (head, foot []jsResource) {
	for _, res := range resources {
		if res.inFooter() {
			foot = append(foot, res)
			continue
		}
		head = append(head, res)
	}
	return head, foot
}

// sortNodes orders resources with no pending dependencies: links before
// inline resources, then by URL or template path.
func sortNodes[Node resource[Node]](first, second Node) int {
	if first.linked() != second.linked() {
		if first.linked() {
			return -1
		}
		return 1
	}
	return strings.Compare(first.getKey(), second.getKey())
}

func walkGraph[Node resource[Node]](_ context.Context, resources graph[Node]) ([]Node, error) {
	noParents := make([]int, 0, len(resources.nodes))
	results := make([]Node, 0, len(resources.nodes))
	for pos := range resources.nodes {
		if len(resources.edgesFrom[pos]) < 1 {
			delete(resources.edgesFrom, pos)
			noParents = append(noParents, pos)
		}
	}
	byPos := func(a, b int) int {
		return sortNodes(resources.nodes[a], resources.nodes[b])
	}
	slices.SortFunc(noParents, byPos)
	for len(noParents) > 0 {
		pos := noParents[0]
		noParents = noParents[1:]
		results = append(results, resources.nodes[pos])
		var noParentsChanged bool
		for child := range resources.edgesTo[pos] {
			delete(resources.edgesFrom[child], pos)
			if len(resources.edgesFrom[child]) < 1 {
				delete(resources.edgesFrom, child)
				noParents = append(noParents, child)
				noParentsChanged = true
			}
		}
		delete(resources.edgesTo, pos)
		if noParentsChanged {
			slices.SortFunc(noParents, byPos)
		}
	}
	if len(resources.edgesTo) > 0 || len(resources.edgesFrom) > 0 {
		var edgesTo, edgesFrom, resourceIDs []string
		for _, k := range sortedKeys(resources.edgesTo) {
			edgesTo = append(edgesTo, fmt.Sprintf("%d:%s", k, joinInts(sortedKeys(resources.edgesTo[k]))))
		}
		for _, k := range sortedKeys(resources.edgesFrom) {
			edgesFrom = append(edgesFrom, fmt.Sprintf("%d:%s", k, joinInts(sortedKeys(resources.edgesFrom[k]))))
		}
		for _, v := range resources.nodes {
			resourceIDs = append(resourceIDs, v.describe())
		}
		return results, fmt.Errorf("%w: edges_to=[%s], edges_from=[%s], resources=[%s]", ErrResourceCycle, strings.Join(edgesTo, "; "), strings.Join(edgesFrom, "; "), strings.Join(resourceIDs, ", "))
	}
	return results, nil
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func joinInts(vals []int) string {
	strs := make([]string, 0, len(vals))
	for _, val := range vals {
		strs = append(strs, strconv.Itoa(val))
	}
	return strings.Join(strs, ",")
}
