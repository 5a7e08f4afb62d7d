package graph

import (
	"errors"
	"time"
)

// ErrNoGraphs is returned by Merge when called without graphs.
var ErrNoGraphs = errors.New("no graphs to merge")

// Build assembles a graph from crawled nodes and edges. It computes per-node
// DOM signatures and metadata, removes edges whose endpoints are not in the
// node set, and collapses duplicate edges.
func Build(
	appName, baseURL string,
	nodes []*Node,
	edges []Edge,
	framework string,
	duration time.Duration,
	method CrawlMethod,
) *Graph {
	if method == "" {
		method = CrawlDynamic
	}

	known := make(map[string]bool, len(nodes))
	signatures := make(map[string]Signature, len(nodes))
	totalElements, totalForms := 0, 0
	for _, n := range nodes {
		known[n.ID] = true
		signatures[n.ID] = Signature{
			DOMHash:   HashObject(n.Elements),
			Timestamp: n.Metadata.FirstSeen,
		}
		totalElements += len(n.Elements)
		totalForms += len(n.Forms)
	}

	seen := make(map[string]bool, len(edges))
	kept := make([]Edge, 0, len(edges))
	for _, e := range edges {
		if !known[e.From] || !known[e.To] {
			continue
		}
		if seen[e.Key()] {
			continue
		}
		seen[e.Key()] = true
		kept = append(kept, e)
	}

	return &Graph{
		Version:    CurrentVersion,
		AppName:    appName,
		BaseURL:    baseURL,
		Timestamp:  time.Now().UTC(),
		Framework:  framework,
		Nodes:      nodes,
		Edges:      kept,
		Signatures: signatures,
		Metadata: Metadata{
			TotalNodes:    len(nodes),
			TotalEdges:    len(kept),
			TotalElements: totalElements,
			TotalForms:    totalForms,
			CrawlDuration: duration.Milliseconds(),
			CrawlMethod:   method,
		},
	}
}

// Merge combines graphs by node id. Elements of nodes present in several
// graphs are unioned and de-duplicated by selector, text or id; edges are
// de-duplicated by from->to->type. The first graph supplies app name and base
// URL. Input graphs are not modified.
func Merge(graphs ...*Graph) (*Graph, error) {
	if len(graphs) == 0 {
		return nil, ErrNoGraphs
	}
	if len(graphs) == 1 {
		return graphs[0], nil
	}

	base := graphs[0]
	index := make(map[string]*Node)
	var order []*Node
	var edges []Edge
	var duration int64
	method := base.Metadata.CrawlMethod

	for _, g := range graphs {
		duration += g.Metadata.CrawlDuration
		if g.Metadata.CrawlMethod != method {
			method = CrawlHybrid
		}
		for _, n := range g.Nodes {
			existing, ok := index[n.ID]
			if !ok {
				clone := *n
				clone.Elements = append([]ElementDescriptor(nil), n.Elements...)
				clone.Forms = append([]FormDescriptor(nil), n.Forms...)
				index[n.ID] = &clone
				order = append(order, &clone)
				continue
			}
			existing.Elements = mergeElements(existing.Elements, n.Elements)
			if len(existing.Forms) == 0 {
				existing.Forms = append([]FormDescriptor(nil), n.Forms...)
			}
			existing.Metadata.VisitCount += n.Metadata.VisitCount
			if n.Metadata.LastSeen.After(existing.Metadata.LastSeen) {
				existing.Metadata.LastSeen = n.Metadata.LastSeen
			}
		}
		edges = append(edges, g.Edges...)
	}

	return Build(
		base.AppName,
		base.BaseURL,
		order,
		edges,
		base.Framework,
		time.Duration(duration)*time.Millisecond,
		method,
	), nil
}

func mergeElements(a, b []ElementDescriptor) []ElementDescriptor {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]ElementDescriptor, 0, len(a)+len(b))
	for _, list := range [][]ElementDescriptor{a, b} {
		for _, el := range list {
			key := el.Selector.Primary
			if key == "" {
				key = el.Text
			}
			if key == "" {
				key = el.ID
			}
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, el)
		}
	}
	return out
}
