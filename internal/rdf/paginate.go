package rdf

import "net/url"

// Paginator discovers the next page of a paged graph document.
type Paginator interface {
	// NextPage returns the URL of the page following page, and false when
	// there is none.
	NextPage(page *Graph) (string, bool)
}

var hydraNamespaces = []string{NsHydra, NsHydraHTTPS}

// HydraPaginator follows hydra:next / hydra:nextPage links found on
// PartialCollectionView or PagedCollection nodes. A URL is never visited twice.
type HydraPaginator struct {
	current string
	visited map[string]bool
}

// NewHydraPaginator starts pagination at first.
func NewHydraPaginator(first string) *HydraPaginator {
	return &HydraPaginator{current: first, visited: map[string]bool{first: true}}
}

func (h *HydraPaginator) NextPage(page *Graph) (string, bool) {
	var types []string
	for _, ns := range hydraNamespaces {
		types = append(types, ns+"PartialCollectionView", ns+"PagedCollection")
	}

	for _, view := range page.SubjectsOfType(types...) {
		for _, ns := range hydraNamespaces {
			for _, pred := range []string{ns + "next", ns + "nextPage"} {
				next := page.Value(view, pred)
				if next == "" {
					continue
				}
				next = h.resolve(next)
				if h.visited[next] {
					return "", false
				}
				h.visited[next] = true
				h.current = next
				return next, true
			}
		}
	}
	return "", false
}

func (h *HydraPaginator) resolve(ref string) string {
	base, err := url.Parse(h.current)
	if err != nil {
		return ref
	}
	u, err := base.Parse(ref)
	if err != nil {
		return ref
	}
	return u.String()
}
