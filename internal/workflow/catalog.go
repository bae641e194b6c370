// internal/workflow/catalog.go
package workflow

import "math/rand"

// defaultSubjects is the book catalog as the subject checkboxes render
// it. Deployments with a different catalog inject their own list.
var defaultSubjects = []string{
	"Accounting",
	"Algebra and Trigonometry",
	"American Government",
	"Anatomy & Physiology",
	"Astronomy",
	"Biology",
	"Business Ethics",
	"Business Statistics",
	"Calculus",
	"Chemistry",
	"Chemistry: Atoms First",
	"College Algebra",
	"College Physics",
	"Concepts of Biology",
	"Elementary Algebra",
	"Intermediate Algebra",
	"Introduction to Business",
	"Introduction to Sociology",
	"Introductory Statistics",
	"Microbiology",
	"Prealgebra",
	"Precalculus",
	"Principles of Economics",
	"Principles of Macroeconomics",
	"Principles of Microeconomics",
	"Psychology",
	"University Physics",
	"U.S. History",
	"Not Listed",
}

// Catalog is the immutable set of selectable subjects. Journeys
// receive it at construction; there is no package-level instance to
// mutate.
type Catalog struct {
	names []string
	index map[string]struct{}
}

// NewCatalog builds a catalog from display names, dropping duplicates
// while keeping first-seen order.
func NewCatalog(names []string) Catalog {
	c := Catalog{index: make(map[string]struct{}, len(names))}
	for _, name := range names {
		if _, seen := c.index[name]; seen {
			continue
		}
		c.index[name] = struct{}{}
		c.names = append(c.names, name)
	}
	return c
}

// DefaultCatalog returns the built-in book catalog.
func DefaultCatalog() Catalog {
	return NewCatalog(defaultSubjects)
}

// Size returns the number of subjects.
func (c Catalog) Size() int { return len(c.names) }

// Contains reports whether the display name is in the catalog.
func (c Catalog) Contains(name string) bool {
	_, ok := c.index[name]
	return ok
}

// Filter keeps the requested names that exist in the catalog, in
// request order, without duplicates. Unknown names are dropped, not
// errors: scenario data may name books the deployment doesn't carry.
func (c Catalog) Filter(requested []string) []string {
	var kept []string
	seen := make(map[string]struct{}, len(requested))
	for _, name := range requested {
		if !c.Contains(name) {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		kept = append(kept, name)
	}
	return kept
}

// Random picks n distinct subjects, clamping n to the catalog size.
func (c Catalog) Random(n int) []string {
	if n > len(c.names) {
		n = len(c.names)
	}
	if n <= 0 {
		return nil
	}
	picked := make([]string, len(c.names))
	copy(picked, c.names)
	rand.Shuffle(len(picked), func(i, j int) {
		picked[i], picked[j] = picked[j], picked[i]
	})
	return picked[:n]
}
