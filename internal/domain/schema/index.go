package schema

import "sort"

// Index is a read-only view over a set of forms, keyed for the lookups the
// import and export paths repeat for every row.
type Index struct {
	elements map[string]*FormElement
	children map[string][]*FormElement
}

// NewIndex indexes the non-voided elements of forms.
func NewIndex(forms ...*Form) *Index {
	idx := &Index{
		elements: make(map[string]*FormElement),
		children: make(map[string][]*FormElement),
	}
	for _, f := range forms {
		if f == nil {
			continue
		}
		for _, fe := range f.AllFormElements() {
			idx.elements[fe.UUID] = fe
			if fe.GroupUUID != "" {
				idx.children[fe.GroupUUID] = append(idx.children[fe.GroupUUID], fe)
			}
		}
	}
	for k := range idx.children {
		kids := idx.children[k]
		sort.SliceStable(kids, func(i, j int) bool { return kids[i].DisplayOrder < kids[j].DisplayOrder })
	}
	return idx
}

// Element returns the element with the given UUID.
func (idx *Index) Element(uuid string) (*FormElement, bool) {
	fe, ok := idx.elements[uuid]
	return fe, ok
}

// Children returns the members of a question-group element.
func (idx *Index) Children(fe *FormElement) []*FormElement {
	return idx.children[fe.UUID]
}

// Parent returns the question-group element that fe belongs to.
func (idx *Index) Parent(fe *FormElement) (*FormElement, bool) {
	if fe.GroupUUID == "" {
		return nil, false
	}
	return idx.Element(fe.GroupUUID)
}
