package mango

// An Index is a request to be POSTed to create a mango index on a doctype
// database.
type Index struct {
	Doctype string
	Request *IndexRequest
}

// IndexRequest is the body sent to the _index endpoint.
type IndexRequest struct {
	DDoc  string   `json:"ddoc,omitempty"`
	Name  string   `json:"name,omitempty"`
	Index IndexDef `json:"index"`
}

// IndexDef is the fields list of an index definition.
type IndexDef struct {
	Fields []string `json:"fields"`
}

// MakeSortsFromFields returns a SortBy in ascending order on the index
// fields, as required by CouchDB when sorting on a mango index.
func MakeSortsFromFields(fields []string) SortBy {
	sorts := make(SortBy, len(fields))
	for i, f := range fields {
		sorts[i] = SortByField{Field: f, Direction: Asc}
	}
	return sorts
}

// IndexOnFields constructs a new Index on the specified fields. The name is
// used both as the design doc name and as the index name, so that it can be
// referenced by the use_index field of a find request.
func IndexOnFields(doctype, name string, fields []string) *Index {
	return &Index{
		Doctype: doctype,
		Request: &IndexRequest{
			DDoc:  name,
			Name:  name,
			Index: IndexDef{Fields: fields},
		},
	}
}
