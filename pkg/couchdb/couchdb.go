// Package couchdb is a light wrapper around the CouchDB HTTP API. Documents
// are stored in per-tenant databases whose names are derived from a prefix
// and a doctype.
package couchdb

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gobii-ai/gobii-platform-sub000/pkg/config"
	"github.com/gobii-ai/gobii-platform-sub000/pkg/couchdb/mango"
	"github.com/gobii-ai/gobii-platform-sub000/pkg/logger"
	"github.com/gobii-ai/gobii-platform-sub000/pkg/prefixer"
)

// Doc is the interface that encapsulates a couchdb document, of any
// serializable type. This interface defines methods to set and get the
// ID of the document.
type Doc interface {
	ID() string
	Rev() string
	DocType() string
	Clone() Doc

	SetID(id string)
	SetRev(rev string)
}

// Database is the type passed to every function in couchdb package, it is
// an alias of prefixer.Prefixer.
type Database prefixer.Prefixer

// GlobalDB is the prefix used for stack-scoped databases, like the filespace
// registry.
var GlobalDB = prefixer.GlobalPrefixer()

func escapeCouchdbName(name string) string {
	name = strings.Replace(name, ".", "-", -1)
	name = strings.Replace(name, ":", "-", -1)
	return strings.ToLower(name)
}

func makeDBName(db Database, doctype string) string {
	dbname := escapeCouchdbName(db.DBPrefix() + "/" + doctype)
	return url.PathEscape(dbname)
}

func docURL(db Database, doctype, id string) string {
	return makeDBName(db, doctype) + "/" + url.PathEscape(id)
}

func makeRequest(db Database, method, path string, reqbody interface{}, resbody interface{}) error {
	var reqjson []byte
	var err error

	if reqbody != nil {
		reqjson, err = json.Marshal(reqbody)
		if err != nil {
			return err
		}
	}

	log := logger.WithDomain(db.DomainName()).WithNamespace("couchdb")
	if log.IsDebug() {
		log.Debugf("request: %s %s %s", method, path, string(bytes.TrimSpace(reqjson)))
	}

	req, err := http.NewRequest(
		method,
		config.CouchURL().String()+path,
		bytes.NewReader(reqjson),
	)
	// Possible err = wrong method, unparsable url
	if err != nil {
		return newRequestError(err)
	}
	req.Header.Add("Accept", "application/json")
	if reqbody != nil {
		req.Header.Add("Content-Type", "application/json")
	}

	auth := config.GetConfig().CouchDB.Auth
	if auth != nil {
		if p, ok := auth.Password(); ok {
			req.SetBasicAuth(auth.Username(), p)
		}
	}
	resp, err := config.CouchClient().Do(req)
	// Possible err = mostly connection failure
	if err != nil {
		err = newConnectionError(err)
		log.Error(err.Error())
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var body []byte
		body, err = io.ReadAll(resp.Body)
		if err != nil {
			err = newIOReadError(err)
			log.Error(err.Error())
		} else {
			err = newCouchdbError(resp.StatusCode, body)
			log.Debug(err.Error())
		}
		return err
	}
	if resbody == nil {
		return nil
	}

	if log.IsDebug() {
		var data []byte
		data, err = io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		log.Debugf("response: %s", string(bytes.TrimSpace(data)))
		return json.Unmarshal(data, &resbody)
	}
	return json.NewDecoder(resp.Body).Decode(&resbody)
}

// GetDoc fetches a document by its doctype and ID, out is filled with
// the document by json.Unmarshal-ing.
func GetDoc(db Database, doctype, id string, out Doc) error {
	var err error
	id, err = validateDocID(id)
	if err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("missing ID for GetDoc")
	}
	return makeRequest(db, http.MethodGet, docURL(db, doctype, id), nil, out)
}

// CreateDB creates the necessary database for a doctype.
func CreateDB(db Database, doctype string) error {
	return makeRequest(db, http.MethodPut, makeDBName(db, doctype), nil, nil)
}

// DeleteDB destroys the database for a doctype.
func DeleteDB(db Database, doctype string) error {
	return makeRequest(db, http.MethodDelete, makeDBName(db, doctype), nil, nil)
}

// ResetDB destroys and recreates the database for a doctype.
func ResetDB(db Database, doctype string) error {
	err := DeleteDB(db, doctype)
	if err != nil && !IsNoDatabaseError(err) {
		return err
	}
	return CreateDB(db, doctype)
}

// DeleteDoc deletes a struct implementing the couchdb.Doc interface.
// If the document's current rev does not match the one passed,
// a CouchdbError(409 conflict) will be returned.
// The document's SetRev will be called with the tombstone revision.
func DeleteDoc(db Database, doc Doc) error {
	id, err := validateDocID(doc.ID())
	if err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("missing ID for DeleteDoc")
	}

	var res updateResponse
	qs := url.Values{"rev": []string{doc.Rev()}}
	u := docURL(db, doc.DocType(), id) + "?" + qs.Encode()
	if err = makeRequest(db, http.MethodDelete, u, nil, &res); err != nil {
		return err
	}
	doc.SetRev(res.Rev)
	return nil
}

// UpdateDoc updates a document. The document ID and Rev should be filled.
// The doc SetRev function will be called with the new rev.
func UpdateDoc(db Database, doc Doc) error {
	id, err := validateDocID(doc.ID())
	if err != nil {
		return err
	}
	doctype := doc.DocType()
	if id == "" || doc.Rev() == "" || doctype == "" {
		return fmt.Errorf("UpdateDoc doc argument should have doctype, id and rev")
	}

	var res updateResponse
	if err = makeRequest(db, http.MethodPut, docURL(db, doctype, id), doc, &res); err != nil {
		return err
	}
	doc.SetRev(res.Rev)
	return nil
}

// BulkUpdateDocs is used to update several docs in one call, as a bulk.
func BulkUpdateDocs(db Database, doctype string, docs []interface{}) error {
	if len(docs) == 0 {
		return nil
	}
	body := struct {
		Docs []interface{} `json:"docs"`
	}{docs}
	var res []updateResponse
	if err := makeRequest(db, http.MethodPost, docURL(db, doctype, "_bulk_docs"), body, &res); err != nil {
		return err
	}
	if len(res) != len(docs) {
		return errors.New("BulkUpdateDocs received an unexpected number of responses")
	}
	for i, doc := range docs {
		if res[i].Error != "" {
			return newCouchdbBulkError(res[i].ID, res[i].Error, res[i].Reason)
		}
		if d, ok := doc.(Doc); ok {
			d.SetRev(res[i].Rev)
		}
	}
	return nil
}

// BulkDeleteDocs is used to delete several documents in one call.
func BulkDeleteDocs(db Database, doctype string, docs []Doc) error {
	if len(docs) == 0 {
		return nil
	}
	tombstones := make([]interface{}, 0, len(docs))
	for _, doc := range docs {
		tombstones = append(tombstones, map[string]interface{}{
			"_id":      doc.ID(),
			"_rev":     doc.Rev(),
			"_deleted": true,
		})
	}
	return BulkUpdateDocs(db, doctype, tombstones)
}

// CreateNamedDoc persists a document with an ID.
// If the document already exists, it will return a 409 error.
// The document ID should be filled.
// The doc SetRev function will be called with the new rev.
func CreateNamedDoc(db Database, doc Doc) error {
	id, err := validateDocID(doc.ID())
	if err != nil {
		return err
	}
	doctype := doc.DocType()
	if doc.Rev() != "" || id == "" || doctype == "" {
		return fmt.Errorf("CreateNamedDoc should have type and id but no rev")
	}
	var res updateResponse
	if err = makeRequest(db, http.MethodPut, docURL(db, doctype, id), doc, &res); err != nil {
		return err
	}
	doc.SetRev(res.Rev)
	return nil
}

// CreateNamedDocWithDB is equivalent to CreateNamedDoc but creates the
// database if it does not exist.
func CreateNamedDocWithDB(db Database, doc Doc) error {
	err := CreateNamedDoc(db, doc)
	if IsNoDatabaseError(err) {
		if err = CreateDB(db, doc.DocType()); err != nil && !IsFileExists(err) {
			return err
		}
		return CreateNamedDoc(db, doc)
	}
	return err
}

// DefineIndex defines the index on the doctype database.
// See the mango package on how to define an index.
func DefineIndex(db Database, index *mango.Index) error {
	_, err := DefineIndexRaw(db, index.Doctype, index.Request)
	return err
}

// DefineIndexRaw defines an index
func DefineIndexRaw(db Database, doctype string, index interface{}) (*IndexCreationResponse, error) {
	u := makeDBName(db, doctype) + "/_index"
	response := &IndexCreationResponse{}
	err := makeRequest(db, http.MethodPost, u, &index, &response)
	if IsNoDatabaseError(err) {
		if err = CreateDB(db, doctype); err != nil && !IsFileExists(err) {
			return nil, err
		}
		err = makeRequest(db, http.MethodPost, u, &index, &response)
	}
	if err != nil {
		return nil, err
	}
	return response, nil
}

// DefineIndexes defines a list of indexes.
func DefineIndexes(db Database, indexes []*mango.Index) error {
	for _, index := range indexes {
		if err := DefineIndex(db, index); err != nil {
			return err
		}
	}
	return nil
}

// FindDocs returns all documents matching the passed FindRequest documents
// will be unmarshalled in the provided results slice.
func FindDocs(db Database, doctype string, req *FindRequest, results interface{}) error {
	return FindDocsRaw(db, doctype, req, results)
}

// FindDocsRaw finds documents
func FindDocsRaw(db Database, doctype string, req interface{}, results interface{}) error {
	u := makeDBName(db, doctype) + "/_find"
	var response findResponse
	err := makeRequest(db, http.MethodPost, u, &req, &response)
	if err != nil {
		if isIndexError(err) {
			jsonReq, errm := json.Marshal(req)
			if errm != nil {
				return err
			}
			errc := err.(*Error)
			errc.Reason += fmt.Sprintf(" (original req: %s)", string(jsonReq))
			return errc
		}
		return err
	}
	if response.Warning != "" {
		// Developer should not rely on unoptimized index.
		return unoptimalError()
	}
	return json.Unmarshal(response.Docs, results)
}

// ForeachDocs traverses all the documents from the given database with the
// specified doctype and calls a function for each document.
func ForeachDocs(db Database, doctype string, fn func(id string, doc json.RawMessage) error) error {
	var startKey string
	limit := 100
	for {
		skip := 0
		if startKey != "" {
			skip = 1
		}
		v := url.Values{}
		v.Add("include_docs", "true")
		v.Add("limit", fmt.Sprintf("%d", limit))
		if startKey != "" {
			v.Add("startkey_docid", url.QueryEscape(startKey))
			v.Add("skip", fmt.Sprintf("%d", skip))
		}

		var res AllDocsResponse
		u := makeDBName(db, doctype) + "/_all_docs?" + v.Encode()
		if err := makeRequest(db, http.MethodGet, u, nil, &res); err != nil {
			return err
		}

		var count int
		startKey = ""
		for _, row := range res.Rows {
			if !strings.HasPrefix(row.ID, "_design") {
				if err := fn(row.ID, row.Doc); err != nil {
					return err
				}
				startKey = row.ID
				count++
			}
		}
		if count == 0 || len(res.Rows) < limit {
			break
		}
	}

	return nil
}

func validateDocID(id string) (string, error) {
	if len(id) > 0 && id[0] == '_' {
		return "", newBadIDError(id)
	}
	return id, nil
}

// IndexCreationResponse is the response from couchdb when we create an index.
type IndexCreationResponse struct {
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
	Reason string `json:"reason,omitempty"`
	ID     string `json:"id,omitempty"`
	Name   string `json:"name,omitempty"`
}

type updateResponse struct {
	ID     string `json:"id"`
	Rev    string `json:"rev"`
	Ok     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
	Reason string `json:"reason,omitempty"`
}

type findResponse struct {
	Warning string          `json:"warning"`
	Docs    json.RawMessage `json:"docs"`
}

// FindRequest is used to build a find request.
type FindRequest struct {
	Selector mango.Filter `json:"selector"`
	UseIndex string       `json:"use_index,omitempty"`
	Limit    int          `json:"limit,omitempty"`
	Skip     int          `json:"skip,omitempty"`
	Sort     mango.SortBy `json:"sort,omitempty"`
	Fields   []string     `json:"fields,omitempty"`
}

// AllDocsResponse is the response we receive from an _all_docs request.
type AllDocsResponse struct {
	Offset    int `json:"offset"`
	TotalRows int `json:"total_rows"`
	Rows      []struct {
		ID  string          `json:"id"`
		Doc json.RawMessage `json:"doc"`
	} `json:"rows"`
}
