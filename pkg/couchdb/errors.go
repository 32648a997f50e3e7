package couchdb

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Error represents an error from couchdb.
type Error struct {
	StatusCode  int    `json:"status_code"`
	CouchdbJSON []byte `json:"-"`
	Name        string `json:"error"`
	Reason      string `json:"reason"`
	Original    error  `json:"-"`
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("CouchDB(%s): %s", e.Name, e.Reason)
	if e.Original != nil {
		msg += " - " + e.Original.Error()
	}
	return msg
}

// IsCouchError returns whether or not the given error is of type
// couchdb.Error.
func IsCouchError(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	couchErr, isCouchErr := err.(*Error)
	return couchErr, isCouchErr
}

// IsNoDatabaseError checks if the given error is a couch no_db_file error.
func IsNoDatabaseError(err error) bool {
	couchErr, isCouchErr := IsCouchError(err)
	if !isCouchErr {
		return false
	}
	return couchErr.Reason == "no_db_file" ||
		couchErr.Reason == "Database does not exist."
}

// IsNotFoundError checks if the given error is a couch not_found error.
func IsNotFoundError(err error) bool {
	couchErr, isCouchErr := IsCouchError(err)
	if !isCouchErr {
		return false
	}
	return (couchErr.Name == "not_found" ||
		couchErr.Reason == "no_db_file" ||
		couchErr.Reason == "Database does not exist.")
}

// IsFileExists checks if the given error is a couch file_exists error.
func IsFileExists(err error) bool {
	couchErr, isCouchErr := IsCouchError(err)
	if !isCouchErr {
		return false
	}
	return couchErr.Name == "file_exists"
}

// IsConflictError checks if the given error is a couch conflict error.
func IsConflictError(err error) bool {
	couchErr, isCouchErr := IsCouchError(err)
	if !isCouchErr {
		return false
	}
	return couchErr.StatusCode == http.StatusConflict
}

func isIndexError(err error) bool {
	couchErr, isCouchErr := IsCouchError(err)
	if !isCouchErr {
		return false
	}
	return couchErr.Name == "no_usable_index"
}

func newCouchdbError(statusCode int, couchdbJSON []byte) error {
	err := &Error{
		CouchdbJSON: couchdbJSON,
	}
	parseErr := json.Unmarshal(couchdbJSON, err)
	if parseErr != nil {
		err.Name = "wrong_json"
		err.Reason = parseErr.Error()
	}
	err.StatusCode = statusCode
	return err
}

func newCouchdbBulkError(id, name, reason string) error {
	return &Error{
		StatusCode: http.StatusConflict,
		Name:       name,
		Reason:     fmt.Sprintf("%s (doc %s)", reason, id),
	}
}

func newConnectionError(err error) error {
	return &Error{
		StatusCode: http.StatusServiceUnavailable,
		Name:       "no_couch",
		Reason:     "could not create connection with couchdb",
		Original:   err,
	}
}

func newIOReadError(err error) error {
	return &Error{
		StatusCode: http.StatusServiceUnavailable,
		Name:       "couchdb_io",
		Reason:     "could not read data from couchdb",
		Original:   err,
	}
}

func newRequestError(err error) error {
	return &Error{
		StatusCode: http.StatusInternalServerError,
		Name:       "request_error",
		Reason:     "could not create request to couchdb",
		Original:   err,
	}
}

func newBadIDError(id string) error {
	return &Error{
		StatusCode: http.StatusBadRequest,
		Name:       "bad_id",
		Reason:     fmt.Sprintf("Unsupported couchdb operation %s", id),
	}
}

func unoptimalError() error {
	return &Error{
		StatusCode: http.StatusBadRequest,
		Name:       "no_index",
		Reason:     "no matching index found, create an index",
	}
}
