package mango

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func marshaled(t *testing.T, f interface{ MarshalJSON() ([]byte, error) }) string {
	t.Helper()
	data, err := f.MarshalJSON()
	require.NoError(t, err)
	return string(data)
}

func TestValueFilters(t *testing.T) {
	assert.Equal(t, `{"path":{"$gt":"/a/"}}`, marshaled(t, Gt("path", "/a/")))
	assert.Equal(t, `{"path":{"$lt":"/a0"}}`, marshaled(t, Lt("path", "/a0")))
	assert.Equal(t, `{"deleted_at":{"$exists":false}}`, marshaled(t, NotExists("deleted_at")))
	assert.Equal(t, `{"deleted_at":{"$exists":true}}`, marshaled(t, Exists("deleted_at")))
	assert.Equal(t, `{"name":"readme.md"}`, marshaled(t, Equal("name", "readme.md").(Map)))
}

func TestLogicFilters(t *testing.T) {
	sel := And(
		Equal("filespace_id", "space-1"),
		Gt("path", "/a/"),
		Lt("path", "/a0"),
	)
	data, err := json.Marshal(sel)
	require.NoError(t, err)

	var decoded map[string][]map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded["$and"], 3)
	assert.Equal(t, "space-1", decoded["$and"][0]["filespace_id"])
}

func TestOrAndNotFilters(t *testing.T) {
	sel := Or(
		Equal("type", "directory"),
		Equal("type", "file"),
	)
	data, err := json.Marshal(sel)
	require.NoError(t, err)
	assert.Equal(t, `{"$or":[{"type":"directory"},{"type":"file"}]}`, string(data))

	data, err = json.Marshal(Not(Exists("deleted_at")))
	require.NoError(t, err)
	assert.Equal(t, `{"$not":{"deleted_at":{"$exists":true}}}`, string(data))
}

func TestStartWith(t *testing.T) {
	data, err := json.Marshal(StartWith("path", "/docs/"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"$gte":"/docs/"`)
	assert.Contains(t, string(data), `"$lt":"/docs/`+MaxString)
}

func TestSortBy(t *testing.T) {
	sorts := MakeSortsFromFields([]string{"filespace_id", "path"})
	data, err := json.Marshal(sorts)
	require.NoError(t, err)
	assert.Equal(t, `[{"filespace_id":"asc"},{"path":"asc"}]`, string(data))
}

func TestIndexOnFields(t *testing.T) {
	index := IndexOnFields("io.gobii.nodes", "nodes-by-path", []string{"filespace_id", "path"})
	assert.Equal(t, "io.gobii.nodes", index.Doctype)
	data, err := json.Marshal(index.Request)
	require.NoError(t, err)
	assert.Equal(t, `{"ddoc":"nodes-by-path","name":"nodes-by-path","index":{"fields":["filespace_id","path"]}}`, string(data))
}
