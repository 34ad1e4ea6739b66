package models

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/schema"
)

func mappingIndexes(t *testing.T) map[string]schema.Index {
	t.Helper()
	s, err := schema.Parse(&PlatformProductMapping{}, &sync.Map{}, schema.NamingStrategy{})
	require.NoError(t, err)
	return s.ParseIndexes()
}

func indexColumns(idx schema.Index) []string {
	cols := make([]string, 0, len(idx.Fields))
	for _, f := range idx.Fields {
		cols = append(cols, f.DBName)
	}
	return cols
}

func TestMappingUniquePerConnectionAndVariant(t *testing.T) {
	idx, ok := mappingIndexes(t)["idx_mapping_conn_variant"]
	require.True(t, ok)
	assert.Equal(t, "UNIQUE", idx.Class)
	assert.Equal(t, []string{"connection_id", "variant_id"}, indexColumns(idx))
}

func TestMappingUniquePerConnectionAndPlatformVariant(t *testing.T) {
	// Platform variant ids are only unique within one platform account;
	// the same id may legitimately appear under several connections.
	idx, ok := mappingIndexes(t)["idx_mapping_conn_pvariant"]
	require.True(t, ok)
	assert.Equal(t, "UNIQUE", idx.Class)
	assert.Equal(t, []string{"connection_id", "platform_variant_id"}, indexColumns(idx))
}
