package schema_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openwpsec/guard/pkg/domain/schema"
)

func TestExpected(t *testing.T) {
	tests := []struct {
		base string
		pk   string
	}{
		{"options", "option_id"},
		{"posts", "id"},
		{"postmeta", "meta_id"},
		{"users", "id"},
		{"usermeta", "umeta_id"},
		{"comments", "comment_id"},
		{"commentmeta", "meta_id"},
	}

	for _, tt := range tests {
		t.Run(tt.base, func(t *testing.T) {
			table, ok := schema.Expected(tt.base)
			require.True(t, ok)
			assert.Equal(t, tt.pk, table.PrimaryKey)
			assert.Contains(t, table.Columns, tt.pk)
			assert.NotEmpty(t, table.IndexSuffixes)

			pk, ok := schema.PrimaryKey(tt.base)
			require.True(t, ok)
			assert.Equal(t, tt.pk, pk)
		})
	}

	t.Run("unknown table", func(t *testing.T) {
		_, ok := schema.Expected("terms")
		assert.False(t, ok)
		_, ok = schema.PrimaryKey("terms")
		assert.False(t, ok)
	})
}

func TestIndexNames(t *testing.T) {
	table, ok := schema.Expected("options")
	require.True(t, ok)

	names := table.IndexNames("wp_options")
	assert.Equal(t, []string{"wp_options_pkey", "wp_options_option_name_idx"}, names)
}

func TestTrimPrefix(t *testing.T) {
	assert.Equal(t, "options", schema.TrimPrefix("wp_options", "wp_"))
	assert.Equal(t, "usermeta", schema.TrimPrefix("site5_usermeta", "site5_"))
	assert.Equal(t, "options", schema.TrimPrefix("options", "wp_"))
}
