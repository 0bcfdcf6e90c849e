// Package schema holds the static expected shape of the critical CMS
// tables: primary-key columns, column sets, and index names. The
// integrity check compares live schema against these; tables not listed
// here are skipped, never flagged.
package schema

import "strings"

// Table describes the expected shape of one critical table, keyed by
// its unprefixed base name.
type Table struct {
	// PrimaryKey is the integer primary-key column used for batched
	// fetches and row deletes.
	PrimaryKey string

	Columns []string

	// IndexSuffixes are appended to the prefixed table name to form
	// the expected index names.
	IndexSuffixes []string
}

// IndexNames returns the expected index names for the prefixed table.
func (t Table) IndexNames(fullTable string) []string {
	out := make([]string, len(t.IndexSuffixes))
	for i, s := range t.IndexSuffixes {
		out[i] = fullTable + s
	}
	return out
}

var tables = map[string]Table{
	"options": {
		PrimaryKey:    "option_id",
		Columns:       []string{"option_id", "option_name", "option_value", "autoload"},
		IndexSuffixes: []string{"_pkey", "_option_name_idx"},
	},
	"posts": {
		PrimaryKey: "id",
		Columns: []string{
			"id", "post_author", "post_date", "post_date_gmt", "post_content",
			"post_title", "post_excerpt", "post_status", "comment_status",
			"ping_status", "post_password", "post_name", "to_ping", "pinged",
			"post_modified", "post_modified_gmt", "post_content_filtered",
			"post_parent", "guid", "menu_order", "post_type", "post_mime_type",
			"comment_count",
		},
		IndexSuffixes: []string{"_pkey", "_post_name_idx", "_type_status_date_idx"},
	},
	"postmeta": {
		PrimaryKey:    "meta_id",
		Columns:       []string{"meta_id", "post_id", "meta_key", "meta_value"},
		IndexSuffixes: []string{"_pkey", "_post_id_idx", "_meta_key_idx"},
	},
	"users": {
		PrimaryKey: "id",
		Columns: []string{
			"id", "user_login", "user_pass", "user_nicename", "user_email",
			"user_url", "user_registered", "user_activation_key",
			"user_status", "display_name",
		},
		IndexSuffixes: []string{"_pkey", "_user_login_key_idx", "_user_email_idx"},
	},
	"usermeta": {
		PrimaryKey:    "umeta_id",
		Columns:       []string{"umeta_id", "user_id", "meta_key", "meta_value"},
		IndexSuffixes: []string{"_pkey", "_user_id_idx", "_meta_key_idx"},
	},
	"comments": {
		PrimaryKey: "comment_id",
		Columns: []string{
			"comment_id", "comment_post_id", "comment_author",
			"comment_author_email", "comment_author_url", "comment_author_ip",
			"comment_date", "comment_date_gmt", "comment_content",
			"comment_karma", "comment_approved", "comment_agent",
			"comment_type", "comment_parent", "user_id",
		},
		IndexSuffixes: []string{"_pkey", "_comment_post_id_idx", "_comment_approved_date_gmt_idx"},
	},
	"commentmeta": {
		PrimaryKey:    "meta_id",
		Columns:       []string{"meta_id", "comment_id", "meta_key", "meta_value"},
		IndexSuffixes: []string{"_pkey", "_comment_id_idx", "_meta_key_idx"},
	},
}

// Expected returns the expected shape of the table with the given base
// name. The second return is false for tables not covered by the
// integrity check.
func Expected(base string) (Table, bool) {
	t, ok := tables[base]
	return t, ok
}

// PrimaryKey returns the primary-key column for the table with the
// given base name.
func PrimaryKey(base string) (string, bool) {
	t, ok := tables[base]
	if !ok {
		return "", false
	}
	return t.PrimaryKey, true
}

// TrimPrefix strips the site's table prefix from the full table name,
// yielding the base name the static maps are keyed by.
func TrimPrefix(fullTable, prefix string) string {
	return strings.TrimPrefix(fullTable, prefix)
}
