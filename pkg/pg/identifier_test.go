package pg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuoteIdent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "plain table", input: "documents", want: `"documents"`},
		{name: "schema qualified", input: "public.documents", want: `"public"."documents"`},
		{name: "underscore and digits", input: "_doc_v2", want: `"_doc_v2"`},
		{name: "empty", input: "", wantErr: true},
		{name: "too many parts", input: "a.b.c", wantErr: true},
		{name: "injection attempt", input: "documents; DROP TABLE x", wantErr: true},
		{name: "quote", input: `doc"s`, wantErr: true},
		{name: "leading digit", input: "1docs", wantErr: true},
		{name: "empty schema", input: ".documents", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := quoteIdent(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidIdentifier)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRowLockerQuery(t *testing.T) {
	t.Parallel()

	t.Run("mapped table and custom id column", func(t *testing.T) {
		t.Parallel()

		l, err := NewRowLocker(nil, WithTable("document", "public.documents"), WithIDColumn("doc_id"))
		require.NoError(t, err)

		q, err := l.lockQuery("document")
		require.NoError(t, err)
		assert.Equal(t, `SELECT 1 FROM "public"."documents" WHERE "doc_id" = $1 FOR UPDATE`, q)
	})

	t.Run("unmapped entity type is the table name", func(t *testing.T) {
		t.Parallel()

		l, err := NewRowLocker(nil)
		require.NoError(t, err)

		q, err := l.lockQuery("orders")
		require.NoError(t, err)
		assert.Equal(t, `SELECT 1 FROM "orders" WHERE "id" = $1 FOR UPDATE`, q)
	})

	t.Run("invalid unmapped entity type", func(t *testing.T) {
		t.Parallel()

		l, err := NewRowLocker(nil)
		require.NoError(t, err)

		_, err = l.lockQuery("bad name")
		assert.ErrorIs(t, err, ErrInvalidIdentifier)
	})

	t.Run("invalid option", func(t *testing.T) {
		t.Parallel()

		_, err := NewRowLocker(nil, WithTable("document", "docs--"))
		assert.ErrorIs(t, err, ErrInvalidIdentifier)

		_, err = NewRowLocker(nil, WithIDColumn(""))
		assert.ErrorIs(t, err, ErrInvalidIdentifier)
	})
}
