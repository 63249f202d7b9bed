package catalog

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSupabaseStore_RequiresCredentials(t *testing.T) {
	_, err := NewSupabaseStore(SupabaseConfig{APIKey: "k"})
	assert.Error(t, err)

	_, err = NewSupabaseStore(SupabaseConfig{URL: "https://example.supabase.co"})
	assert.Error(t, err)
}

func TestSupabaseProduct_DecodesNumericIDs(t *testing.T) {
	var rows []supabaseProduct
	body := `[{"id": 42, "name": "Desk Lamp", "category": "Home", "price": 39.5, "tags": ["lamp"], "active": true, "updated_at": "2024-05-01T10:00:00.123456+00:00"},
	          {"id": "sku-7", "name": "Kettle", "category": "Home", "price": 25, "active": true, "updated_at": "2024-05-01T10:00:00"}]`
	require.NoError(t, json.Unmarshal([]byte(body), &rows))
	require.Len(t, rows, 2)

	first := rows[0].toProduct()
	assert.Equal(t, "42", first.ID)
	assert.Equal(t, []string{"lamp"}, first.Tags)
	assert.False(t, first.UpdatedAt.IsZero())

	second := rows[1].toProduct()
	assert.Equal(t, "sku-7", second.ID)
	assert.False(t, second.UpdatedAt.IsZero())
}
