package docnumber

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fieldbooks/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type numbered struct {
	ID     int64 `gorm:"primaryKey"`
	OrgID  snowflake.ID
	Number string
}

func TestNextCountsPerOrg(t *testing.T) {
	conn := db.NewTest(t, &numbered{})
	ctx := context.Background()

	first, err := Next(ctx, conn, "numbereds", PrefixInvoice, 1)
	require.NoError(t, err)
	assert.Equal(t, "INV-00001", first)

	require.NoError(t, conn.Create(&numbered{ID: 1, OrgID: 1, Number: first}).Error)
	require.NoError(t, conn.Create(&numbered{ID: 2, OrgID: 2, Number: "INV-00001"}).Error)

	second, err := Next(ctx, conn, "numbereds", PrefixInvoice, 1)
	require.NoError(t, err)
	assert.Equal(t, "INV-00002", second)
}

func TestResolveKeepsRequested(t *testing.T) {
	conn := db.NewTest(t, &numbered{})

	got, err := Resolve(context.Background(), conn, "numbereds", PrefixEstimate, 1, "  EST-CUSTOM ")
	require.NoError(t, err)
	assert.Equal(t, "EST-CUSTOM", got)
}
