package chsql

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBinder(t *testing.T) {
	b := NewBinder()

	require.Equal(t, "{tenantId:String}", b.Named("tenantId", "String", "t-1"))
	require.Equal(t, "{p0:String}", b.String("O'Brien"))
	require.Equal(t, "{p1:Array(String)}", b.Strings([]string{"a", `b'c`}))
	require.Equal(t, "fromUnixTimestamp64Milli({currentStart:Int64})",
		b.Time("currentStart", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	require.Equal(t, "{p2:UInt32}", b.Bind("UInt32", 100))

	params := b.Params()
	require.Equal(t, "t-1", params["tenantId"])
	require.Equal(t, "O'Brien", params["p0"])
	require.Equal(t, `['a','b\'c']`, params["p1"])
	require.Equal(t, "1704067200000", params["currentStart"])
	require.Equal(t, "100", params["p2"])
	require.Equal(t, []string{"currentStart", "p0", "p1", "p2", "tenantId"}, b.Names())

	params["p0"] = "changed"
	require.Equal(t, "O'Brien", b.Params()["p0"])
}

func TestIdent(t *testing.T) {
	require.Equal(t, "`0__metadata_trace_id__cardinality`", Ident("0__metadata_trace_id__cardinality"))
	require.Equal(t, "`a\\`b`", Ident("a`b"))
}
