// file: internal/adapter/directory/response_test.go
package directory

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlexString(t *testing.T) {
	cases := map[string]string{
		`"6.5"`: "6.5",
		`6.5`:   "6.5",
		`false`: "",
		`null`:  "",
	}
	for in, want := range cases {
		var f flexString
		require.NoError(t, json.Unmarshal([]byte(in), &f), in)
		assert.Equal(t, want, string(f), in)
	}
}

func TestFlexInt(t *testing.T) {
	cases := map[string]int64{
		`42`:     42,
		`"42"`:   42,
		`"1e3"`:  1000,
		`null`:   0,
		`""`:     0,
		`12.9`:   12,
		`false`:  0,
		`"-3"`:   -3,
		`900000`: 900000,
	}
	for in, want := range cases {
		var f flexInt
		require.NoError(t, json.Unmarshal([]byte(in), &f), in)
		assert.Equal(t, want, int64(f), in)
	}

	var f flexInt
	assert.Error(t, json.Unmarshal([]byte(`"many"`), &f))
}

func TestFlexRatings(t *testing.T) {
	var r flexRatings
	require.NoError(t, json.Unmarshal([]byte(`{"5":"10","4":2,"x":3,"9":1}`), &r))
	assert.Equal(t, map[int]int64{5: 10, 4: 2}, r.distribution())

	var empty flexRatings
	require.NoError(t, json.Unmarshal([]byte(`[]`), &empty))
	assert.Nil(t, empty.distribution())
}

func TestFlexTags(t *testing.T) {
	var obj flexTags
	require.NoError(t, json.Unmarshal([]byte(`{"seo":"SEO","analytics":"Analytics"}`), &obj))
	assert.Equal(t, []string{"analytics", "seo"}, obj.slugs())

	var arr flexTags
	require.NoError(t, json.Unmarshal([]byte(`["b","a","b"," "]`), &arr))
	assert.Equal(t, []string{"a", "b"}, arr.slugs())
}

func TestToRecord_NegativeCountsClamped(t *testing.T) {
	p := rawPlugin{Slug: "weird", NumRatings: -5, ActiveInstalls: -1}
	rec, err := p.toRecord()
	require.NoError(t, err)
	assert.Zero(t, rec.NumRatings)
	assert.Zero(t, rec.ActiveInstalls)
}

func TestToRecord_OnlyResolvedIsAbsent(t *testing.T) {
	resolved := flexInt(3)
	rec, err := rawPlugin{Slug: "half", SupportThreadsResolved: &resolved}.toRecord()
	require.NoError(t, err)
	assert.Nil(t, rec.Support)
}

func TestStripTags(t *testing.T) {
	assert.Equal(t, "Jane & John", stripTags(`<a href="https://example.org">Jane &amp; John</a>`))
	assert.Equal(t, "plain", stripTags("plain"))
}
