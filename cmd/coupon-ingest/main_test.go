package main

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/engage-orders/internal/domain/coupon"
)

func writeList(t *testing.T, dir, name string, codes ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte(strings.Join(codes, "\n") + "\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
	return path
}

func TestMatchCodes(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		writeList(t, dir, "a.gz", "vip001", "HALF10", "ONLYA1", "x"),
		writeList(t, dir, "b.gz", "VIP001", "FLAT99", "ONLYB1"),
		writeList(t, dir, "c.gz", "HALF10", "FLAT99", "ONLYC1", "bad code!"),
	}

	got, err := matchCodes(context.Background(), files, 2, 1000)
	require.NoError(t, err)
	sort.Strings(got)
	assert.Equal(t, []string{"FLAT99", "HALF10", "VIP001"}, got)

	got, err = matchCodes(context.Background(), files, 3, 1000)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMatchCodes_MissingFile(t *testing.T) {
	_, err := matchCodes(context.Background(), []string{filepath.Join(t.TempDir(), "nope.gz")}, 1, 10)
	require.Error(t, err)
}

func TestRuleFor(t *testing.T) {
	assert.Equal(t, coupon.DiscountFixed, ruleFor("FLAT99").kind)
	assert.Equal(t, "VIP partner", ruleFor("VIP001").name)
	assert.Equal(t, defaultRule, ruleFor("SPRING24"))
}
