//go:build cgo

package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unsafegraph/internal/testutil"
)

func TestRun_TreeSitterScanner(t *testing.T) {
	h := newHarness(t)
	a := New(h.cfg, h.fixture.Root, nil, WithLoader(h.loader), WithGraphBuilder(h.builder))

	res, err := a.Run(context.Background())
	require.NoError(t, err)

	testutil.CompareGoldenJSON(t, h.fixture, "findings.json", res.Scan.Result.Findings)
	assert.Equal(t, 8, res.Report.Summary.Tainted)
	assert.Equal(t, 3, res.Report.Summary.Unobserved)
	assert.Empty(t, res.Scan.Diagnostics)
}
