// Package testing provides a conformance suite for audit.Log stores.
package testing

import (
	"context"
	"testing"
	"time"

	"github.com/marmos91/cascview/pkg/audit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// LogTestSuite tests the audit.Log contract against any store.
type LogTestSuite struct {
	// NewLog returns an empty store. The suite closes it.
	NewLog func(t *testing.T) audit.Log
}

// Run executes all tests in the suite.
func (suite *LogTestSuite) Run(t *testing.T) {
	t.Run("AppendAssignsSequence", suite.testAppendAssignsSequence)
	t.Run("PassesAreIsolated", suite.testPassesAreIsolated)
	t.Run("KeepsExplicitTime", suite.testKeepsExplicitTime)
	t.Run("UnknownPass", suite.testUnknownPass)
	t.Run("Closed", suite.testClosed)
}

func (suite *LogTestSuite) newLog(t *testing.T) audit.Log {
	t.Helper()
	l := suite.NewLog(t)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func (suite *LogTestSuite) testAppendAssignsSequence(t *testing.T) {
	ctx := context.Background()
	l := suite.newLog(t)

	first, err := l.Append(ctx, audit.Record{PassID: "p1", Kind: audit.KindRename, ID: 100, Hash: 0xAA, Name: `unknown\a.ogg`})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), first.Seq)
	assert.False(t, first.Time.IsZero())

	second, err := l.Append(ctx, audit.Record{PassID: "p1", Kind: audit.KindSniff, ID: audit.NoID, Hash: 0xBB, Name: `unknown\00000000000000BB.m2`})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), second.Seq)

	records, err := l.Records(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "p1", records[0].PassID)
	assert.Equal(t, audit.KindRename, records[0].Kind)
	assert.Equal(t, int32(100), records[0].ID)
	assert.Equal(t, `100;unknown\a.ogg`, records[0].Line())
	assert.Equal(t, `unknown\00000000000000BB.m2`, records[1].Line())
}

func (suite *LogTestSuite) testPassesAreIsolated(t *testing.T) {
	ctx := context.Background()
	l := suite.newLog(t)

	for _, pass := range []string{"first", "second", "first"} {
		_, err := l.Append(ctx, audit.Record{PassID: pass, Kind: audit.KindCandidate, Name: pass})
		require.NoError(t, err)
		time.Sleep(time.Millisecond)
	}

	passes, err := l.Passes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, passes)

	records, err := l.Records(ctx, "first")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, uint64(2), records[1].Seq)

	records, err = l.Records(ctx, "second")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, uint64(1), records[0].Seq)
}

func (suite *LogTestSuite) testKeepsExplicitTime(t *testing.T) {
	ctx := context.Background()
	l := suite.newLog(t)

	at := time.Date(2024, 8, 1, 12, 0, 0, 0, time.UTC)
	_, err := l.Append(ctx, audit.Record{PassID: "p", Time: at, Name: "x"})
	require.NoError(t, err)

	records, err := l.Records(ctx, "p")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, at.Equal(records[0].Time))
}

func (suite *LogTestSuite) testUnknownPass(t *testing.T) {
	l := suite.newLog(t)

	records, err := l.Records(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func (suite *LogTestSuite) testClosed(t *testing.T) {
	l := suite.NewLog(t)
	require.NoError(t, l.Close())

	_, err := l.Append(context.Background(), audit.Record{PassID: "p", Name: "x"})
	assert.ErrorIs(t, err, audit.ErrClosed)
}
