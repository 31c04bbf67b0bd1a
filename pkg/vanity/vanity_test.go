package vanity

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ninja0404/pump-bundler/pkg/types"
)

func TestPatternValidate(t *testing.T) {
	assert.ErrorIs(t, Pattern{}.Validate(), types.ErrInvalidConfig)
	assert.ErrorIs(t, Pattern{Suffix: "p0mp"}.Validate(), types.ErrInvalidConfig)
	assert.NoError(t, Pattern{Suffix: "pump"}.Validate())
	// 'L' is valid base58 and 'l' is not, but case-insensitive search can use either
	assert.NoError(t, Pattern{Prefix: "l", CaseInsensitive: true}.Validate())
}

func TestPatternMatch(t *testing.T) {
	p := Pattern{Prefix: "Ab", Suffix: "pump"}
	assert.True(t, p.Match("Ab123pump"))
	assert.False(t, p.Match("ab123pump"))
	assert.True(t, Pattern{Prefix: "ab", CaseInsensitive: true}.Match("AB99"))
}

func TestDifficulty(t *testing.T) {
	assert.Equal(t, uint64(58*58), Pattern{Prefix: "a", Suffix: "b"}.Difficulty())
}

func TestSearchSingleChar(t *testing.T) {
	s := Searcher{Workers: 2, Timeout: 30 * time.Second, Log: zerolog.Nop()}
	res, err := s.Search(context.Background(), Pattern{Prefix: "A"})
	require.NoError(t, err)
	assert.Equal(t, byte('A'), res.Key.PublicKey().String()[0])
	assert.GreaterOrEqual(t, res.Attempts, uint64(1))
}

func TestSearchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Searcher{Workers: 1, Log: zerolog.Nop()}.Search(ctx, Pattern{Suffix: "zzzzzzzz"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMintKeyWithoutPattern(t *testing.T) {
	key, err := Searcher{}.MintKey(context.Background(), Pattern{})
	require.NoError(t, err)
	assert.Len(t, key, 64)
}
