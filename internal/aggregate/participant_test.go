package aggregate

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// ==================== rewardWindow ====================

func TestRewardWindow_Current_FiveEpochsBack(t *testing.T) {
	ids := rewardWindow(10, true, 10)
	require.Equal(t, []uint64{9, 8, 7, 6, 5}, ids)
}

func TestRewardWindow_Current_ClipsAtZero(t *testing.T) {
	ids := rewardWindow(2, true, 2)
	require.Equal(t, []uint64{1}, ids)
}

func TestRewardWindow_Historical_SixEpochWindow(t *testing.T) {
	ids := rewardWindow(10, false, 20)
	require.ElementsMatch(t, []uint64{5, 6, 7, 8, 9, 10}, ids)
}

func TestRewardWindow_FutureEpoch_Empty(t *testing.T) {
	ids := rewardWindow(25, false, 20)
	require.Nil(t, ids)
}
