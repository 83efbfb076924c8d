package usermap

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/codeready-toolchain/discubot/pkg/domain"
)

func mappingWith(destUserName, sourceUserName, destUserID string) domain.UserMapping {
	return domain.UserMapping{
		DestUserName:   destUserName,
		SourceUserName: sourceUserName,
		DestUserID:     destUserID,
	}
}

func TestSnapshot_ByUserIDAndByHandle(t *testing.T) {
	snap := &Snapshot{
		byUserID: map[string]Entry{"U123": {DestUserID: "dest-1", DisplayName: "Ada"}},
		byHandle: map[string]Entry{"ada": {DestUserID: "dest-1", DisplayName: "Ada"}},
	}

	byID, ok := snap.ByUserID("U123")
	assert.True(t, ok)
	assert.Equal(t, "dest-1", byID.DestUserID)

	byHandle, ok := snap.ByHandle("ada")
	assert.True(t, ok)
	assert.Equal(t, "Ada", byHandle.DisplayName)

	_, ok = snap.ByUserID("unknown")
	assert.False(t, ok)
}

func TestNewEmptySnapshot_ResolvesNothing(t *testing.T) {
	snap := NewEmptySnapshot()

	_, ok := snap.ByUserID("anyone")
	assert.False(t, ok)
	_, ok = snap.ByHandle("anyone")
	assert.False(t, ok)
}

func TestDisplayName_PrefersDestThenSourceThenID(t *testing.T) {
	assert.Equal(t, "Dest Name", displayName(mappingWith("Dest Name", "source-handle", "dest-id")))
	assert.Equal(t, "source-handle", displayName(mappingWith("", "source-handle", "dest-id")))
	assert.Equal(t, "dest-id", displayName(mappingWith("", "", "dest-id")))
}
