package oplog_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NEO6667/Collaborative-Canvas/internal/domain"
	"github.com/NEO6667/Collaborative-Canvas/internal/oplog"
)

// makeOp 构造一条测试用操作。
func makeOp(roomID, opID, authorID string) domain.Operation {
	return domain.Operation{
		OperationID: opID,
		RoomID:      roomID,
		AuthorID:    authorID,
		AuthorColor: "#FF6B6B",
		Tool:        domain.ToolBrush,
		Color:       "#000000",
		Size:        4,
		Path:        []domain.Point{{X: 1, Y: 2}, {X: 3, Y: 4}},
		CreatedAt:   1700000000000,
	}
}

func TestStore_Undo_GlobalLIFO(t *testing.T) {
	// Arrange: 不同作者的三条操作
	store := oplog.NewStore(0)
	store.Append(makeOp("r1", "op-1", "alice"))
	store.Append(makeOp("r1", "op-2", "bob"))
	store.Append(makeOp("r1", "op-3", "carol"))

	// Act: 任何人的 undo 都移除最后一条，与作者无关
	removed := store.Undo("r1")

	// Assert
	require.NotNil(t, removed, "非空日志的 undo 应返回操作")
	assert.Equal(t, "op-3", removed.OperationID)
	assert.Equal(t, "carol", removed.AuthorID)

	history := store.List("r1")
	require.Len(t, history, 2)
	assert.Equal(t, "op-1", history[0].OperationID)
	assert.Equal(t, "op-2", history[1].OperationID)

	// 撤销后的操作不再出现在索引中
	_, found := store.Lookup("r1", "op-3")
	assert.False(t, found, "被撤销的操作不应能通过 Lookup 找到")
}

func TestStore_Undo_EmptyLogIsNoop(t *testing.T) {
	store := oplog.NewStore(0)

	assert.Nil(t, store.Undo("r1"), "空日志的 undo 应返回 nil")

	// undo 只读路径不应惰性创建房间
	store.Append(makeOp("r1", "op-1", "alice"))
	store.Undo("r1")
	assert.Nil(t, store.Undo("r1"), "history 再次为空后 undo 应返回 nil")
}

func TestStore_Redo_RestoresIdentity(t *testing.T) {
	// Arrange
	store := oplog.NewStore(0)
	original := store.Append(makeOp("r1", "op-1", "alice"))
	removed := store.Undo("r1")
	require.NotNil(t, removed)

	// Act
	restored := store.Redo("r1")

	// Assert: 恢复的操作与被撤销的操作在所有字段上相等（包括 OperationID）
	require.NotNil(t, restored)
	assert.Equal(t, original, *restored, "redo 应原样恢复被撤销的操作")

	history := store.List("r1")
	require.Len(t, history, 1)
	assert.Equal(t, "op-1", history[0].OperationID)

	_, found := store.Lookup("r1", "op-1")
	assert.True(t, found, "恢复后的操作应重新进入索引")
}

func TestStore_Redo_EmptyStackIsNoop(t *testing.T) {
	store := oplog.NewStore(0)
	assert.Nil(t, store.Redo("r1"))

	store.Append(makeOp("r1", "op-1", "alice"))
	assert.Nil(t, store.Redo("r1"), "没有 undo 时 redo 应返回 nil")
}

func TestStore_Append_InvalidatesPendingRedo(t *testing.T) {
	// Arrange: append A, B; undo 移除 B
	store := oplog.NewStore(0)
	store.Append(makeOp("r1", "op-a", "alice"))
	store.Append(makeOp("r1", "op-b", "bob"))
	require.NotNil(t, store.Undo("r1"))

	// Act: 新的创作 C 清空待重做栈
	store.Append(makeOp("r1", "op-c", "carol"))

	// Assert
	assert.Nil(t, store.Redo("r1"), "新操作之后 redo 应返回 nil，B 的待重做已失效")

	history := store.List("r1")
	require.Len(t, history, 2)
	assert.Equal(t, "op-a", history[0].OperationID)
	assert.Equal(t, "op-c", history[1].OperationID)
}

func TestStore_BoundedHistory_EvictsOldest(t *testing.T) {
	// Arrange: 上限 5，追加 6 条
	const limit = 5
	store := oplog.NewStore(limit)
	for i := 0; i < limit+1; i++ {
		store.Append(makeOp("r1", fmt.Sprintf("op-%d", i), "alice"))
	}

	// Assert: 正好保留 limit 条，最旧的被淘汰
	history := store.List("r1")
	require.Len(t, history, limit)
	assert.Equal(t, "op-1", history[0].OperationID, "最旧的操作应被淘汰")
	assert.Equal(t, fmt.Sprintf("op-%d", limit), history[limit-1].OperationID)

	// 被淘汰的操作从索引中消失，且没有进入 undone（redo 拿不回它）
	_, found := store.Lookup("r1", "op-0")
	assert.False(t, found, "被淘汰的操作不应能通过 Lookup 找到")
	assert.Nil(t, store.Redo("r1"), "淘汰不等于撤销，不应产生可重做的操作")
}

func TestStore_DefaultLimit(t *testing.T) {
	// 上限 = 1000：追加 MAX_HISTORY+1 条后正好剩 MAX_HISTORY 条
	store := oplog.NewStore(0)
	for i := 0; i < oplog.DefaultMaxHistory+1; i++ {
		store.Append(makeOp("r1", fmt.Sprintf("op-%d", i), "alice"))
	}
	assert.Len(t, store.List("r1"), oplog.DefaultMaxHistory)
}

func TestStore_Clear(t *testing.T) {
	store := oplog.NewStore(0)
	store.Append(makeOp("r1", "op-1", "alice"))
	store.Append(makeOp("r1", "op-2", "alice"))
	store.Undo("r1")

	store.Clear("r1")

	assert.Empty(t, store.List("r1"))
	assert.Nil(t, store.Redo("r1"), "clear 同时清空 undone 栈")
	_, found := store.Lookup("r1", "op-1")
	assert.False(t, found)
}

func TestStore_RoomsAreIndependent(t *testing.T) {
	store := oplog.NewStore(0)
	store.Append(makeOp("r1", "op-1", "alice"))
	store.Append(makeOp("r2", "op-2", "bob"))

	require.NotNil(t, store.Undo("r1"))

	// r1 的 undo 不影响 r2
	history := store.List("r2")
	require.Len(t, history, 1)
	assert.Equal(t, "op-2", history[0].OperationID)
}

func TestStore_Drop(t *testing.T) {
	store := oplog.NewStore(0)
	store.Append(makeOp("r1", "op-1", "alice"))

	store.Drop("r1")

	assert.Empty(t, store.List("r1"), "Drop 之后房间日志应为空")
	assert.Nil(t, store.Redo("r1"))
	_, found := store.Lookup("r1", "op-1")
	assert.False(t, found)
}

func TestStore_ListUnknownRoomDoesNotCreate(t *testing.T) {
	store := oplog.NewStore(0)
	assert.Empty(t, store.List("ghost"), "未知房间的 List 应返回空切片")
	_, found := store.Lookup("ghost", "op-1")
	assert.False(t, found)
}
