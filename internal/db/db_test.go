package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/gopherchat/internal/chat"
	"github.com/suPer8Hu/gopherchat/internal/contact"
	"github.com/suPer8Hu/gopherchat/internal/models"
)

func TestConnectAndMigrate_SQLite(t *testing.T) {
	gdb, err := Connect("sqlite", filepath.Join(t.TempDir(), "app.db"), nil)
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, Migrate(gdb))
	// idempotent
	require.NoError(t, Migrate(gdb))

	m := gdb.Migrator()
	for _, model := range []any{&models.User{}, &contact.Contact{}, &chat.Thread{}, &chat.Message{}} {
		require.True(t, m.HasTable(model), "%T", model)
	}
	require.True(t, m.HasIndex(&chat.Thread{}, "uniq_chat_thread_pair"))
	require.True(t, m.HasIndex(&chat.Message{}, "idx_chat_msg_order"))
}

func TestConnect_UnknownDriver(t *testing.T) {
	_, err := Connect("postgres", "", nil)
	require.Error(t, err)
}
