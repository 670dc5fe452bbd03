package seed

import (
	"testing"

	"parley/internal/database"
	"parley/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestSeederRun(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	s, err := NewSeeder(db)
	require.NoError(t, err)

	require.NoError(t, s.Run(Options{
		Users:           5,
		GroupChats:      2,
		MessagesPerChat: 3,
		ContactsPerUser: 1,
	}))

	var userCount, chatCount, msgCount, recordCount int64
	db.Model(&models.User{}).Count(&userCount)
	db.Model(&models.Chat{}).Count(&chatCount)
	db.Model(&models.Message{}).Count(&msgCount)
	db.Model(&models.DeliveryRecord{}).Count(&recordCount)

	assert.EqualValues(t, 5, userCount)
	// One direct chat per ring pair plus the requested groups.
	assert.EqualValues(t, 7, chatCount)
	assert.EqualValues(t, 21, msgCount)
	assert.NotZero(t, recordCount)

	var demo models.User
	require.NoError(t, db.Where("username = ?", "demo").First(&demo).Error)

	t.Run("clear removes everything", func(t *testing.T) {
		require.NoError(t, s.ClearAll())
		db.Model(&models.User{}).Count(&userCount)
		assert.Zero(t, userCount)
	})
}
