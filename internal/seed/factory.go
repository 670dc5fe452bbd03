// Package seed creates demo data for development databases. Not wired into
// the server; the seed command is its only consumer.
package seed

import (
	"fmt"
	"math/rand"
	"time"

	"parley/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// DefaultPassword is the password every seeded account gets, hashed once and
// reused so large seeds do not spend minutes in bcrypt.
const DefaultPassword = "password123"

// Factory builds domain entities and persists them.
type Factory struct {
	db           *gorm.DB
	rng          *rand.Rand
	passwordHash string
}

// NewFactory creates a Factory bound to the given database handle.
func NewFactory(db *gorm.DB) (*Factory, error) {
	gofakeit.Seed(time.Now().UnixNano())

	hash, err := bcrypt.GenerateFromPassword([]byte(DefaultPassword), bcrypt.MinCost)
	if err != nil {
		return nil, err
	}
	return &Factory{
		db:           db,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
		passwordHash: string(hash),
	}, nil
}

// pastTime returns a timestamp spread over the last maxDays days.
func (f *Factory) pastTime(maxDays int) time.Time {
	back := time.Duration(f.rng.Intn(maxDays*24*60)) * time.Minute
	return time.Now().Add(-back)
}

// CreateUser persists a sample user. Overrides run before saving.
func (f *Factory) CreateUser(overrides ...func(*models.User)) (*models.User, error) {
	username := fmt.Sprintf("%s%d", gofakeit.Username(), gofakeit.Number(100, 999))
	user := &models.User{
		Username:    username,
		DisplayName: gofakeit.Name(),
		AvatarRef:   fmt.Sprintf("avatars/%s.png", gofakeit.UUID()),
		Password:    f.passwordHash,
		Status:      models.StatusOffline,
		CreatedAt:   f.pastTime(180),
	}
	for _, override := range overrides {
		override(user)
	}
	if err := f.db.Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// CreateDirectChat creates a direct chat between two users.
func (f *Factory) CreateDirectChat(a, b *models.User) (*models.Chat, error) {
	chat := &models.Chat{
		Type:      models.ChatDirect,
		CreatedAt: f.pastTime(90),
		Participants: []models.Participant{
			{UserID: a.ID, Role: models.RoleMember, JoinedAt: time.Now()},
			{UserID: b.ID, Role: models.RoleMember, JoinedAt: time.Now()},
		},
	}
	if err := f.db.Create(chat).Error; err != nil {
		return nil, err
	}
	return chat, nil
}

// CreateGroupChat creates a group chat owned by the first user.
func (f *Factory) CreateGroupChat(owner *models.User, members []*models.User) (*models.Chat, error) {
	participants := []models.Participant{
		{UserID: owner.ID, Role: models.RoleOwner, JoinedAt: time.Now()},
	}
	for _, m := range members {
		participants = append(participants,
			models.Participant{UserID: m.ID, Role: models.RoleMember, JoinedAt: time.Now()})
	}

	chat := &models.Chat{
		Type:         models.ChatGroup,
		Name:         gofakeit.NounAbstract() + " " + gofakeit.NounCollectiveThing(),
		OwnerID:      &owner.ID,
		CreatedAt:    f.pastTime(90),
		Participants: participants,
	}
	if err := f.db.Create(chat).Error; err != nil {
		return nil, err
	}
	return chat, nil
}

// CreateMessage persists one message from sender into chat, along with a
// pending delivery record per other participant.
func (f *Factory) CreateMessage(chat *models.Chat, sender *models.User, createdAt time.Time) (*models.Message, error) {
	msg := &models.Message{
		ChatID:      chat.ID,
		SenderID:    &sender.ID,
		Content:     gofakeit.Sentence(f.rng.Intn(12) + 3),
		ContentType: models.ContentTypeText,
		CreatedAt:   createdAt,
	}
	if err := f.db.Create(msg).Error; err != nil {
		return nil, err
	}

	var records []models.DeliveryRecord
	for _, p := range chat.Participants {
		if p.UserID == sender.ID || p.LeftAt != nil {
			continue
		}
		status := models.DeliveryRead
		if f.rng.Intn(4) == 0 {
			status = models.DeliveryDelivered
		}
		deliveredAt := createdAt.Add(time.Duration(f.rng.Intn(120)) * time.Second)
		rec := models.DeliveryRecord{
			MessageID:   msg.ID,
			UserID:      p.UserID,
			Status:      status,
			DeliveredAt: &deliveredAt,
			CreatedAt:   createdAt,
		}
		if status == models.DeliveryRead {
			readAt := deliveredAt.Add(time.Duration(f.rng.Intn(3600)) * time.Second)
			rec.ReadAt = &readAt
		}
		records = append(records, rec)
	}
	if len(records) > 0 {
		if err := f.db.Create(&records).Error; err != nil {
			return nil, err
		}
	}

	err := f.db.Model(&models.Chat{}).Where("id = ?", chat.ID).
		Update("last_message_at", createdAt).Error
	return msg, err
}

// CreateContactPair creates an accepted contact relationship in both
// directions.
func (f *Factory) CreateContactPair(a, b *models.User) error {
	now := time.Now()
	rows := []models.Contact{
		{UserID: a.ID, ContactID: b.ID, Status: models.ContactAccepted, RequestedBy: a.ID, AcceptedAt: &now},
		{UserID: b.ID, ContactID: a.ID, Status: models.ContactAccepted, RequestedBy: a.ID, AcceptedAt: &now},
	}
	return f.db.Create(&rows).Error
}
