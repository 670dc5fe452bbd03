package seed

import (
	"fmt"
	"log"
	"sort"
	"time"

	"parley/internal/models"

	"gorm.io/gorm"
)

// Options controls the size of a demo seed.
type Options struct {
	Users           int
	GroupChats      int
	MessagesPerChat int
	ContactsPerUser int
}

// Seeder fills a database with a connected mesh of demo accounts and chats.
type Seeder struct {
	db      *gorm.DB
	factory *Factory
}

// NewSeeder builds a seeder on the given database handle.
func NewSeeder(db *gorm.DB) (*Seeder, error) {
	factory, err := NewFactory(db)
	if err != nil {
		return nil, err
	}
	return &Seeder{db: db, factory: factory}, nil
}

// ClearAll truncates every seeded table. Sessions go too, since their user
// rows do.
func (s *Seeder) ClearAll() error {
	tables := []any{
		&models.DeliveryRecord{}, &models.Reaction{}, &models.MessageEdit{},
		&models.Message{}, &models.Participant{}, &models.Chat{},
		&models.Contact{}, &models.Session{}, &models.User{},
	}
	for _, table := range tables {
		if err := s.db.Unscoped().Where("1 = 1").Delete(table).Error; err != nil {
			return fmt.Errorf("clearing %T: %w", table, err)
		}
	}
	return nil
}

// Run seeds users, a contact mesh, direct and group chats, and message
// history. The first user is always "demo" for predictable manual logins.
func (s *Seeder) Run(opts Options) error {
	if opts.Users < 2 {
		opts.Users = 2
	}

	users := make([]*models.User, 0, opts.Users)
	demo, err := s.factory.CreateUser(func(u *models.User) {
		u.Username = "demo"
		u.DisplayName = "Demo User"
	})
	if err != nil {
		return err
	}
	users = append(users, demo)

	for i := 1; i < opts.Users; i++ {
		u, err := s.factory.CreateUser()
		if err != nil {
			return err
		}
		users = append(users, u)
	}
	log.Printf("seeded %d users (password %q)", len(users), DefaultPassword)

	// Contact mesh: each user befriends the next few in the ring.
	for i, u := range users {
		for j := 1; j <= opts.ContactsPerUser; j++ {
			other := users[(i+j)%len(users)]
			if other.ID == u.ID {
				continue
			}
			// The reverse edge already created both rows.
			if err := s.factory.CreateContactPair(u, other); err != nil {
				continue
			}
		}
	}

	// One direct chat per ring neighbour pair.
	chats := make([]*models.Chat, 0)
	for i := range users {
		partner := users[(i+1)%len(users)]
		chat, err := s.factory.CreateDirectChat(users[i], partner)
		if err != nil {
			return err
		}
		chats = append(chats, chat)
	}

	for i := 0; i < opts.GroupChats; i++ {
		owner := users[s.factory.rng.Intn(len(users))]
		members := pickOthers(s.factory, users, owner, 3+s.factory.rng.Intn(5))
		chat, err := s.factory.CreateGroupChat(owner, members)
		if err != nil {
			return err
		}
		chats = append(chats, chat)
	}
	log.Printf("seeded %d chats", len(chats))

	total := 0
	for _, chat := range chats {
		times := make([]time.Time, opts.MessagesPerChat)
		for i := range times {
			times[i] = s.factory.pastTime(30)
		}
		sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

		for _, at := range times {
			p := chat.Participants[s.factory.rng.Intn(len(chat.Participants))]
			sender := &models.User{ID: p.UserID}
			if _, err := s.factory.CreateMessage(chat, sender, at); err != nil {
				return err
			}
			total++
		}
	}
	log.Printf("seeded %d messages", total)
	return nil
}

func pickOthers(f *Factory, users []*models.User, exclude *models.User, n int) []*models.User {
	picked := make([]*models.User, 0, n)
	seen := map[uint]bool{exclude.ID: true}
	for len(picked) < n && len(seen) < len(users) {
		u := users[f.rng.Intn(len(users))]
		if seen[u.ID] {
			continue
		}
		seen[u.ID] = true
		picked = append(picked, u)
	}
	return picked
}
