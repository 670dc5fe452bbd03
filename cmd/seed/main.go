// Command seed fills the development database with demo users and chats.
package main

import (
	"flag"
	"log"

	"parley/internal/config"
	"parley/internal/database"
	"parley/internal/seed"
)

func main() {
	numUsers := flag.Int("users", 25, "Number of users to create")
	numGroups := flag.Int("groups", 5, "Number of group chats to create")
	perChat := flag.Int("messages", 40, "Messages per chat")
	contacts := flag.Int("contacts", 3, "Accepted contacts per user")
	clean := flag.Bool("clean", true, "Clear existing data before seeding")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	s, err := seed.NewSeeder(db.Primary)
	if err != nil {
		log.Fatalf("Failed to build seeder: %v", err)
	}

	if *clean {
		if err := s.ClearAll(); err != nil {
			log.Fatalf("Cleanup failed: %v", err)
		}
	}

	if err := s.Run(seed.Options{
		Users:           *numUsers,
		GroupChats:      *numGroups,
		MessagesPerChat: *perChat,
		ContactsPerUser: *contacts,
	}); err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	log.Println("Done.")
}
