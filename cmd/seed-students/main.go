package main

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/vigilo/vigilo-backend/internal/config"
	"github.com/vigilo/vigilo-backend/internal/database"
	"github.com/vigilo/vigilo-backend/internal/logger"
	"github.com/vigilo/vigilo-backend/internal/model"
	"github.com/vigilo/vigilo-backend/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	domain := flag.String("domain", "vigilo.test", "organization domain the seeded students belong to")
	password := flag.String("password", "vigilo-seed", "plaintext password shared by all seeded students")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	studentRepo := repository.NewStudentRepository(pool)

	fmt.Printf("=== Seeding 50 Students for %s ===\n", *domain)

	hashed, err := bcrypt.GenerateFromPassword([]byte(*password), cfg.BcryptCost)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to hash seed password")
	}

	names := []string{
		"Budi Santoso", "Siti Aminah", "Andi Pratama", "Rina Wati", "Joko Susilo",
		"Ayu Lestari", "Dodi Kusuma", "Eka Putri", "Fahri Hamzah", "Gita Savitri",
		"Hendra Gunawan", "Ika Sari", "Jamal Mirdad", "Kiki Fatmala", "Lukman Hakim",
		"Maya Septiana", "Nanda Pratama", "Oki Setiana", "Putri Dian", "Qori Maharani",
		"Rafi Ahmad", "Siska Saraswati", "Toni Setiawan", "Umi Kalsum", "Vina Panduwinata",
		"Wahyu Hidayat", "Xena Maharani", "Yudi Pratama", "Zaki Anwar", "Alifia Zahra",
		"Bagas Saputra", "Citra Kirana", "Dimas Anggara", "Elisa Novita", "Fikri Maulana",
		"Gali Rakasiwi", "Hani Hanifah", "Iqbal Ramadhan", "Jasmine Azzahra", "Kevin Sanjaya",
		"Larasati Dewi", "Miko Pambudi", "Nia Ramadhani", "Oscar Lawalata", "Puput Melati",
		"Reza Rahadian", "Sari Nila", "Tigor Siahaan", "Utari Maharani", "Vicky Prasetyo",
	}

	students := make([]model.Student, 0, len(names))
	for i, name := range names {
		local := strings.ToLower(strings.ReplaceAll(name, " ", "."))
		students = append(students, model.Student{
			Name:         name,
			Email:        fmt.Sprintf("%s%02d@%s", local, i+1, *domain),
			Domain:       *domain,
			PasswordHash: string(hashed),
		})
	}

	inserted, err := studentRepo.BulkCreate(ctx, students)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to seed students")
	}

	fmt.Printf("\nSeed completed! Successfully added %d/%d students.\n", inserted, len(names))
}
