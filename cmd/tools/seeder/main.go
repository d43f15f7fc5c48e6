package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

// Demo profile ids are fixed so repeated runs line up with the same auth users.
var (
	adminID   = uuid.MustParse("00000000-0000-4000-8000-000000000001")
	supportID = uuid.MustParse("00000000-0000-4000-8000-000000000002")
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping DB: %v", err)
	}

	customers := seedProfiles(db)
	seedTechnicians(db)
	seedSlots(db, time.Now().UTC())
	seedTemplates(db)
	seedOrders(db, customers)
	seedInvoices(db, customers)

	log.Println("Seeding completed successfully!")
}

func seedProfiles(db *sql.DB) []uuid.UUID {
	profiles := []struct {
		ID    uuid.UUID
		Name  string
		Email string
		Role  string
		OptIn bool
	}{
		{adminID, "Admin User", "admin@telco.test", "admin", false},
		{supportID, "Support Desk", "support@telco.test", "support", false},
		{uuid.NewSHA1(uuid.NameSpaceURL, []byte("seed:amelia")), "Amelia Hart", "amelia@example.com", "customer", true},
		{uuid.NewSHA1(uuid.NameSpaceURL, []byte("seed:owen")), "Owen Price", "owen@example.com", "customer", true},
		{uuid.NewSHA1(uuid.NameSpaceURL, []byte("seed:isla")), "Isla Morgan", "isla@example.com", "customer", false},
		{uuid.NewSHA1(uuid.NameSpaceURL, []byte("seed:harry")), "Harry Lewis", "harry@example.com", "customer", true},
	}

	fmt.Println("Seeding Profiles...")
	var customers []uuid.UUID
	for _, p := range profiles {
		_, err := db.Exec(`
			INSERT INTO profiles (id, email, full_name, role, marketing_opt_in)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET role = EXCLUDED.role, marketing_opt_in = EXCLUDED.marketing_opt_in;
		`, p.ID, p.Email, p.Name, p.Role, p.OptIn)
		if err != nil {
			log.Printf("Failed to seed profile %s: %v", p.Email, err)
			continue
		}
		if p.Role == "customer" {
			customers = append(customers, p.ID)
		}
	}
	return customers
}

func seedTechnicians(db *sql.DB) {
	technicians := []struct {
		Name   string
		Email  string
		Region string
	}{
		{"Sam Carter", "sam.carter@telco.test", "north"},
		{"Priya Shah", "priya.shah@telco.test", "south"},
		{"Tom Reid", "tom.reid@telco.test", "london"},
	}

	fmt.Println("Seeding Technicians...")
	for _, t := range technicians {
		_, err := db.Exec(`
			INSERT INTO technicians (name, email, region, active)
			VALUES ($1, $2, $3, true)
			ON CONFLICT (email) DO UPDATE SET region = EXCLUDED.region;
		`, t.Name, t.Email, t.Region)
		if err != nil {
			log.Printf("Failed to seed technician %s: %v", t.Email, err)
		}
	}
}

func seedSlots(db *sql.DB, now time.Time) {
	blocks := []string{"08:00-12:00", "12:00-16:00", "16:00-20:00"}

	fmt.Println("Seeding Installation Slots...")
	start := now.Truncate(24 * time.Hour)
	for day := 1; day <= 14; day++ {
		date := start.AddDate(0, 0, day)
		if date.Weekday() == time.Sunday {
			continue
		}
		for _, block := range blocks {
			_, err := db.Exec(`
				INSERT INTO installation_slots (slot_date, time_block, capacity)
				VALUES ($1, $2, 4)
				ON CONFLICT (slot_date, time_block) DO NOTHING;
			`, date, block)
			if err != nil {
				log.Printf("Failed to seed slot %s %s: %v", date.Format("2006-01-02"), block, err)
			}
		}
	}
}

func seedTemplates(db *sql.DB) {
	templates := []struct {
		Name    string
		Subject string
		Body    string
	}{
		{"spring-upgrade", "Faster broadband is here", "<p>Upgrade to Full Fibre 900 and get your first three months half price.</p>"},
		{"mobile-bundle", "Add mobile and save", "<p>Bundle a SIM with your broadband and save every month.</p>"},
	}

	fmt.Println("Seeding Email Templates...")
	for _, t := range templates {
		_, err := db.Exec(`
			INSERT INTO email_templates (name, subject, body)
			VALUES ($1, $2, $3)
			ON CONFLICT (name) DO UPDATE SET subject = EXCLUDED.subject, body = EXCLUDED.body;
		`, t.Name, t.Subject, t.Body)
		if err != nil {
			log.Printf("Failed to seed template %s: %v", t.Name, err)
		}
	}
}

func seedOrders(db *sql.DB, customers []uuid.UUID) {
	orders := []struct {
		ServiceType string
		Plan        string
		Status      string
		Total       string
	}{
		{"broadband", "Full Fibre 500", "pending", "39.99"},
		{"broadband", "Full Fibre 900", "processing", "49.99"},
		{"mobile", "SIM Only 30GB", "active", "12.00"},
		{"tv", "Entertainment", "provisioning", "20.00"},
		{"landline", "Anytime Calls", "cancelled", "10.00"},
	}

	fmt.Println("Seeding Orders...")
	for i, o := range orders {
		if len(customers) == 0 {
			return
		}
		number := fmt.Sprintf("ORD-SEED-%04d", i+1)
		_, err := db.Exec(`
			INSERT INTO orders (order_number, user_id, service_type, plan_name, status, total)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (order_number) DO NOTHING;
		`, number, customers[i%len(customers)], o.ServiceType, o.Plan, o.Status, o.Total)
		if err != nil {
			log.Printf("Failed to seed order %s: %v", number, err)
		}
	}
}

func seedInvoices(db *sql.DB, customers []uuid.UUID) {
	if len(customers) == 0 {
		return
	}

	fmt.Println("Seeding Invoices...")
	// One overdue invoice so the dashboard widgets have something to show.
	var invoiceID string
	err := db.QueryRow(`
		INSERT INTO invoices (invoice_number, user_id, status, subtotal, vat, total, issue_date, due_date)
		VALUES ('INV-SEED-0001', $1, 'sent', 40.00, 8.00, 48.00, NOW() - INTERVAL '30 days', NOW() - INTERVAL '3 days')
		ON CONFLICT (invoice_number) DO UPDATE SET due_date = EXCLUDED.due_date
		RETURNING id;
	`, customers[0]).Scan(&invoiceID)
	if err != nil {
		log.Printf("Failed to seed invoice: %v", err)
		return
	}

	_, err = db.Exec(`
		INSERT INTO invoice_lines (invoice_id, description, quantity, unit_price, line_total)
		SELECT $1, 'Full Fibre 500 monthly', 1, 40.00, 40.00
		WHERE NOT EXISTS (SELECT 1 FROM invoice_lines WHERE invoice_id = $1);
	`, invoiceID)
	if err != nil {
		log.Printf("Failed to seed invoice line: %v", err)
	}
}
