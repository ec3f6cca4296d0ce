package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/learnbridge/tutoring-backend/internal/models"
)

func integrationPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	_ = godotenv.Load(filepath.Join("..", "..", ".env"))
	dbURL := os.Getenv("TEST_DB_URL")
	if dbURL == "" {
		t.Skip("skipping integration test: TEST_DB_URL is not set")
	}

	pool, err := pgxpool.New(context.Background(), dbURL)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		t.Skipf("skipping integration test: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

type chatFixture struct {
	learnerID    uuid.UUID
	tutorUserID  uuid.UUID
	tutorID      uuid.UUID
	sessionID    uuid.UUID
	otherSession uuid.UUID
}

func seedChatFixture(t *testing.T, ctx context.Context, pool *pgxpool.Pool) chatFixture {
	t.Helper()

	fixture := chatFixture{learnerID: uuid.New(), tutorUserID: uuid.New()}
	if _, err := pool.Exec(ctx,
		`INSERT INTO profiles (user_id, email, first_name, last_name) VALUES ($1, $2, 'Lena', 'Park')`,
		fixture.learnerID, fmt.Sprintf("chat-learner-%s@example.com", fixture.learnerID),
	); err != nil {
		t.Fatalf("insert learner profile: %v", err)
	}
	if _, err := pool.Exec(ctx,
		`INSERT INTO profiles (user_id, email, first_name) VALUES ($1, $2, 'Omar')`,
		fixture.tutorUserID, fmt.Sprintf("chat-tutor-%s@example.com", fixture.tutorUserID),
	); err != nil {
		t.Fatalf("insert tutor profile: %v", err)
	}
	if err := pool.QueryRow(ctx,
		`INSERT INTO tutors (user_id, status, approved_at) VALUES ($1, 'approved', NOW()) RETURNING id`,
		fixture.tutorUserID,
	).Scan(&fixture.tutorID); err != nil {
		t.Fatalf("insert tutor: %v", err)
	}

	start := time.Date(2030, 6, 1, 15, 0, 0, 0, time.UTC)
	for _, target := range []*uuid.UUID{&fixture.sessionID, &fixture.otherSession} {
		if err := pool.QueryRow(ctx, `
			INSERT INTO tutoring_sessions (tutor_id, learner_id, title, scheduled_start, scheduled_end)
			VALUES ($1, $2, 'Chat session', $3, $4)
			RETURNING id
		`, fixture.tutorID, fixture.learnerID, start, start.Add(time.Hour)).Scan(target); err != nil {
			t.Fatalf("insert session: %v", err)
		}
	}

	t.Cleanup(func() {
		if _, err := pool.Exec(context.Background(), "DELETE FROM tutors WHERE id = $1", fixture.tutorID); err != nil {
			t.Fatalf("cleanup tutor: %v", err)
		}
		userIDs := []uuid.UUID{fixture.learnerID, fixture.tutorUserID}
		if _, err := pool.Exec(context.Background(), "DELETE FROM profiles WHERE user_id = ANY($1)", userIDs); err != nil {
			t.Fatalf("cleanup profiles: %v", err)
		}
	})
	return fixture
}

func insertMessageAt(t *testing.T, ctx context.Context, pool *pgxpool.Pool, sessionID, senderID uuid.UUID, content string, at time.Time) uuid.UUID {
	t.Helper()

	var id uuid.UUID
	if err := pool.QueryRow(ctx, `
		INSERT INTO messages (session_id, sender_id, content, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, sessionID, senderID, content, at).Scan(&id); err != nil {
		t.Fatalf("insert message %q: %v", content, err)
	}
	return id
}

func TestListBySessionOrdersByCreationAndFiltersSession(t *testing.T) {
	ctx := context.Background()
	pool := integrationPool(t)
	fixture := seedChatFixture(t, ctx, pool)
	repo := NewMessageRepository(pool)

	base := time.Date(2030, 6, 1, 15, 5, 0, 0, time.UTC)
	insertMessageAt(t, ctx, pool, fixture.sessionID, fixture.tutorUserID, "third", base.Add(2*time.Minute))
	insertMessageAt(t, ctx, pool, fixture.sessionID, fixture.learnerID, "first", base)
	insertMessageAt(t, ctx, pool, fixture.otherSession, fixture.learnerID, "elsewhere", base.Add(time.Minute))
	insertMessageAt(t, ctx, pool, fixture.sessionID, fixture.learnerID, "second", base.Add(time.Minute))

	messages, err := repo.ListBySession(ctx, fixture.sessionID)
	if err != nil {
		t.Fatalf("ListBySession: %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("expected 3 messages for the session, got %d", len(messages))
	}
	for i, want := range []string{"first", "second", "third"} {
		if messages[i].Content != want {
			t.Fatalf("message %d: expected %q, got %q", i, want, messages[i].Content)
		}
		if messages[i].SessionID != fixture.sessionID {
			t.Fatalf("message %d belongs to session %s", i, messages[i].SessionID)
		}
		if i > 0 && messages[i].CreatedAt.Before(messages[i-1].CreatedAt) {
			t.Fatalf("messages out of order at %d", i)
		}
	}

	learner := messages[0].Sender
	if learner == nil || learner.FirstName == nil || *learner.FirstName != "Lena" || learner.LastName == nil || *learner.LastName != "Park" {
		t.Fatalf("unexpected learner sender: %+v", learner)
	}
	tutor := messages[2].Sender
	if tutor == nil || tutor.FirstName == nil || *tutor.FirstName != "Omar" || tutor.LastName != nil {
		t.Fatalf("unexpected tutor sender: %+v", tutor)
	}
	if messages[0].Type != models.MessageText {
		t.Fatalf("expected default text type, got %q", messages[0].Type)
	}

	empty, err := repo.ListBySession(ctx, uuid.New())
	if err != nil {
		t.Fatalf("ListBySession unknown session: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty non-nil history, got %#v", empty)
	}
}

func TestGetWithSenderJoinsProfile(t *testing.T) {
	ctx := context.Background()
	pool := integrationPool(t)
	fixture := seedChatFixture(t, ctx, pool)
	repo := NewMessageRepository(pool)

	fileURL := "https://files.example.com/notes.pdf"
	created, err := repo.Create(ctx, CreateMessageInput{
		SessionID: fixture.sessionID,
		SenderID:  fixture.learnerID,
		Content:   "notes.pdf",
		Type:      models.MessageFile,
		FileURL:   &fileURL,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	message, err := repo.GetWithSender(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetWithSender: %v", err)
	}
	if message.Type != models.MessageFile || message.FileURL == nil || *message.FileURL != fileURL {
		t.Fatalf("unexpected message: %+v", message)
	}
	if message.Sender == nil || message.Sender.Email == nil || *message.Sender.Email != fmt.Sprintf("chat-learner-%s@example.com", fixture.learnerID) {
		t.Fatalf("unexpected sender: %+v", message.Sender)
	}

	// A sender without a profile row still yields the message.
	orphanID := insertMessageAt(t, ctx, pool, fixture.sessionID, uuid.New(), "system", time.Now().UTC())
	orphan, err := repo.GetWithSender(ctx, orphanID)
	if err != nil {
		t.Fatalf("GetWithSender orphan: %v", err)
	}
	if orphan.Sender == nil || orphan.Sender.FirstName != nil || orphan.Sender.Email != nil {
		t.Fatalf("expected empty sender summary, got %+v", orphan.Sender)
	}
}
