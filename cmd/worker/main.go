package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BiodunDevv/UniTrack-Backend-sub000/internal/config"
	"github.com/BiodunDevv/UniTrack-Backend-sub000/internal/mailer"
	"github.com/BiodunDevv/UniTrack-Backend-sub000/internal/queue"
	"github.com/BiodunDevv/UniTrack-Backend-sub000/internal/roster"
	"github.com/BiodunDevv/UniTrack-Backend-sub000/internal/store"
)

// Worker consumes session-started events and emails the enrolled students.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "attendance:sessions")
	}

	people := roster.NewRepository(db.Client)
	mail := mailer.New(cfg.MailRelayURL, cfg.MailRelayKey, cfg.MailFrom, cfg.MailSkip)

	// Check mail relay health on startup
	if !cfg.MailSkip {
		if err := mail.Health(ctx); err != nil {
			log.Printf("WARNING: mail relay not available: %v", err)
			log.Println("Worker will retry delivery when events arrive")
		} else {
			log.Println("Mail relay connected")
		}
	}

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for session events...")
	for msg := range messages {
		if msg.Type != "session_started" {
			continue
		}

		var evt queue.SessionStarted
		if err := json.Unmarshal(msg.Body, &evt); err != nil {
			log.Printf("bad session event payload: %v", err)
			continue
		}
		log.Printf("processing session %s (%s)", evt.SessionID, evt.CourseCode)

		emails, err := people.EnrolledEmails(ctx, evt.CourseID)
		if err != nil {
			log.Printf("enrolled emails for %s failed: %v", evt.CourseID, err)
			continue
		}
		if len(emails) == 0 {
			log.Printf("session %s: no enrolled students with emails", evt.SessionID)
			continue
		}

		sent := 0
		body := mailer.SessionStartedBody(evt.CourseCode, evt.TeacherName, evt.Code, evt.ExpiresAt)
		for _, to := range emails {
			err := mail.Send(ctx, mailer.Email{
				To:      []string{to},
				Subject: evt.CourseCode + " attendance session open",
				Body:    body,
			})
			if err != nil {
				log.Printf("send to %s failed: %v", to, err)
				continue
			}
			sent++
			time.Sleep(10 * time.Millisecond) // Small delay between sends
		}
		log.Printf("session %s: notified %d/%d students", evt.SessionID, sent, len(emails))
	}

	log.Println("worker stopped")
}
