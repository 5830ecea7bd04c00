package models

import "time"

// MentoringSession is a mentor's catalog entry that reservations book.
type MentoringSession struct {
	ID          string    `db:"id" json:"id"`
	MentorID    string    `db:"mentor_id" json:"mentor_id"`
	Title       string    `db:"title" json:"title"`
	Description string    `db:"description" json:"description"`
	Price       int64     `db:"price" json:"price"`
	Duration    int       `db:"duration" json:"duration"`
	Public      bool      `db:"public" json:"public"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}
