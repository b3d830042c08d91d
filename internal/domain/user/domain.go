package user

import "time"

type User struct {
	ID        int64     `json:"id"`
	SubjectID string    `json:"-"`
	DeviceID  string    `json:"-"`
	Email     string    `json:"email"`
	Name      *string   `json:"name"`
	LastLogin time.Time `json:"last_login"`
	CreatedAt time.Time `json:"created_at"`
}
