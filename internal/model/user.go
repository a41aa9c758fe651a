package model

import "time"

type User struct {
	ID          string    `db:"id" json:"id"`
	Username    string    `db:"username" json:"username"`
	Email       *string   `db:"email" json:"email,omitempty"`
	Avatar      *string   `db:"avatar" json:"avatar,omitempty"`
	HasPassword bool      `db:"has_password" json:"-"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`
}

type CreateUserParams struct {
	ID       string
	Username string
	Email    *string
	Avatar   *string
}
