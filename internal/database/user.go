// internal/database/user.go
package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/volleyhq/volley/internal/auth"
	"github.com/volleyhq/volley/internal/models"
	"github.com/volleyhq/volley/internal/rating"
)

const userColumns = `id, email, password, username, is_ephemeral, is_admin,
       wins, losses, rating, rd, volatility`

// CreateUser hashes the password and inserts the user row.
func CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.Rating == 0 {
		user.Rating = int(rating.DefaultRating)
		user.RD = rating.DefaultRD
		user.Volatility = rating.DefaultVolatility
	}

	hash, err := auth.CreateHash(user.Password, auth.Params)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	user.Password = hash

	q := `INSERT INTO users (id, email, password, username, is_ephemeral, is_admin,
	                         wins, losses, rating, rd, volatility)
	      VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	err = pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, execErr := tx.Exec(ctx, q,
			user.ID, user.Email, user.Password, user.Username,
			user.IsEphemeral, user.IsAdmin,
			user.Wins, user.Losses, user.Rating, user.RD, user.Volatility,
		)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// CreateEphemeralUser mints a guest account with a random throwaway
// password, used when an unauthenticated client first connects.
func CreateEphemeralUser(ctx context.Context, username string) (*models.User, error) {
	u := &models.User{
		ID:          uuid.New(),
		Email:       fmt.Sprintf("guest-%s@volley.local", uuid.NewString()[:8]),
		Password:    uuid.NewString(),
		Username:    username,
		IsEphemeral: true,
	}
	if err := CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(
		&u.ID, &u.Email, &u.Password, &u.Username,
		&u.IsEphemeral, &u.IsAdmin,
		&u.Wins, &u.Losses, &u.Rating, &u.RD, &u.Volatility,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE email=$1`
	return scanUser(DB.QueryRow(ctx, q, email))
}

func GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE id=$1`
	return scanUser(DB.QueryRow(ctx, q, id))
}

// AuthenticateUser verifies credentials and issues a JWT for the user.
func AuthenticateUser(ctx context.Context, email, password string) (string, error) {
	user, err := GetUserByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("user not found or db error: %w", err)
	}

	match, err := auth.ComparePasswordAndHash(password, user.Password)
	if err != nil || !match {
		return "", fmt.Errorf("invalid credentials")
	}

	token, err := auth.CreateJWT(user.ID.String())
	if err != nil {
		return "", fmt.Errorf("failed to create jwt: %w", err)
	}
	return token, nil
}

// SaveUserRating stores the user's rating state and win/loss tally.
func SaveUserRating(ctx context.Context, u *models.User) error {
	q := `UPDATE users
	      SET wins=$1, losses=$2, rating=$3, rd=$4, volatility=$5
	      WHERE id=$6`
	return pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q, u.Wins, u.Losses, u.Rating, u.RD, u.Volatility, u.ID)
		return err
	})
}
