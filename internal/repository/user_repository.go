package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/AgusMolinaCode/bitlab/internal/models"
)

type UserRepository struct {
	db       *sql.DB
	notifier Notifier
}

func NewUserRepository(db *sql.DB, notifier Notifier) *UserRepository {
	return &UserRepository{db: db, notifier: notifierOrNop(notifier)}
}

// CreateUser stores user with its plain text Password replaced by a bcrypt hash.
func (r *UserRepository) CreateUser(ctx context.Context, user *models.User) error {
	hashed, err := bcrypt.GenerateFromPassword([]byte(user.Password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	user.Password = string(hashed)
	user.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO users (id, email, password, name, clerk_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err = r.db.ExecContext(ctx, query,
		user.ID,
		user.Email,
		user.Password,
		user.Name,
		nullString(user.ClerkID),
		user.CreatedAt,
	)
	if err != nil {
		return storeErr("create user", err)
	}
	r.notifier.Publish(models.ChangeEvent{UserID: user.ID, Collection: models.CollectionUsers})
	return nil
}

// CheckPassword returns the user when email and password match.
func (r *UserRepository) CheckPassword(ctx context.Context, email, password string) (*models.User, error) {
	user, err := r.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user.Password == "" {
		// accounts created through Clerk have no local password
		return nil, ErrForbidden
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, ErrForbidden
	}
	return user, nil
}

func (r *UserRepository) GetAllUsers(ctx context.Context) ([]models.User, error) {
	users := []models.User{}
	query := `SELECT id, email, name, COALESCE(clerk_id, ''), created_at FROM users ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, storeErr("list users", err)
	}
	defer rows.Close()

	for rows.Next() {
		var user models.User
		err := rows.Scan(
			&user.ID,
			&user.Email,
			&user.Name,
			&user.ClerkID,
			&user.CreatedAt,
		)
		if err != nil {
			return nil, storeErr("scan user", err)
		}
		users = append(users, user)
	}
	return users, storeErr("list users", rows.Err())
}

func (r *UserRepository) GetUserById(ctx context.Context, id string) (*models.User, error) {
	user := &models.User{}
	query := `SELECT id, email, name, COALESCE(clerk_id, ''), created_at FROM users WHERE id = $1`

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.ClerkID,
		&user.CreatedAt,
	)
	if err != nil {
		return nil, storeErr("get user", err)
	}
	return user, nil
}

func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	user := &models.User{}
	query := `SELECT id, email, password, name, COALESCE(clerk_id, ''), created_at FROM users WHERE email = $1`

	err := r.db.QueryRowContext(ctx, query, strings.ToLower(strings.TrimSpace(email))).Scan(
		&user.ID,
		&user.Email,
		&user.Password,
		&user.Name,
		&user.ClerkID,
		&user.CreatedAt,
	)
	if err != nil {
		return nil, storeErr("get user by email", err)
	}
	return user, nil
}

func (r *UserRepository) UpdateUser(ctx context.Context, user *models.User) error {
	query := `
		UPDATE users
		SET email = $1, name = $2
		WHERE id = $3`

	res, err := r.db.ExecContext(ctx, query, strings.ToLower(strings.TrimSpace(user.Email)), user.Name, user.ID)
	if err := affectedOne("update user", res, err); err != nil {
		return err
	}
	r.notifier.Publish(models.ChangeEvent{UserID: user.ID, Collection: models.CollectionUsers})
	return nil
}

// DeleteUser removes the user; coins, transactions, stats and snapshots
// go with it through ON DELETE CASCADE.
func (r *UserRepository) DeleteUser(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err := affectedOne("delete user", res, err); err != nil {
		return err
	}
	r.notifier.Publish(models.ChangeEvent{UserID: id, Collection: models.CollectionUsers})
	return nil
}

func (r *UserRepository) UpdatePassword(ctx context.Context, email, password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `UPDATE users SET password = $1 WHERE email = $2`,
		string(hashedPassword), strings.ToLower(strings.TrimSpace(email)))
	return affectedOne("update password", res, err)
}

// UpsertClerkUser creates or refreshes the local row of a Clerk user. An
// existing local account with the same email is linked instead of duplicated.
func (r *UserRepository) UpsertClerkUser(ctx context.Context, clerkID, email, name string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeErr("begin", err)
	}
	defer rollback(tx)

	user := &models.User{}
	err = tx.QueryRowContext(ctx,
		`SELECT id, email, name, created_at FROM users WHERE clerk_id = $1 OR email = $2 LIMIT 1`,
		clerkID, email,
	).Scan(&user.ID, &user.Email, &user.Name, &user.CreatedAt)

	switch {
	case err == sql.ErrNoRows:
		user = &models.User{
			ID:        clerkID,
			Email:     email,
			Name:      name,
			ClerkID:   clerkID,
			CreatedAt: time.Now().UTC(),
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO users (id, email, password, name, clerk_id, created_at) VALUES ($1, $2, '', $3, $4, $5)`,
			user.ID, user.Email, user.Name, clerkID, user.CreatedAt)
	case err == nil:
		user.Email, user.Name, user.ClerkID = email, name, clerkID
		_, err = tx.ExecContext(ctx,
			`UPDATE users SET email = $1, name = $2, clerk_id = $3 WHERE id = $4`,
			email, name, clerkID, user.ID)
	}
	if err != nil {
		return nil, storeErr("upsert clerk user", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, storeErr("commit", err)
	}

	r.notifier.Publish(models.ChangeEvent{UserID: user.ID, Collection: models.CollectionUsers})
	return user, nil
}

// GetUserByClerkID returns the local user linked to a Clerk account.
func (r *UserRepository) GetUserByClerkID(ctx context.Context, clerkID string) (*models.User, error) {
	user := &models.User{ClerkID: clerkID}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, name, created_at FROM users WHERE clerk_id = $1`, clerkID,
	).Scan(&user.ID, &user.Email, &user.Name, &user.CreatedAt)
	if err != nil {
		return nil, storeErr("get user by clerk id", err)
	}
	return user, nil
}

// DeleteClerkUser removes the user linked to clerkID, if any.
func (r *UserRepository) DeleteClerkUser(ctx context.Context, clerkID string) error {
	var id string
	err := r.db.QueryRowContext(ctx, `SELECT id FROM users WHERE clerk_id = $1`, clerkID).Scan(&id)
	if err != nil {
		return storeErr("find clerk user", err)
	}
	return r.DeleteUser(ctx, id)
}

func affectedOne(op string, res sql.Result, err error) error {
	if err != nil {
		return storeErr(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr(op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
