package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"kitloop-backend/internal/config"
	"kitloop-backend/internal/logging"
)

// Bootstrap creates the bookkeeping tables and seeds the first admin user.
func (s *Store) Bootstrap(ctx context.Context, admin config.AdminConfig) error {
	if _, err := s.DB.ExecContext(ctx, s.Dialect.SystemTablesSQL()); err != nil {
		return fmt.Errorf("bootstrap system tables: %w", err)
	}
	if err := s.seedAdminUser(ctx, admin); err != nil {
		return fmt.Errorf("seed admin user: %w", err)
	}
	return nil
}

func (s *Store) seedAdminUser(ctx context.Context, admin config.AdminConfig) error {
	row, err := QueryRow(ctx, s.DB, "SELECT COUNT(*) AS count FROM _users")
	if err != nil {
		return err
	}
	if ToInt64(row["count"]) > 0 {
		return nil
	}

	if admin.Email == "" || admin.Password == "" {
		return errors.New("admin email and password are required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(admin.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	pb := s.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf(`INSERT INTO _users (id, email, password_hash, role, provider_id) VALUES (%s, %s, %s, %s, %s)`,
		pb.Add(uuid.New().String()), pb.Add(admin.Email), pb.Add(string(hash)), pb.Add("admin"), pb.Add("kitloop"))
	if _, err := Exec(ctx, s.DB, sqlStr, pb.Params()...); err != nil {
		return s.MapError(err)
	}

	logging.Warn("Default admin user created, change the password immediately", zap.String("email", admin.Email))
	return nil
}
