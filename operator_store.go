package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

func (a *App) storeAuthenticateOperator(ctx context.Context, email, password string) (string, error) {
	var passwordHash string
	var role string
	var isActive bool
	err := a.db.QueryRowContext(ctx, `
		SELECT password_hash, role, is_active
		FROM operators
		WHERE email = $1
	`, email).Scan(&passwordHash, &role, &isActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", errInvalidCredentials()
		}
		return "", err
	}
	if !isActive || bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password)) != nil {
		return "", errInvalidCredentials()
	}
	if !containsString(operatorRoles, role) {
		return "", errInvalidCredentials()
	}
	return role, nil
}

// bootstrapOperator ensures the configured admin account exists so a fresh
// deployment can be logged into. Reruns reset the password.
func (a *App) bootstrapOperator(ctx context.Context) error {
	email := a.cfg.BootstrapOperatorEmail
	password := a.cfg.BootstrapOperatorPassword
	if email == "" || password == "" {
		a.log.Info("bootstrap operator not configured")
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	_, err = a.db.ExecContext(ctx, `
		INSERT INTO operators (email, nama, password_hash, role, is_active)
		VALUES ($1, 'Administrator', $2, 'admin', TRUE)
		ON CONFLICT (email)
		DO UPDATE SET
			password_hash = EXCLUDED.password_hash,
			role = EXCLUDED.role,
			is_active = TRUE,
			updated_at = NOW()
	`, email, string(hash))
	if err != nil {
		return err
	}

	a.log.Info("bootstrap operator ensured", "email", email)
	return nil
}

func errInvalidCredentials() *apiError {
	return &apiError{Status: http.StatusUnauthorized, Code: "invalid_credentials", Message: "Invalid credentials"}
}
