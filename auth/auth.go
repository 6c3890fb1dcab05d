package auth

import (
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/raid-guild/hive-x402-facilitator-go/utils"
)

// HeaderAPIKey carries the caller's API key.
const HeaderAPIKey = "X-API-Key"

const selectAPIKey = "SELECT api_key FROM users WHERE api_key = $1"

// Authenticator checks API keys against a static key or a users table.
// With neither configured every request is allowed.
type Authenticator struct {
	staticKey string
	db        *sql.DB
}

// New creates an authenticator. Setting both a static key and a database is
// a configuration error.
func New(staticKey string, db *sql.DB) (*Authenticator, error) {
	if staticKey != "" && db != nil {
		return nil, errors.New("both static API key and database URL are set")
	}
	return &Authenticator{staticKey: staticKey, db: db}, nil
}

// Open creates an authenticator, connecting to databaseURL when it is set.
func Open(staticKey, databaseURL string) (*Authenticator, error) {
	if staticKey != "" && databaseURL != "" {
		return nil, errors.New("both static API key and database URL are set")
	}

	var db *sql.DB
	if databaseURL != "" {
		var err error
		db, err = sql.Open("pgx", databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
	}
	return New(staticKey, db)
}

// Enabled reports whether requests need an API key.
func (a *Authenticator) Enabled() bool {
	return a.staticKey != "" || a.db != nil
}

// Close closes the database, if any.
func (a *Authenticator) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

// Authenticate authenticates the request.
func (a *Authenticator) Authenticate(r *http.Request) error {

	// Get the API key from the request header
	providedKey := r.Header.Get(HeaderAPIKey)

	// Check if the API key is required (static key)
	if a.staticKey != "" {

		// Check if the provided key does not match the static key
		if subtle.ConstantTimeCompare([]byte(providedKey), []byte(a.staticKey)) != 1 {
			return utils.NewStatusError(
				errors.New("unauthorized"),
				http.StatusUnauthorized,
			)
		}
	}

	// Check if the API key is required (dynamic key)
	if a.db != nil {

		// Check if the provided key is empty
		if providedKey == "" {
			return utils.NewStatusError(
				errors.New("unauthorized"),
				http.StatusUnauthorized,
			)
		}

		// Check the API key exists in the database
		var apiKey string
		err := a.db.QueryRowContext(r.Context(), selectAPIKey, providedKey).Scan(&apiKey)

		// Check if the query returned a no rows error
		if errors.Is(err, sql.ErrNoRows) {
			return utils.NewStatusError(
				errors.New("unauthorized"),
				http.StatusUnauthorized,
			)
		}

		// Check if the query returned a different error
		if err != nil {
			return utils.NewStatusError(
				errors.New("failed to get key from database"),
				http.StatusInternalServerError,
			)
		}
	}

	return nil
}

// Middleware rejects unauthenticated requests with the error's status.
func (a *Authenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		err := a.Authenticate(c.Request)
		if err == nil {
			c.Next()
			return
		}

		c.AbortWithStatusJSON(utils.StatusCode(err, http.StatusInternalServerError), gin.H{"error": err.Error()})
	}
}
