// Package postgresdb stores users, blogs and the user to blog relation in
// PostgreSQL, with transactional writes and batch removal of user blog
// references.
package postgresdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/pressly/goose/v3"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/patric-chuzhbe/bloglist/internal/models"
	"github.com/patric-chuzhbe/bloglist/internal/user"
)

const (
	uniqueViolationCode     = "23505"
	foreignKeyViolationCode = "23503"
)

// PostgresDB is a PostgreSQL-backed implementation of the bloglist storage.
type PostgresDB struct {
	database          *sql.DB
	connectionTimeout time.Duration
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type initOptions struct {
	DBPreReset bool
}

const selectUserQuery = `
	SELECT
		users.id,
		users.username,
		users.name,
		users.password_hash,
		COALESCE(
			(
				SELECT array_agg(user_blogs.blog_id::text ORDER BY user_blogs.added_at)
					FROM user_blogs
					WHERE user_blogs.user_id = users.id
			),
			'{}'
		)
	FROM users
`

const selectBlogQuery = `SELECT id, title, author, url, likes, user_id FROM blogs`

// New opens databaseDSN and applies the goose migrations found in
// migrationsDir.
func New(
	ctx context.Context,
	databaseDSN string,
	connectionTimeout time.Duration,
	migrationsDir string,
	optionsProto ...InitOption,
) (*PostgresDB, error) {
	options := &initOptions{
		DBPreReset: false,
	}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	database, err := sql.Open("pgx", databaseDSN)
	if err != nil {
		return nil, err
	}

	result := &PostgresDB{
		database:          database,
		connectionTimeout: connectionTimeout,
	}

	if options.DBPreReset {
		if err := result.resetDB(ctx); err != nil {
			return nil,
				fmt.Errorf(
					"in internal/db/postgresdb/postgresdb.go/New(): error while `result.resetDB()` calling: %w",
					err,
				)
		}
	}

	if err := goose.SetDialect("postgres"); err != nil {
		return nil,
			fmt.Errorf(
				"in internal/db/postgresdb/postgresdb.go/New(): error while `goose.SetDialect()` calling: %w",
				err,
			)
	}

	if err := goose.UpContext(ctx, result.database, migrationsDir); err != nil {
		return nil,
			fmt.Errorf(
				"in internal/db/postgresdb/postgresdb.go/New(): error while `goose.UpContext()` calling: %w",
				err,
			)
	}

	return result, nil
}

func (db *PostgresDB) queryer(transaction *sql.Tx) queryer {
	if transaction == nil {
		return db.database
	}

	return transaction
}

func (db *PostgresDB) executor(transaction *sql.Tx) executor {
	if transaction == nil {
		return db.database
	}

	return transaction
}

func hasPgErrorCode(err error, code string) bool {
	var pgErr *pgconn.PgError

	return errors.As(err, &pgErr) && pgErr.Code == code
}

func scanUser(row interface{ Scan(dest ...any) error }) (*user.User, error) {
	usr := &user.User{}
	var blogIDs pq.StringArray
	err := row.Scan(&usr.ID, &usr.Username, &usr.Name, &usr.PasswordHash, &blogIDs)
	if err != nil {
		return nil, err
	}
	usr.BlogIDs = []string(blogIDs)
	if usr.BlogIDs == nil {
		usr.BlogIDs = []string{}
	}

	return usr, nil
}

func scanBlog(row interface{ Scan(dest ...any) error }) (*models.Blog, error) {
	blog := &models.Blog{}
	err := row.Scan(&blog.ID, &blog.Title, &blog.Author, &blog.URL, &blog.Likes, &blog.OwnerID)
	if err != nil {
		return nil, err
	}

	return blog, nil
}

// CreateUser inserts a new user record and returns its id.
// A case-insensitive username clash yields models.ErrDuplicateUsername.
func (db *PostgresDB) CreateUser(ctx context.Context, usr *user.User, transaction *sql.Tx) (string, error) {
	row := db.queryer(transaction).QueryRowContext(
		ctx,
		`
			INSERT INTO users (username, name, password_hash)
				VALUES ($1, $2, $3)
				RETURNING id
		`,
		usr.Username,
		usr.Name,
		usr.PasswordHash,
	)
	var userIDFromDB string
	err := row.Scan(&userIDFromDB)
	if err != nil {
		if hasPgErrorCode(err, uniqueViolationCode) {
			return "", models.ErrDuplicateUsername
		}
		return "", err
	}

	return userIDFromDB, nil
}

// GetUserByID fetches a user with its blog id set.
// Returns models.ErrRecordNotFound when there is no such user.
func (db *PostgresDB) GetUserByID(ctx context.Context, userID string, transaction *sql.Tx) (*user.User, error) {
	if userID == "" {
		return nil, models.ErrRecordNotFound
	}

	usr, err := scanUser(
		db.queryer(transaction).QueryRowContext(ctx, selectUserQuery+` WHERE users.id = $1`, userID),
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrRecordNotFound
		}
		return nil, err
	}

	return usr, nil
}

func (db *PostgresDB) GetUserByUsername(ctx context.Context, username string) (*user.User, error) {
	usr, err := scanUser(
		db.database.QueryRowContext(ctx, selectUserQuery+` WHERE lower(users.username) = lower($1)`, username),
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrRecordNotFound
		}
		return nil, err
	}

	return usr, nil
}

// GetUsersByIDs returns the known users among userIDs keyed by id.
func (db *PostgresDB) GetUsersByIDs(ctx context.Context, userIDs []string) (map[string]*user.User, error) {
	result := make(map[string]*user.User, len(userIDs))
	if len(userIDs) == 0 {
		return result, nil
	}

	rows, err := db.database.QueryContext(
		ctx,
		selectUserQuery+` WHERE users.id::text = ANY($1)`,
		pq.Array(userIDs),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		usr, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		result[usr.ID] = usr
	}

	err = rows.Err()
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (db *PostgresDB) ListUsers(ctx context.Context) ([]*user.User, error) {
	rows, err := db.database.QueryContext(ctx, selectUserQuery+` ORDER BY users.created_at, users.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []*user.User{}
	for rows.Next() {
		usr, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, usr)
	}

	err = rows.Err()
	if err != nil {
		return nil, err
	}

	return result, nil
}

// InsertBlog stores a blog record. An empty blog.ID is replaced with a fresh UUID.
func (db *PostgresDB) InsertBlog(ctx context.Context, blog *models.Blog, transaction *sql.Tx) (string, error) {
	blogID := blog.ID
	if blogID == "" {
		blogID = uuid.New().String()
	}

	_, err := db.executor(transaction).ExecContext(
		ctx,
		`INSERT INTO blogs (id, title, author, url, likes, user_id) VALUES ($1, $2, $3, $4, $5, $6)`,
		blogID,
		blog.Title,
		blog.Author,
		blog.URL,
		blog.Likes,
		blog.OwnerID,
	)
	if err != nil {
		return "", err
	}

	return blogID, nil
}

// GetBlogByID returns models.ErrRecordNotFound for an unknown id. A value
// that is not a UUID fails at the database and is returned as is.
func (db *PostgresDB) GetBlogByID(ctx context.Context, blogID string) (*models.Blog, error) {
	blog, err := scanBlog(db.database.QueryRowContext(ctx, selectBlogQuery+` WHERE id = $1`, blogID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrRecordNotFound
		}
		return nil, err
	}

	return blog, nil
}

func (db *PostgresDB) ListBlogs(ctx context.Context) ([]*models.Blog, error) {
	rows, err := db.database.QueryContext(ctx, selectBlogQuery+` ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []*models.Blog{}
	for rows.Next() {
		blog, err := scanBlog(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, blog)
	}

	err = rows.Err()
	if err != nil {
		return nil, err
	}

	return result, nil
}

// UpdateBlog applies the non-nil fields of update and reports whether the
// blog exists.
func (db *PostgresDB) UpdateBlog(ctx context.Context, blogID string, update models.BlogUpdate) (bool, error) {
	result, err := db.database.ExecContext(
		ctx,
		`
			UPDATE blogs
				SET
					title = COALESCE($2::text, title),
					author = COALESCE($3::text, author),
					url = COALESCE($4::text, url),
					likes = COALESCE($5::integer, likes)
				WHERE id = $1
		`,
		blogID,
		update.Title,
		update.Author,
		update.URL,
		update.Likes,
	)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected > 0, nil
}

// DeleteBlog removes the blog record and reports whether it existed.
// Rows in user_blogs are left in place.
func (db *PostgresDB) DeleteBlog(ctx context.Context, blogID string, transaction *sql.Tx) (bool, error) {
	result, err := db.executor(transaction).ExecContext(ctx, `DELETE FROM blogs WHERE id = $1`, blogID)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected > 0, nil
}

// AppendUserBlog relates blogID to userID. It is a single insert, so
// concurrent appends for one user never overwrite each other.
func (db *PostgresDB) AppendUserBlog(ctx context.Context, userID, blogID string, transaction *sql.Tx) error {
	_, err := db.executor(transaction).ExecContext(
		ctx,
		`
			INSERT INTO user_blogs (user_id, blog_id)
				VALUES ($1, $2)
				ON CONFLICT (user_id, blog_id) DO NOTHING
		`,
		userID,
		blogID,
	)
	if err != nil {
		if hasPgErrorCode(err, foreignKeyViolationCode) {
			return models.ErrRecordNotFound
		}
		return err
	}

	return nil
}

// RemoveUserBlogs drops a batch of blog references for the given users
// in one transaction.
func (db *PostgresDB) RemoveUserBlogs(ctx context.Context, userBlogs map[string][]string) error {
	transaction, err := db.database.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	for userID, blogIDs := range userBlogs {
		_, err := transaction.ExecContext(
			ctx,
			`DELETE FROM user_blogs WHERE user_id = $1 AND blog_id::text = ANY($2)`,
			userID,
			pq.Array(blogIDs),
		)
		if err != nil {
			err2 := transaction.Rollback()
			if err2 != nil {
				return err2
			}
			return err
		}
	}

	return transaction.Commit()
}

func (db *PostgresDB) CountBlogs(ctx context.Context) (int64, error) {
	return db.count(ctx, `SELECT COUNT(*) FROM blogs`)
}

func (db *PostgresDB) CountUsers(ctx context.Context) (int64, error) {
	return db.count(ctx, `SELECT COUNT(*) FROM users`)
}

func (db *PostgresDB) count(ctx context.Context, query string) (int64, error) {
	var result int64
	if err := db.database.QueryRowContext(ctx, query).Scan(&result); err != nil {
		return 0, err
	}

	return result, nil
}

// CommitTransaction commits the given SQL transaction.
func (db *PostgresDB) CommitTransaction(transaction *sql.Tx) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic occurred while committing transaction: %v", r)
		}
	}()

	return transaction.Commit()
}

func (db *PostgresDB) RollbackTransaction(transaction *sql.Tx) error {
	return transaction.Rollback()
}

// BeginTransaction starts a new SQL transaction and returns it.
// The caller is responsible for committing or rolling it back.
func (db *PostgresDB) BeginTransaction() (*sql.Tx, error) {
	return db.database.Begin()
}

// InitOption defines a functional option for configuring database initialization.
type InitOption func(*initOptions)

// WithDBPreReset drops every table in the public schema before migrating.
// Used by tests.
func WithDBPreReset(value bool) InitOption {
	return func(options *initOptions) {
		options.DBPreReset = value
	}
}

// Ping verifies connectivity with the PostgreSQL database within the configured timeout.
func (db *PostgresDB) Ping(ctx context.Context) error {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, db.connectionTimeout)
	defer cancel()

	return db.database.PingContext(ctxWithTimeout)
}

func (db *PostgresDB) Close() error {
	return db.database.Close()
}

func (db *PostgresDB) resetDB(ctx context.Context) error {
	_, err := db.database.ExecContext(
		ctx,
		`
			DO $$
			DECLARE
				r RECORD;
			BEGIN
				FOR r IN (SELECT tablename FROM pg_tables WHERE schemaname = 'public') LOOP
					EXECUTE 'DROP TABLE IF EXISTS ' || quote_ident(r.tablename) || ' CASCADE';
				END LOOP;
			END $$;
		`,
	)
	if err != nil {
		return fmt.Errorf(
			"in internal/db/postgresdb/postgresdb.go/resetDB(): error while `db.database.ExecContext()` calling: %w",
			err,
		)
	}
	return nil
}
