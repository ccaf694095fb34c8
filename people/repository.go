package people

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cockroachdb/errors"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/petal-labs/petalpeople/store"
)

// DefaultQuery is the statement get_people runs when none is given.
const DefaultQuery = "SELECT * FROM people"

const (
	insertPersonStmt = "INSERT INTO people (name, age, profession) VALUES (?, ?, ?)"
	findByNameStmt   = `SELECT * FROM people WHERE name LIKE ? ESCAPE '\'`
)

var (
	// ErrWriteFailure marks an insert or commit that the store rejected.
	ErrWriteFailure = errors.New("write failure")
	// ErrReadFailure marks a SELECT that could not be executed.
	ErrReadFailure = errors.New("read failure")
	// ErrInvalidPerson marks input that violates the Person invariants.
	ErrInvalidPerson = errors.New("invalid person")
)

// Row is one result row: column name to value, in the statement's column
// order. It marshals to a JSON object with the same key order.
type Row = *orderedmap.OrderedMap[string, any]

// Person is one persisted record.
type Person struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Age        int64  `json:"age"`
	Profession string `json:"profession"`
}

// NewPerson is the input to AddPerson; the store assigns the id.
type NewPerson struct {
	Name       string
	Age        int64
	Profession string
}

func (p NewPerson) validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return errors.Mark(errors.New("name must not be empty"), ErrInvalidPerson)
	}
	if strings.TrimSpace(p.Profession) == "" {
		return errors.Mark(errors.New("profession must not be empty"), ErrInvalidPerson)
	}
	return nil
}

// Gateway opens store sessions. *store.Gateway satisfies it.
type Gateway interface {
	Open(ctx context.Context) (*store.Session, error)
	OpenReadOnly(ctx context.Context) (*store.Session, error)
}

// Repository implements the people operations on top of a Gateway. Each call
// opens, uses, and closes its own session.
type Repository struct {
	gw     Gateway
	logger *slog.Logger
}

// NewRepository returns a repository backed by gw.
func NewRepository(gw Gateway, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{gw: gw, logger: logger}
}

// AddPerson inserts one person and returns it with its assigned id. Failures
// are returned as errors marked ErrInvalidPerson, ErrWriteFailure, or
// store.ErrStoreUnavailable.
func (r *Repository) AddPerson(ctx context.Context, in NewPerson) (Person, error) {
	if err := in.validate(); err != nil {
		return Person{}, err
	}

	session, err := r.gw.Open(ctx)
	if err != nil {
		return Person{}, err
	}
	defer r.closeSession(session)

	result, err := session.Exec(ctx, insertPersonStmt, in.Name, in.Age, in.Profession)
	if err != nil {
		return Person{}, errors.Mark(errors.Wrap(err, "insert person"), ErrWriteFailure)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return Person{}, errors.Mark(errors.Wrap(err, "read assigned id"), ErrWriteFailure)
	}
	if err := session.Commit(); err != nil {
		return Person{}, errors.Mark(err, ErrWriteFailure)
	}

	r.logger.Info("person added", slog.Int64("id", id), slog.String("name", in.Name))
	return Person{
		ID:         id,
		Name:       in.Name,
		Age:        in.Age,
		Profession: in.Profession,
	}, nil
}

// QueryPeople runs a read statement and maps each row to a Row. An empty
// statement runs DefaultQuery. The statement executes on a read-only
// session, so anything that would modify the database fails. On failure the
// error is logged and an empty slice is returned.
func (r *Repository) QueryPeople(ctx context.Context, statement string) []Row {
	stmt := strings.TrimSpace(statement)
	if stmt == "" {
		stmt = DefaultQuery
	}
	return r.readOrEmpty(ctx, stmt)
}

// GetAllPeople returns every row of the people table in the store's natural
// order.
func (r *Repository) GetAllPeople(ctx context.Context) []Row {
	return r.QueryPeople(ctx, DefaultQuery)
}

// FindByName returns the people whose name contains substr. The substring is
// bound as a LIKE pattern with its wildcards escaped; case sensitivity
// follows SQLite's LIKE.
func (r *Repository) FindByName(ctx context.Context, substr string) []Row {
	return r.readOrEmpty(ctx, findByNameStmt, "%"+escapeLike(substr)+"%")
}

func (r *Repository) readOrEmpty(ctx context.Context, stmt string, args ...any) []Row {
	rows, err := r.read(ctx, stmt, args...)
	if err != nil {
		r.logger.Warn("people read failed; returning no results",
			slog.String("statement", stmt),
			slog.Any("error", err),
		)
		return []Row{}
	}
	return rows
}

func (r *Repository) read(ctx context.Context, stmt string, args ...any) ([]Row, error) {
	session, err := r.gw.OpenReadOnly(ctx)
	if err != nil {
		return nil, err
	}
	defer r.closeSession(session)

	set, err := session.Query(ctx, stmt, args...)
	if err != nil {
		return nil, errors.Mark(err, ErrReadFailure)
	}

	rows := make([]Row, 0, len(set.Rows))
	for _, values := range set.Rows {
		row := orderedmap.New[string, any](len(set.Columns))
		for i, column := range set.Columns {
			row.Set(column, values[i])
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (r *Repository) closeSession(session *store.Session) {
	if err := session.Close(); err != nil {
		r.logger.Warn("store session close failed", slog.Any("error", err))
	}
}

// AddedMessage is the outcome text for a successful add.
func AddedMessage(name string) string {
	return fmt.Sprintf("Person '%s' added successfully", name)
}

// AddFailedMessage is the outcome text for a failed add.
func AddFailedMessage(err error) string {
	return fmt.Sprintf("Error adding person: %v", err)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
